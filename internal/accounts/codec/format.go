// Package codec converts account records to and from the two transfer formats:
// a JSON array of {"name", "data"} objects, and a line-oriented text layout
//
//	Name: Example Service
//	    Login:
//	        user@example.com
//
// The text format has no escaping. Keys or values that start with a colon,
// begin a line with "Name:", or contain newlines do not survive a round-trip.
package codec

import (
	"fmt"
	"strings"
)

// Record is one named bundle of ordered string fields.
type Record struct {
	Name   string
	Fields *Fields
}

// Format selects a writer/parser pair. Its value doubles as the file extension.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "txt"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatText}

func (f Format) String() string { return string(f) }

// Ext returns the file extension without a leading dot.
func (f Format) Ext() string { return string(f) }

func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatText
}

// ContentType is the MIME type used when serving a file of this format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/plain"
}

// ParseFormat validates a format tag such as "json" or "txt".
func ParseFormat(tag string) (Format, error) {
	f := Format(tag)
	if !f.Valid() {
		return "", &UnsupportedFormatError{Ext: tag}
	}
	return f, nil
}

// DetermineFormat infers the format from the last dot-separated segment of filename.
func DetermineFormat(filename string) (Format, error) {
	parts := strings.Split(filename, ".")
	if len(parts) < 2 {
		return "", &UnsupportedFormatError{Filename: filename}
	}
	f := Format(parts[len(parts)-1])
	if !f.Valid() {
		return "", &UnsupportedFormatError{Filename: filename, Ext: string(f)}
	}
	return f, nil
}

// UnsupportedFormatError reports a missing or unknown format tag.
type UnsupportedFormatError struct {
	Filename string
	Ext      string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("file %q has no format extension", e.Filename)
	}
	return fmt.Sprintf("unsupported file format: '%s'", e.Ext)
}

// ParseError wraps any failure while decoding a document.
type ParseError struct {
	Format Format
	// Index is the array element that failed (JSON), or -1.
	Index int
	// Line is the 1-based line that failed (text), or 0.
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	switch {
	case e.Index >= 0:
		return fmt.Sprintf("parse %s: element %d: %v", e.Format, e.Index, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("parse %s: line %d: %v", e.Format, e.Line, e.Err)
	default:
		return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
