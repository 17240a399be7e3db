package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Charset is the byte encoding of a transfer file.
type Charset string

const (
	CharsetUTF8        Charset = "utf-8"
	CharsetWindows1251 Charset = "windows-1251"
)

// ParseCharset accepts the charset names used in configuration and headers.
func ParseCharset(name string) (Charset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return CharsetUTF8, nil
	case "windows-1251", "cp1251":
		return CharsetWindows1251, nil
	}
	return "", fmt.Errorf("unsupported charset %q", name)
}

// CharsetForUserAgent picks windows-1251 for Windows clients, UTF-8 otherwise.
func CharsetForUserAgent(userAgent string) Charset {
	if userAgent == "" {
		return CharsetUTF8
	}
	if strings.HasPrefix(useragent.New(userAgent).OS(), "Windows") {
		return CharsetWindows1251
	}
	return CharsetUTF8
}

// ForFormat is the charset actually used for f. JSON is always UTF-8; only
// the text format follows the client's charset.
func (c Charset) ForFormat(f Format) Charset {
	if c == "" || f == FormatJSON {
		return CharsetUTF8
	}
	return c
}

func (c Charset) encoder() *encoding.Encoder {
	if c == CharsetWindows1251 {
		return charmap.Windows1251.NewEncoder()
	}
	return encoding.Nop.NewEncoder()
}

// decoder strips a leading UTF-8 BOM and rejects invalid UTF-8 instead of
// substituting U+FFFD.
func (c Charset) decoder() transform.Transformer {
	if c == CharsetWindows1251 {
		return charmap.Windows1251.NewDecoder()
	}
	return transform.Chain(unicode.UTF8BOM.NewDecoder(), encoding.UTF8Validator)
}

// Options tune Encode and Decode.
type Options struct {
	Indent  int
	Charset Charset
}

// Encode writes records in format f, transcoding text to opts.Charset.
func Encode(w io.Writer, records []Record, f Format, opts Options) error {
	charset := opts.Charset.ForFormat(f)
	if charset == CharsetUTF8 {
		return write(w, records, f, opts.Indent)
	}
	tw := transform.NewWriter(w, charset.encoder())
	if err := write(tw, records, f, opts.Indent); err != nil {
		return fmt.Errorf("encode %s as %s: %w", f, charset, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("encode %s as %s: %w", f, charset, err)
	}
	return nil
}

func write(w io.Writer, records []Record, f Format, indent int) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, records, indent)
	case FormatText:
		return WriteText(w, records, indent)
	}
	return &UnsupportedFormatError{Ext: string(f)}
}

// Decode reads records in format f from r, transcoding text from
// opts.Charset. Bytes that are invalid in the charset fail with *ParseError.
func Decode(r io.Reader, f Format, opts Options) ([]Record, error) {
	r = transform.NewReader(r, opts.Charset.ForFormat(f).decoder())
	switch f {
	case FormatJSON:
		return ParseJSON(r)
	case FormatText:
		return ParseText(r)
	}
	return nil, &UnsupportedFormatError{Ext: string(f)}
}
