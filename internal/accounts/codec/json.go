package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsonRecord struct {
	Name string  `json:"name"`
	Data *Fields `json:"data"`
}

// WriteJSON writes records as a JSON array of {"name", "data"} objects.
func WriteJSON(w io.Writer, records []Record, indent int) error {
	if indent <= 0 {
		indent = DefaultIndent
	}
	out := make([]jsonRecord, len(records))
	for i, rec := range records {
		data := rec.Fields
		if data == nil {
			data = &Fields{}
		}
		out[i] = jsonRecord{Name: rec.Name, Data: data}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", strings.Repeat(" ", indent))
	return enc.Encode(out)
}

var (
	errNotArray  = errors.New("document must be a JSON array")
	errNotObject = errors.New("element must be an object")
)

// ParseJSON reads a JSON array of {"name", "data"} objects. Any element that is
// not exactly that shape fails the whole document.
func ParseJSON(r io.Reader) ([]Record, error) {
	fail := func(index int, err error) ([]Record, error) {
		return nil, &ParseError{Format: FormatJSON, Index: index, Err: err}
	}

	dec := json.NewDecoder(r)
	var doc json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return fail(-1, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fail(-1, errors.New("unexpected data after top-level array"))
	}
	if !bytes.HasPrefix(bytes.TrimSpace(doc), []byte("[")) {
		return fail(-1, errNotArray)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(doc, &elems); err != nil {
		return fail(-1, err)
	}

	records := make([]Record, 0, len(elems))
	for i, raw := range elems {
		rec, err := parseJSONRecord(raw)
		if err != nil {
			return fail(i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseJSONRecord(raw json.RawMessage) (Record, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return Record{}, errNotObject
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Record{}, err
	}
	for key := range obj {
		if key != "name" && key != "data" {
			return Record{}, fmt.Errorf("unknown key %q", key)
		}
	}

	nameRaw, ok := obj["name"]
	if !ok {
		return Record{}, errors.New(`missing key "name"`)
	}
	dataRaw, ok := obj["data"]
	if !ok {
		return Record{}, errors.New(`missing key "data"`)
	}

	if !bytes.HasPrefix(bytes.TrimSpace(nameRaw), []byte(`"`)) {
		return Record{}, errors.New("name must be a string")
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil {
		return Record{}, fmt.Errorf("name: %w", err)
	}

	fields := &Fields{}
	if err := fields.UnmarshalJSON(dataRaw); err != nil {
		return Record{}, err
	}
	return Record{Name: name, Fields: fields}, nil
}
