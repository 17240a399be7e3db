package codec

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
)

// Fields is an insertion-ordered string map. Setting an existing key replaces
// its value in place. The zero value is ready to use; a nil *Fields reads as empty.
type Fields struct {
	keys   []string
	values map[string]string
}

// NewFields builds Fields from alternating key, value arguments.
func NewFields(kv ...string) *Fields {
	if len(kv)%2 != 0 {
		panic("codec.NewFields: odd number of arguments")
	}
	f := &Fields{}
	for i := 0; i < len(kv); i += 2 {
		f.Set(kv[i], kv[i+1])
	}
	return f
}

func (f *Fields) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

func (f *Fields) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}

func (f *Fields) Delete(key string) {
	if f == nil {
		return
	}
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	f.keys = slices.DeleteFunc(f.keys, func(k string) bool { return k == key })
}

func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	return slices.Clone(f.keys)
}

// All iterates key/value pairs in insertion order.
func (f *Fields) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if f == nil {
			return
		}
		for _, k := range f.keys {
			if !yield(k, f.values[k]) {
				return
			}
		}
	}
}

func (f *Fields) Clone() *Fields {
	out := &Fields{}
	for k, v := range f.All() {
		out.Set(k, v)
	}
	return out
}

// Equal reports whether both hold the same pairs in the same order.
func (f *Fields) Equal(other *Fields) bool {
	if f.Len() != other.Len() {
		return false
	}
	for i, k := range f.Keys() {
		if other.keys[i] != k || other.values[k] != f.values[k] {
			return false
		}
	}
	return true
}

func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	for k, v := range f.All() {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		if err := writeJSONString(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

var errFieldsNotObject = errors.New("data must be an object of string values")

// UnmarshalJSON keeps document order and requires every value to be a string.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errFieldsNotObject
	}
	out := &Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errFieldsNotObject
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		val, ok := valTok.(string)
		if !ok {
			return fmt.Errorf("data[%q]: value must be a string", key)
		}
		out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = *out
	return nil
}

// Value stores Fields as a JSON object (jsonb column). It returns a string
// because lib/pq sends []byte parameters as bytea.
func (f *Fields) Value() (driver.Value, error) {
	b, err := f.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON object written by Value.
func (f *Fields) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = Fields{}
		return nil
	case []byte:
		return f.UnmarshalJSON(v)
	case string:
		return f.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("codec: cannot scan %T into Fields", src)
	}
}
