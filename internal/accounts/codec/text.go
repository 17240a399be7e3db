package codec

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// DefaultIndent is the indent width used when callers pass a non-positive one.
const DefaultIndent = 4

const namePrefix = "Name:"

// WriteText writes records in the line-oriented text format.
func WriteText(w io.Writer, records []Record, indent int) error {
	if indent <= 0 {
		indent = DefaultIndent
	}
	keyPad := strings.Repeat(" ", indent)
	valuePad := strings.Repeat(" ", indent*2)

	bw := bufio.NewWriter(w)
	for _, rec := range records {
		bw.WriteString(namePrefix + " " + rec.Name + "\n")
		for k, v := range rec.Fields.All() {
			bw.WriteString(keyPad + k + ":\n")
			bw.WriteString(valuePad + v + "\n")
		}
	}
	return bw.Flush()
}

// textState accumulates one record while lines stream through ParseText.
type textState struct {
	name       string
	open       bool
	pendingKey string
	hasKey     bool
	fields     *Fields
	out        []Record
}

func (s *textState) flush() {
	s.out = append(s.out, Record{Name: s.name, Fields: s.fields})
}

func (s *textState) line(raw string) {
	if raw == "" {
		return
	}
	if strings.HasPrefix(raw, namePrefix) {
		if s.open {
			s.flush()
		}
		s.name = strings.TrimSpace(raw[len(namePrefix):])
		s.open = true
		s.fields = &Fields{}
		s.pendingKey, s.hasKey = "", false
		return
	}
	trimmed := strings.TrimSpace(raw)
	if !s.hasKey {
		s.pendingKey = strings.Trim(trimmed, ":")
		s.hasKey = true
		return
	}
	s.fields.Set(s.pendingKey, trimmed)
	s.pendingKey, s.hasKey = "", false
}

// ParseText reads records written by WriteText. Blank lines are ignored and a
// key without a following value is dropped. The last record is always
// emitted, so empty input yields a single record with no name and no fields.
func ParseText(r io.Reader) ([]Record, error) {
	st := &textState{fields: &Fields{}}
	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &ParseError{Format: FormatText, Index: -1, Line: lineNo, Err: err}
		}
		raw = strings.TrimSuffix(raw, "\n")
		raw = strings.TrimSuffix(raw, "\r")
		st.line(raw)
		if err != nil {
			break
		}
	}
	st.flush()
	return st.out, nil
}
