package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

func TestDetermineFormat(t *testing.T) {
	t.Run("known extensions", func(t *testing.T) {
		cases := map[string]Format{
			"file.txt":            FormatText,
			"file.json":           FormatJSON,
			"Accounts.backup.txt": FormatText,
			".json":               FormatJSON,
		}
		for name, want := range cases {
			got, err := DetermineFormat(name)
			require.NoError(t, err, name)
			assert.Equal(t, want, got, name)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		cases := map[string]string{
			"file":      "",
			"file.csv":  "csv",
			"file.TXT":  "TXT",
			"file.":     "",
			"json.file": "file",
		}
		for name, ext := range cases {
			_, err := DetermineFormat(name)
			var ferr *UnsupportedFormatError
			require.ErrorAs(t, err, &ferr, name)
			assert.Equal(t, ext, ferr.Ext, name)
		}
	})

	t.Run("message names the extension", func(t *testing.T) {
		_, err := DetermineFormat("file.csv")
		assert.EqualError(t, err, "unsupported file format: 'csv'")
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	assert.Equal(t, "application/json", f.ContentType())

	_, err = ParseFormat("xml")
	var ferr *UnsupportedFormatError
	assert.ErrorAs(t, err, &ferr)
}

func TestCharsetForUserAgent(t *testing.T) {
	assert.Equal(t, CharsetWindows1251, CharsetForUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64)"))
	assert.Equal(t, CharsetUTF8, CharsetForUserAgent("Mozilla/5.0 (X11; Linux x86_64)"))
	assert.Equal(t, CharsetUTF8, CharsetForUserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"))
	assert.Equal(t, CharsetUTF8, CharsetForUserAgent(""))
}

func TestParseCharset(t *testing.T) {
	c, err := ParseCharset("CP1251")
	require.NoError(t, err)
	assert.Equal(t, CharsetWindows1251, c)

	c, err = ParseCharset("")
	require.NoError(t, err)
	assert.Equal(t, CharsetUTF8, c)

	_, err = ParseCharset("koi8-r")
	assert.Error(t, err)
}

func TestEncodeDecode_Windows1251(t *testing.T) {
	records := []Record{{Name: "Почта", Fields: NewFields("Логин", "иван", "Password", "secret")}}
	opts := Options{Indent: 4, Charset: CharsetWindows1251}

	t.Run("text is transcoded", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, records, FormatText, opts))
		assert.NotContains(t, buf.String(), "Почта", "output must not be UTF-8")
		assert.Contains(t, buf.Bytes(), byte(0xcf), "cp1251 byte for П")

		got, err := Decode(&buf, FormatText, opts)
		require.NoError(t, err)
		if diff := cmp.Diff(records, got); diff != "" {
			t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("json stays UTF-8", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, records, FormatJSON, opts))
		assert.Contains(t, buf.String(), "Почта")

		got, err := Decode(&buf, FormatJSON, opts)
		require.NoError(t, err)
		if diff := cmp.Diff(records, got); diff != "" {
			t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDecode_JSONIgnoresClientCharset(t *testing.T) {
	doc := `[{"name":"Почта","data":{"Пароль":"секрет"}}]`
	got, err := Decode(strings.NewReader(doc), FormatJSON, Options{Charset: CharsetWindows1251})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Почта", got[0].Name)
	value, ok := got[0].Fields.Get("Пароль")
	assert.True(t, ok)
	assert.Equal(t, "секрет", value)
}

func TestCharset_ForFormat(t *testing.T) {
	assert.Equal(t, CharsetWindows1251, CharsetWindows1251.ForFormat(FormatText))
	assert.Equal(t, CharsetUTF8, CharsetWindows1251.ForFormat(FormatJSON))
	assert.Equal(t, CharsetUTF8, Charset("").ForFormat(FormatText))
}

func TestDecode_InvalidUTF8(t *testing.T) {
	cases := map[Format]string{
		FormatText: "Name: A\n    Key:\n        \xff\xfe bad\n",
		FormatJSON: "[{\"name\":\"A\",\"data\":{\"Key\":\"\xff\xfe bad\"}}]",
	}
	for f, doc := range cases {
		t.Run(string(f), func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc), f, Options{Charset: CharsetUTF8})
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.ErrorIs(t, err, encoding.ErrInvalidUTF8)
		})
	}

	t.Run("cp1251 text sent as UTF-8", func(t *testing.T) {
		raw, err := charmap.Windows1251.NewEncoder().String("Name: Почта\n")
		require.NoError(t, err)
		_, err = Decode(strings.NewReader(raw), FormatText, Options{})
		var perr *ParseError
		assert.ErrorAs(t, err, &perr)
	})
}

func TestEncode_UnrepresentableRune(t *testing.T) {
	records := []Record{{Name: "Keys", Fields: NewFields("icon", "🔑")}}
	var buf bytes.Buffer
	err := Encode(&buf, records, FormatText, Options{Charset: CharsetWindows1251})
	assert.Error(t, err)
}

func TestDecode_StripsUTF8BOM(t *testing.T) {
	doc := "\ufeff" + `[{"name": "A", "data": {"k": "v"}}]`
	got, err := Decode(strings.NewReader(doc), FormatJSON, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)

	text := "\ufeffName: A\n    k:\n        v\n"
	got, err = Decode(strings.NewReader(text), FormatText, Options{Charset: CharsetUTF8})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
}

func TestDecode_UnknownFormat(t *testing.T) {
	_, err := Decode(strings.NewReader(""), Format("csv"), Options{})
	var ferr *UnsupportedFormatError
	assert.ErrorAs(t, err, &ferr)
}
