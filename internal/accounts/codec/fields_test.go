package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields_SetKeepsPosition(t *testing.T) {
	f := NewFields("a", "1", "b", "2", "c", "3")
	f.Set("b", "20")
	f.Set("d", "4")

	assert.Equal(t, []string{"a", "b", "c", "d"}, f.Keys())
	v, ok := f.Get("b")
	require.True(t, ok)
	assert.Equal(t, "20", v)
}

func TestFields_Delete(t *testing.T) {
	f := NewFields("a", "1", "b", "2")
	f.Delete("a")
	f.Delete("missing")

	assert.Equal(t, []string{"b"}, f.Keys())
	_, ok := f.Get("a")
	assert.False(t, ok)
}

func TestFields_NilIsEmpty(t *testing.T) {
	var f *Fields
	assert.Equal(t, 0, f.Len())
	assert.Nil(t, f.Keys())
	for range f.All() {
		t.Fatal("nil Fields must not yield")
	}
	assert.True(t, f.Equal(NewFields()))
}

func TestFields_EqualIsOrderSensitive(t *testing.T) {
	assert.True(t, NewFields("a", "1", "b", "2").Equal(NewFields("a", "1", "b", "2")))
	assert.False(t, NewFields("a", "1", "b", "2").Equal(NewFields("b", "2", "a", "1")))
	assert.False(t, NewFields("a", "1").Equal(NewFields("a", "2")))
}

func TestFields_JSON(t *testing.T) {
	f := NewFields("zeta", "1", "alpha", "b")
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"1","alpha":"b"}`, string(raw))

	var back Fields
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, f.Equal(&back))

	err = json.Unmarshal([]byte(`{"pin": 1234}`), &back)
	assert.Error(t, err)
}

func TestFields_ScanValue(t *testing.T) {
	f := NewFields("Login", "user")
	v, err := f.Value()
	require.NoError(t, err)

	var scanned Fields
	require.NoError(t, scanned.Scan(v))
	assert.True(t, f.Equal(&scanned))

	require.NoError(t, scanned.Scan(`{"x":"y"}`))
	assert.Equal(t, []string{"x"}, scanned.Keys())

	assert.Error(t, scanned.Scan(42))
}

func TestFields_Clone(t *testing.T) {
	f := NewFields("a", "1")
	c := f.Clone()
	c.Set("a", "2")

	v, _ := f.Get("a")
	assert.Equal(t, "1", v)
}
