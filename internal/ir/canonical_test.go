package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"b": 1,
		"a": "x",
		"c": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":true}`, string(out))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+E000
	// in UTF-16 even though its UTF-8 encoding sorts after.
	out, err := MarshalCanonical(map[string]any{
		"\uE000":     1,
		"\U0001F600": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uE000\":1}", string(out))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	out, err := MarshalCanonical("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(out))
}

func TestMarshalCanonical_EscapesControlCharacters(t *testing.T) {
	out, err := MarshalCanonical("q\"b\\n\nt\tz\x01")
	require.NoError(t, err)
	assert.Equal(t, `"q\"b\\n\nt\tz\u0001"`, string(out))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	out, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(out))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
	assert.Equal(t, "\"\u00e9\"", string(composed))
}

func TestMarshalCanonical_Nested(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"list":  []any{int64(3), "x", []string{"b", "a"}},
		"env":   map[string]string{"Z": "1", "A": "2"},
		"empty": []any{},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"empty":[],"env":{"A":"2","Z":"1"},"list":[3,"x",["b","a"]]}`, string(out))
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.ErrorContains(t, err, "floats are forbidden")

	_, err = MarshalCanonical(map[string]any{"k": nil})
	assert.ErrorContains(t, err, "null is forbidden")

	_, err = MarshalCanonical(struct{}{})
	assert.ErrorContains(t, err, "unsupported type")
}
