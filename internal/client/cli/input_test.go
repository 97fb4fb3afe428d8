package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	require.Error(t, err)
}

func TestConfirm(t *testing.T) {
	old := isTerminal
	t.Cleanup(func() { isTerminal = old })

	isTerminal = func(int) bool { return false }
	assert.True(t, Confirm(rdr(""), "Sure?", &bytes.Buffer{}), "no terminal means yes")

	isTerminal = func(int) bool { return true }
	assert.True(t, Confirm(rdr("y\n"), "Sure?", &bytes.Buffer{}))
	assert.True(t, Confirm(rdr("Oui\n"), "Sure?", &bytes.Buffer{}))
	assert.False(t, Confirm(rdr("\n"), "Sure?", &bytes.Buffer{}))
	assert.False(t, Confirm(rdr(""), "Sure?", &bytes.Buffer{}))
}

func TestGetFields(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "Unix newlines, stop on empty line", input: "a=1\nb=2\n\n", expected: []string{"a=1", "b=2"}},
		{name: "Windows CRLF, stop on empty line", input: "a=1\r\nb=2\r\n\r\n", expected: []string{"a=1", "b=2"}},
		{name: "Immediate blank line gives empty slice", input: "\n", expected: []string{}},
		{name: "EOF without trailing blank line", input: "a=1\nb=2", expected: []string{"a=1", "b=2"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GetFields(rdr(tc.input), &bytes.Buffer{})
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestFieldsJSON(t *testing.T) {
	b, err := FieldsJSON([]string{
		"nom=Procédure achats",
		"exclusion=true",
		"responsabilites={\"r\":[\"m1\"]}",
		"atteinte = C ",
		"numero=12",
		"note=a=b",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"nom": "Procédure achats",
		"exclusion": true,
		"responsabilites": {"r": ["m1"]},
		"atteinte": "C",
		"numero": "12",
		"note": "a=b"
	}`, string(b))

	_, err = FieldsJSON([]string{"novalue"})
	require.Error(t, err)
	_, err = FieldsJSON([]string{"=x"})
	require.Error(t, err)
}
