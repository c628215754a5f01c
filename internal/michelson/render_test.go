package michelson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) Node {
	t.Helper()
	node, err := Parse([]byte(raw))
	require.NoError(t, err)
	return node
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "int literal",
			input:    `{"int": "42"}`,
			expected: `42`,
		},
		{
			name:     "string literal",
			input:    `{"string": "hello"}`,
			expected: `"hello"`,
		},
		{
			name:     "bytes literal",
			input:    `{"bytes": "deadbeef"}`,
			expected: `0xdeadbeef`,
		},
		{
			name:     "bare primitive",
			input:    `{"prim": "unit"}`,
			expected: `unit`,
		},
		{
			name:     "primitive with args",
			input:    `{"prim": "pair", "args": [{"prim": "int"}, {"prim": "nat"}]}`,
			expected: `pair int nat`,
		},
		{
			name:     "nested application is grouped",
			input:    `{"prim": "pair", "args": [{"prim": "option", "args": [{"prim": "int"}]}, {"prim": "nat"}]}`,
			expected: `pair (option int) nat`,
		},
		{
			name:     "annotations come before args",
			input:    `{"prim": "pair", "annots": ["%balance"], "args": [{"prim": "int"}, {"prim": "nat"}]}`,
			expected: `pair %balance int nat`,
		},
		{
			name:     "empty sequence",
			input:    `[]`,
			expected: `{}`,
		},
		{
			name:     "instruction sequence",
			input:    `[{"prim": "CDR"}, {"prim": "NIL", "args": [{"prim": "operation"}]}, {"prim": "PAIR"}]`,
			expected: `{ CDR ; NIL operation ; PAIR }`,
		},
		{
			name:     "nested sequence",
			input:    `[{"prim": "IF_LEFT", "args": [[{"prim": "DROP"}], [{"prim": "SWAP"}]]}]`,
			expected: `{ IF_LEFT { DROP } { SWAP } }`,
		},
		{
			name:     "push with literal",
			input:    `[{"prim": "PUSH", "args": [{"prim": "int"}, {"int": "1"}]}]`,
			expected: `{ PUSH int 1 }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Render(mustParse(t, tt.input)))
		})
	}
}

func TestRenderSchema(t *testing.T) {
	script := `[
		{"prim": "parameter", "args": [{"prim": "unit"}]},
		{"prim": "storage", "args": [{"prim": "int"}]},
		{"prim": "code", "args": [[{"prim": "CDR"}, {"prim": "NIL", "args": [{"prim": "operation"}]}, {"prim": "PAIR"}]]}
	]`

	expected := "parameter unit;\nstorage int;\ncode { CDR ; NIL operation ; PAIR };"
	assert.Equal(t, expected, RenderSchema(mustParse(t, script)))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"foo": 1}`))
	require.Error(t, err)

	_, err = Parse([]byte(`12`))
	require.Error(t, err)

	_, err = Parse([]byte(`not json`))
	require.Error(t, err)
}
