package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qaforge/internal/parser"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapses inner spaces", "a    b\t\tc", "a b c"},
		{"keeps indentation", "list:\n    - nested", "list:\n    - nested"},
		{"trims trailing space", "line   \nnext\t", "line\nnext"},
		{"squeezes blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"whitespace-only lines are blank", "a\n   \n\t\nb", "a\n\nb"},
		{"drops control characters", "a\x00b\x1fc\x7fd\u0085e", "abcde"},
		{"normalizes line endings", "a\r\nb\rc", "a\nb\nc"},
		{"trims the text", "\n\n  hello  \n\n", "hello"},
		{"keeps code fences", "```go\nfunc main() {}\n```", "```go\nfunc main() {}\n```"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parser.Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"  # Title\r\n\r\n\r\n  *  item   one\t\n\x01\x02",
		"\t\tindented\n\n\n\n     nbsp  run",
		"mixed   separators\u0085 and \x1b[0m escapes",
		"invalid \xff utf8",
	}
	for _, in := range inputs {
		once := parser.Normalize(in)
		assert.Equal(t, once, parser.Normalize(once))
	}
}
