package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/gotmplparse/pkg/lexer"
)

// collect runs the lexer over input and gathers items until EOF or an
// error item.
func collect(input string) []lexer.Item {
	l := lexer.New(input)
	var items []lexer.Item
	for {
		it := l.Next()
		items = append(items, it)
		if it.Typ == lexer.ItemEOF || it.Typ == lexer.ItemError {
			return items
		}
	}
}

// compareItems checks types and values, ignoring positions and lines.
func compareItems(t *testing.T, expected, actual []lexer.Item) {
	t.Helper()
	require.Equal(t, len(expected), len(actual), "number of items should match: %v", actual)
	for i := range expected {
		assert.Equal(t, expected[i].Typ, actual[i].Typ, "item type at index %d (%s)", i, actual[i])
		assert.Equal(t, expected[i].Val, actual[i].Val, "item value at index %d", i)
	}
}

func mk(typ lexer.ItemType, val string) lexer.Item {
	return lexer.Item{Typ: typ, Val: val}
}

var (
	tEOF     = mk(lexer.ItemEOF, "")
	tLeft    = mk(lexer.ItemLeftDelim, "{{")
	tRight   = mk(lexer.ItemRightDelim, "}}")
	tSpace   = mk(lexer.ItemSpace, " ")
	tPipe    = mk(lexer.ItemPipe, "|")
	tDeclare = mk(lexer.ItemDeclare, ":=")
	tComma   = mk(lexer.ItemComma, ",")
	tDot     = mk(lexer.ItemDot, ".")
	tLparen  = mk(lexer.ItemLeftParen, "(")
	tRparen  = mk(lexer.ItemRightParen, ")")
)

func TestLexer(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []lexer.Item
	}{
		{
			name:     "empty",
			input:    "",
			expected: []lexer.Item{tEOF},
		},
		{
			name:     "plain_text",
			input:    "hello world",
			expected: []lexer.Item{mk(lexer.ItemText, "hello world"), tEOF},
		},
		{
			name:  "simple_field_action",
			input: "{{.Field}}",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemField, ".Field"), tRight, tEOF,
			},
		},
		{
			name:  "dotted_field_is_two_items",
			input: "{{.a.b}}",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemField, ".a"), mk(lexer.ItemField, ".b"), tRight, tEOF,
			},
		},
		{
			name:  "pipeline",
			input: "{{ .a | upper }}",
			expected: []lexer.Item{
				tLeft, tSpace, mk(lexer.ItemField, ".a"), tSpace, tPipe, tSpace,
				mk(lexer.ItemIdentifier, "upper"), tSpace, tRight, tEOF,
			},
		},
		{
			name:  "keywords",
			input: "{{if .}}x{{end}}",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemIf, "if"), tSpace, tDot, tRight,
				mk(lexer.ItemText, "x"),
				tLeft, mk(lexer.ItemEnd, "end"), tRight, tEOF,
			},
		},
		{
			name:  "declaration",
			input: "{{$x := 1}}",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemVariable, "$x"), tSpace, tDeclare, tSpace,
				mk(lexer.ItemNumber, "1"), tRight, tEOF,
			},
		},
		{
			name:  "range_two_variables",
			input: "{{range $i, $v := .}}{{end}}",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemRange, "range"), tSpace,
				mk(lexer.ItemVariable, "$i"), tComma, tSpace,
				mk(lexer.ItemVariable, "$v"), tSpace, tDeclare, tSpace,
				tDot, tRight,
				tLeft, mk(lexer.ItemEnd, "end"), tRight, tEOF,
			},
		},
		{
			name:  "bare_dollar",
			input: "{{$}}",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemVariable, "$"), tRight, tEOF,
			},
		},
		{
			name:  "strings_and_constants",
			input: "{{ \"hi\" `raw` 'c' true nil }}",
			expected: []lexer.Item{
				tLeft, tSpace, mk(lexer.ItemString, `"hi"`), tSpace,
				mk(lexer.ItemRawString, "`raw`"), tSpace,
				mk(lexer.ItemCharConstant, "'c'"), tSpace,
				mk(lexer.ItemBool, "true"), tSpace,
				mk(lexer.ItemNil, "nil"), tSpace, tRight, tEOF,
			},
		},
		{
			name:  "numbers",
			input: "{{1 -2.5 0x1F 1e3}}",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemNumber, "1"), tSpace,
				mk(lexer.ItemNumber, "-2.5"), tSpace,
				mk(lexer.ItemNumber, "0x1F"), tSpace,
				mk(lexer.ItemNumber, "1e3"), tRight, tEOF,
			},
		},
		{
			name:  "parens",
			input: "{{(.x)}}",
			expected: []lexer.Item{
				tLeft, tLparen, mk(lexer.ItemField, ".x"), tRparen, tRight, tEOF,
			},
		},
		{
			name:  "block_define_template",
			input: `{{block "b" .}}{{define "d"}}{{template "t"}}`,
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemBlock, "block"), tSpace, mk(lexer.ItemString, `"b"`), tSpace, tDot, tRight,
				tLeft, mk(lexer.ItemDefine, "define"), tSpace, mk(lexer.ItemString, `"d"`), tRight,
				tLeft, mk(lexer.ItemTemplate, "template"), tSpace, mk(lexer.ItemString, `"t"`), tRight, tEOF,
			},
		},
		{
			name:  "trim_markers",
			input: "a {{- .x -}} b",
			expected: []lexer.Item{
				mk(lexer.ItemText, "a"),
				tLeft, mk(lexer.ItemField, ".x"), tRight,
				mk(lexer.ItemText, "b"), tEOF,
			},
		},
		{
			name:  "comment_emits_nothing",
			input: "x{{/* a comment */}}y",
			expected: []lexer.Item{
				mk(lexer.ItemText, "x"), mk(lexer.ItemText, "y"), tEOF,
			},
		},
		{
			name:  "unclosed_action",
			input: "{{.x",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemField, ".x"), mk(lexer.ItemError, "unclosed action"),
			},
		},
		{
			name:  "unterminated_string",
			input: `{{"x}}`,
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemError, "unterminated quoted string"),
			},
		},
		{
			name:  "bad_number",
			input: "{{3k}}",
			expected: []lexer.Item{
				tLeft, mk(lexer.ItemError, `bad number syntax: "3k"`),
			},
		},
		{
			name:  "unbalanced_right_paren",
			input: "{{)}}",
			expected: []lexer.Item{
				tLeft, tRparen, mk(lexer.ItemError, "unexpected right paren"),
			},
		},
		{
			name:  "unclosed_left_paren",
			input: "{{(.x}}",
			expected: []lexer.Item{
				tLeft, tLparen, mk(lexer.ItemField, ".x"), mk(lexer.ItemError, "unclosed left paren"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compareItems(t, tt.expected, collect(tt.input))
		})
	}
}

func TestLexerLineNumbers(t *testing.T) {
	l := lexer.New("a\nb{{.x}}\n{{.y}}")

	it := l.Next()
	require.Equal(t, lexer.ItemText, it.Typ)
	require.Equal(t, 1, it.Line, "text item carries its starting line")

	it = l.Next()
	require.Equal(t, lexer.ItemLeftDelim, it.Typ)
	require.Equal(t, 2, it.Line)

	it = l.Next()
	require.Equal(t, lexer.ItemField, it.Typ)
	require.Equal(t, 2, it.Line)

	// skip "}}" and the newline text
	require.Equal(t, lexer.ItemRightDelim, l.Next().Typ)
	require.Equal(t, lexer.ItemText, l.Next().Typ)

	it = l.Next()
	require.Equal(t, lexer.ItemLeftDelim, it.Typ)
	require.Equal(t, 3, it.Line)
}

func TestLexerPositions(t *testing.T) {
	l := lexer.New("ab{{.x}}")

	it := l.Next()
	require.Equal(t, 0, it.Pos)
	it = l.Next() // "{{"
	require.Equal(t, 2, it.Pos)
	it = l.Next() // ".x"
	require.Equal(t, 4, it.Pos)
}

func TestLexerEOFIsSticky(t *testing.T) {
	l := lexer.New("x")
	require.Equal(t, lexer.ItemText, l.Next().Typ)
	require.Equal(t, lexer.ItemEOF, l.Next().Typ)
	require.Equal(t, lexer.ItemEOF, l.Next().Typ)
}
