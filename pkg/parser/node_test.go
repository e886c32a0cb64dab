package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/gotmplparse/pkg/parser"
)

// firstNode parses input and returns the sole node of the top-level list.
func firstNode(t *testing.T, input string, funcs ...string) parser.Node {
	t.Helper()
	trees, err := parser.Parse("t", input, funcs...)
	require.NoError(t, err)
	require.Len(t, trees["t"].Root.Nodes, 1)
	return trees["t"].Root.Nodes[0]
}

func TestNodeTypes(t *testing.T) {
	tests := []struct {
		input    string
		typ      parser.NodeType
		rendered string
	}{
		{input: "plain", typ: parser.NodeText, rendered: "plain"},
		{input: "{{.}}", typ: parser.NodeAction, rendered: "{{.}}"},
		{input: "{{if .}}x{{end}}", typ: parser.NodeIf, rendered: "{{if .}}x{{end}}"},
		{input: "{{range .}}x{{end}}", typ: parser.NodeRange, rendered: "{{range .}}x{{end}}"},
		{input: "{{with .}}x{{end}}", typ: parser.NodeWith, rendered: "{{with .}}x{{end}}"},
		{input: `{{template "x"}}`, typ: parser.NodeTemplate, rendered: `{{template "x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node := firstNode(t, tt.input)
			assert.Equal(t, tt.typ, node.Type())
			assert.Equal(t, tt.rendered, node.String())
		})
	}
}

func TestPipeNodeString(t *testing.T) {
	node := firstNode(t, "{{$v := .a | print .b}}", "print")
	action, ok := node.(*parser.ActionNode)
	require.True(t, ok)

	pipe := action.Pipe
	require.Len(t, pipe.Decl, 1)
	require.Len(t, pipe.Cmds, 2)
	assert.Equal(t, "$v := .a | print .b", pipe.String())
}

func TestVariableNodeIdent(t *testing.T) {
	trees, err := parser.Parse("t", "{{$x := .}}{{$x.a.b}}")
	require.NoError(t, err)

	action := trees["t"].Root.Nodes[1].(*parser.ActionNode)
	v, ok := action.Pipe.Cmds[0].Args[0].(*parser.VariableNode)
	require.True(t, ok)
	assert.Equal(t, []string{"$x", "a", "b"}, v.Ident)
}

func TestFieldNodeIdent(t *testing.T) {
	node := firstNode(t, "{{.Name.First}}")
	action := node.(*parser.ActionNode)

	f, ok := action.Pipe.Cmds[0].Args[0].(*parser.FieldNode)
	require.True(t, ok)
	assert.Equal(t, []string{"Name", "First"}, f.Ident)
	assert.Equal(t, ".Name.First", f.String())
}

func TestNodePositions(t *testing.T) {
	trees, err := parser.Parse("t", "abc{{.x}}")
	require.NoError(t, err)

	root := trees["t"].Root
	require.Len(t, root.Nodes, 2)
	assert.Equal(t, parser.Pos(0), root.Nodes[0].Position())

	action := root.Nodes[1].(*parser.ActionNode)
	field := action.Pipe.Cmds[0].Args[0]
	assert.Equal(t, parser.Pos(5), field.Position(), "field position is its byte offset")
}

func TestIsEmptyTree(t *testing.T) {
	tests := []struct {
		name  string
		input string
		empty bool
	}{
		{name: "nothing", input: "", empty: true},
		{name: "whitespace", input: " \n\t ", empty: true},
		{name: "text", input: "x", empty: false},
		{name: "action", input: "{{.}}", empty: false},
		{name: "whitespace_and_action", input: "  {{.}}  ", empty: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trees, err := parser.Parse("t", tt.input)
			require.NoError(t, err)

			empty, err := parser.IsEmptyTree(trees["t"].Root)
			require.NoError(t, err)
			assert.Equal(t, tt.empty, empty)
		})
	}
}

func TestTreeIDsOnNodes(t *testing.T) {
	trees, err := parser.Parse("top", `{{.x}}{{define "a"}}{{.y}}{{end}}`)
	require.NoError(t, err)

	topAction := trees["top"].Root.Nodes[0].(*parser.ActionNode)
	assert.Equal(t, parser.TreeID(1), topAction.TreeID)

	defAction := trees["a"].Root.Nodes[0].(*parser.ActionNode)
	assert.Equal(t, parser.TreeID(2), defAction.TreeID)
}
