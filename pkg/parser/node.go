package parser

import (
	"strconv"
	"strings"

	"github.com/walteh/gotmplparse/pkg/lexer"
	"gitlab.com/tozd/go/errors"
)

// Pos is a byte offset into the original template text.
type Pos int

// Position returns itself; it is embedded in every node so the node
// satisfies the Node interface.
func (p Pos) Position() Pos { return p }

// NodeType identifies the variant of a parse tree node.
type NodeType int

// Type returns itself; it is embedded in every node.
func (t NodeType) Type() NodeType { return t }

const (
	NodeText NodeType = iota // plain text
	NodeAction               // a non-control action such as a field evaluation
	NodeBool                 // a boolean constant
	NodeChain                // a sequence of field accesses on a term
	NodeCommand              // an element of a pipeline
	NodeDot                  // the cursor, dot
	NodeElse                 // an else action
	NodeEnd                  // an end action
	NodeField                // a field or method name, starting with '.'
	NodeIdentifier           // an identifier; always a function name
	NodeIf                   // an if action
	NodeList                 // a list of nodes
	NodeNil                  // the untyped nil constant
	NodeNumber               // a numeric constant
	NodePipe                 // a pipeline of commands
	NodeRange                // a range action
	NodeString               // a string constant
	NodeTemplate             // a template invocation action
	NodeVariable             // a '$' variable
	NodeWith                 // a with action
)

// Node is an element in the parse tree. The set of implementations is
// closed: every node the parser produces is one of the types below.
type Node interface {
	Type() NodeType
	Position() Pos
	// String renders the node back to the template source form it was
	// parsed from.
	String() string
	writeTo(*strings.Builder)
}

// ListNode holds a sequence of nodes.
type ListNode struct {
	NodeType
	Pos
	TreeID TreeID
	Nodes  []Node
}

func newList(tr TreeID, pos Pos) *ListNode {
	return &ListNode{NodeType: NodeList, Pos: pos, TreeID: tr}
}

func (l *ListNode) append(n Node) {
	l.Nodes = append(l.Nodes, n)
}

func (l *ListNode) String() string {
	var sb strings.Builder
	l.writeTo(&sb)
	return sb.String()
}

func (l *ListNode) writeTo(sb *strings.Builder) {
	for _, n := range l.Nodes {
		n.writeTo(sb)
	}
}

// TextNode holds plain text.
type TextNode struct {
	NodeType
	Pos
	TreeID TreeID
	Text   string
}

func newText(tr TreeID, pos Pos, text string) *TextNode {
	return &TextNode{NodeType: NodeText, Pos: pos, TreeID: tr, Text: text}
}

func (t *TextNode) String() string { return t.Text }

func (t *TextNode) writeTo(sb *strings.Builder) { sb.WriteString(t.Text) }

// ActionNode holds an action (something bounded by delimiters) that is not
// a control construct.
type ActionNode struct {
	NodeType
	Pos
	TreeID TreeID
	Pipe   *PipeNode
}

func newAction(tr TreeID, pos Pos, pipe *PipeNode) *ActionNode {
	return &ActionNode{NodeType: NodeAction, Pos: pos, TreeID: tr, Pipe: pipe}
}

func (a *ActionNode) String() string {
	var sb strings.Builder
	a.writeTo(&sb)
	return sb.String()
}

func (a *ActionNode) writeTo(sb *strings.Builder) {
	sb.WriteString("{{")
	a.Pipe.writeTo(sb)
	sb.WriteString("}}")
}

// PipeNode holds a pipeline with optional declarations.
type PipeNode struct {
	NodeType
	Pos
	TreeID TreeID
	Decl   []*VariableNode
	Cmds   []*CommandNode
}

func newPipe(tr TreeID, pos Pos, decl []*VariableNode) *PipeNode {
	return &PipeNode{NodeType: NodePipe, Pos: pos, TreeID: tr, Decl: decl}
}

func (p *PipeNode) append(c *CommandNode) {
	p.Cmds = append(p.Cmds, c)
}

func (p *PipeNode) String() string {
	var sb strings.Builder
	p.writeTo(&sb)
	return sb.String()
}

func (p *PipeNode) writeTo(sb *strings.Builder) {
	if len(p.Decl) > 0 {
		for i, v := range p.Decl {
			if i > 0 {
				sb.WriteString(", ")
			}
			v.writeTo(sb)
		}
		sb.WriteString(" := ")
	}
	for i, c := range p.Cmds {
		if i > 0 {
			sb.WriteString(" | ")
		}
		c.writeTo(sb)
	}
}

// CommandNode holds a command: a space-separated list of operands.
type CommandNode struct {
	NodeType
	Pos
	TreeID TreeID
	Args   []Node
}

func newCommand(tr TreeID, pos Pos) *CommandNode {
	return &CommandNode{NodeType: NodeCommand, Pos: pos, TreeID: tr}
}

func (c *CommandNode) append(n Node) {
	c.Args = append(c.Args, n)
}

func (c *CommandNode) String() string {
	var sb strings.Builder
	c.writeTo(&sb)
	return sb.String()
}

func (c *CommandNode) writeTo(sb *strings.Builder) {
	for i, arg := range c.Args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if arg, ok := arg.(*PipeNode); ok {
			sb.WriteByte('(')
			arg.writeTo(sb)
			sb.WriteByte(')')
			continue
		}
		arg.writeTo(sb)
	}
}

// IdentifierNode holds an identifier, always the name of a known function.
type IdentifierNode struct {
	NodeType
	Pos
	TreeID TreeID
	Ident  string
}

func newIdentifier(tr TreeID, pos Pos, ident string) *IdentifierNode {
	return &IdentifierNode{NodeType: NodeIdentifier, Pos: pos, TreeID: tr, Ident: ident}
}

func (i *IdentifierNode) String() string { return i.Ident }

func (i *IdentifierNode) writeTo(sb *strings.Builder) { sb.WriteString(i.Ident) }

// VariableNode holds a list of variable names, possibly with chained field
// accesses. The dollar sign is part of the first name.
type VariableNode struct {
	NodeType
	Pos
	TreeID TreeID
	Ident  []string
}

func newVariable(tr TreeID, pos Pos, ident string) *VariableNode {
	return &VariableNode{NodeType: NodeVariable, Pos: pos, TreeID: tr, Ident: strings.Split(ident, ".")}
}

func (v *VariableNode) String() string {
	return strings.Join(v.Ident, ".")
}

func (v *VariableNode) writeTo(sb *strings.Builder) { sb.WriteString(v.String()) }

// DotNode holds the special identifier '.'.
type DotNode struct {
	NodeType
	Pos
	TreeID TreeID
}

func newDot(tr TreeID, pos Pos) *DotNode {
	return &DotNode{NodeType: NodeDot, Pos: pos, TreeID: tr}
}

func (d *DotNode) String() string { return "." }

func (d *DotNode) writeTo(sb *strings.Builder) { sb.WriteByte('.') }

// NilNode holds the special identifier 'nil' representing the untyped nil.
type NilNode struct {
	NodeType
	Pos
	TreeID TreeID
}

func newNil(tr TreeID, pos Pos) *NilNode {
	return &NilNode{NodeType: NodeNil, Pos: pos, TreeID: tr}
}

func (n *NilNode) String() string { return "nil" }

func (n *NilNode) writeTo(sb *strings.Builder) { sb.WriteString("nil") }

// FieldNode holds a field chain (identifiers starting with '.'). The names
// are stored without the leading dot.
type FieldNode struct {
	NodeType
	Pos
	TreeID TreeID
	Ident  []string
}

func newField(tr TreeID, pos Pos, ident string) *FieldNode {
	// ident starts with '.'
	return &FieldNode{NodeType: NodeField, Pos: pos, TreeID: tr, Ident: strings.Split(ident[1:], ".")}
}

func (f *FieldNode) String() string {
	var sb strings.Builder
	f.writeTo(&sb)
	return sb.String()
}

func (f *FieldNode) writeTo(sb *strings.Builder) {
	for _, id := range f.Ident {
		sb.WriteByte('.')
		sb.WriteString(id)
	}
}

// ChainNode holds a term followed by field accesses. The names are stored
// without the leading dot.
type ChainNode struct {
	NodeType
	Pos
	TreeID TreeID
	Node   Node
	Field  []string
}

func newChain(tr TreeID, pos Pos, node Node) *ChainNode {
	return &ChainNode{NodeType: NodeChain, Pos: pos, TreeID: tr, Node: node}
}

// Add adds the named field (which should start with a period) to the end of
// the chain.
func (c *ChainNode) Add(field string) {
	if len(field) == 0 || field[0] != '.' {
		panic("no dot in field")
	}
	field = field[1:]
	if field == "" {
		panic("empty field")
	}
	c.Field = append(c.Field, field)
}

func (c *ChainNode) String() string {
	var sb strings.Builder
	c.writeTo(&sb)
	return sb.String()
}

func (c *ChainNode) writeTo(sb *strings.Builder) {
	if _, ok := c.Node.(*PipeNode); ok {
		sb.WriteByte('(')
		c.Node.writeTo(sb)
		sb.WriteByte(')')
	} else {
		c.Node.writeTo(sb)
	}
	for _, field := range c.Field {
		sb.WriteByte('.')
		sb.WriteString(field)
	}
}

// BoolNode holds a boolean constant.
type BoolNode struct {
	NodeType
	Pos
	TreeID TreeID
	True   bool
}

func newBool(tr TreeID, pos Pos, val bool) *BoolNode {
	return &BoolNode{NodeType: NodeBool, Pos: pos, TreeID: tr, True: val}
}

func (b *BoolNode) String() string {
	if b.True {
		return "true"
	}
	return "false"
}

func (b *BoolNode) writeTo(sb *strings.Builder) { sb.WriteString(b.String()) }

// NumberNode holds a number: signed or unsigned integer or float. The value
// is parsed and stored under all the types that can represent it.
type NumberNode struct {
	NodeType
	Pos
	TreeID  TreeID
	IsInt   bool
	IsUint  bool
	IsFloat bool
	Int64   int64
	Uint64  uint64
	Float64 float64
	Text    string // the original textual representation from the input
}

func newNumber(tr TreeID, pos Pos, text string, typ lexer.ItemType) (*NumberNode, error) {
	n := &NumberNode{NodeType: NodeNumber, Pos: pos, TreeID: tr, Text: text}
	if typ == lexer.ItemCharConstant {
		r, _, tail, err := strconv.UnquoteChar(text[1:], text[0])
		if err != nil {
			return nil, err
		}
		if tail != "'" {
			return nil, errors.Errorf("malformed character constant: %s", text)
		}
		n.IsInt = true
		n.Int64 = int64(r)
		n.IsUint = true
		n.Uint64 = uint64(r)
		n.IsFloat = true
		n.Float64 = float64(r)
		return n, nil
	}
	u, err := strconv.ParseUint(text, 0, 64) // will fail for -0
	n.IsUint = err == nil
	n.Uint64 = u
	i, err := strconv.ParseInt(text, 0, 64)
	n.IsInt = err == nil
	n.Int64 = i
	if n.IsInt {
		n.IsFloat = true
		n.Float64 = float64(n.Int64)
	} else if n.IsUint {
		n.IsFloat = true
		n.Float64 = float64(n.Uint64)
	} else {
		f, err := strconv.ParseFloat(text, 64)
		if err == nil {
			// If we parsed it as a float but it looks like an integer,
			// it's a huge number too large to fit in an int. Reject it.
			if !strings.ContainsAny(text, ".eE") {
				return nil, errors.Errorf("integer overflow: %q", text)
			}
			n.IsFloat = true
			n.Float64 = f
		}
	}
	if !n.IsInt && !n.IsUint && !n.IsFloat {
		return nil, errors.Errorf("illegal number syntax: %q", text)
	}
	return n, nil
}

func (n *NumberNode) String() string { return n.Text }

func (n *NumberNode) writeTo(sb *strings.Builder) { sb.WriteString(n.Text) }

// StringNode holds a string constant. The value has been unquoted.
type StringNode struct {
	NodeType
	Pos
	TreeID TreeID
	Quoted string // the original text of the string, with quotes
	Text   string // the string, after quote processing
}

func newString(tr TreeID, pos Pos, quoted, text string) *StringNode {
	return &StringNode{NodeType: NodeString, Pos: pos, TreeID: tr, Quoted: quoted, Text: text}
}

func (s *StringNode) String() string { return s.Quoted }

func (s *StringNode) writeTo(sb *strings.Builder) { sb.WriteString(s.Quoted) }

// EndNode represents an {{end}} action. It does not appear in the final
// parse tree; it terminates an item list.
type EndNode struct {
	NodeType
	Pos
	TreeID TreeID
}

func newEnd(tr TreeID, pos Pos) *EndNode {
	return &EndNode{NodeType: NodeEnd, Pos: pos, TreeID: tr}
}

func (e *EndNode) String() string { return "{{end}}" }

func (e *EndNode) writeTo(sb *strings.Builder) { sb.WriteString(e.String()) }

// ElseNode represents an {{else}} action. Like EndNode it only terminates
// an item list.
type ElseNode struct {
	NodeType
	Pos
	TreeID TreeID
	Line   int
}

func newElse(tr TreeID, pos Pos, line int) *ElseNode {
	return &ElseNode{NodeType: NodeElse, Pos: pos, TreeID: tr, Line: line}
}

func (e *ElseNode) String() string { return "{{else}}" }

func (e *ElseNode) writeTo(sb *strings.Builder) { sb.WriteString(e.String()) }

// BranchNode is the common representation of if, range, and with.
type BranchNode struct {
	NodeType
	Pos
	TreeID   TreeID
	Pipe     *PipeNode // the pipeline to be evaluated
	List     *ListNode // what to execute if the value is non-empty
	ElseList *ListNode // what to execute if the value is empty, may be nil
}

func (b *BranchNode) String() string {
	var sb strings.Builder
	b.writeTo(&sb)
	return sb.String()
}

func (b *BranchNode) writeTo(sb *strings.Builder) {
	var name string
	switch b.NodeType {
	case NodeIf:
		name = "if"
	case NodeRange:
		name = "range"
	case NodeWith:
		name = "with"
	default:
		panic("unknown branch type")
	}
	sb.WriteString("{{")
	sb.WriteString(name)
	sb.WriteByte(' ')
	b.Pipe.writeTo(sb)
	sb.WriteString("}}")
	b.List.writeTo(sb)
	if b.ElseList != nil {
		sb.WriteString("{{else}}")
		b.ElseList.writeTo(sb)
	}
	sb.WriteString("{{end}}")
}

// IfNode represents an {{if}} action and its commands.
type IfNode struct {
	BranchNode
}

func newIf(tr TreeID, pos Pos, pipe *PipeNode, list, elseList *ListNode) *IfNode {
	return &IfNode{BranchNode{NodeType: NodeIf, Pos: pos, TreeID: tr, Pipe: pipe, List: list, ElseList: elseList}}
}

// RangeNode represents a {{range}} action and its commands.
type RangeNode struct {
	BranchNode
}

func newRange(tr TreeID, pos Pos, pipe *PipeNode, list, elseList *ListNode) *RangeNode {
	return &RangeNode{BranchNode{NodeType: NodeRange, Pos: pos, TreeID: tr, Pipe: pipe, List: list, ElseList: elseList}}
}

// WithNode represents a {{with}} action and its commands.
type WithNode struct {
	BranchNode
}

func newWith(tr TreeID, pos Pos, pipe *PipeNode, list, elseList *ListNode) *WithNode {
	return &WithNode{BranchNode{NodeType: NodeWith, Pos: pos, TreeID: tr, Pipe: pipe, List: list, ElseList: elseList}}
}

// TemplateNode represents a {{template}} invocation. The name is either a
// string constant or, when dynamic template names are enabled, a pipeline
// evaluated at execution time.
type TemplateNode struct {
	NodeType
	Pos
	TreeID   TreeID
	Name     string    // the name of the template, if static
	NamePipe *PipeNode // the pipeline producing the name, if dynamic
	Pipe     *PipeNode // the command to evaluate as the argument, may be nil
}

func newTemplate(tr TreeID, pos Pos, name string, namePipe, pipe *PipeNode) *TemplateNode {
	return &TemplateNode{NodeType: NodeTemplate, Pos: pos, TreeID: tr, Name: name, NamePipe: namePipe, Pipe: pipe}
}

func (t *TemplateNode) String() string {
	var sb strings.Builder
	t.writeTo(&sb)
	return sb.String()
}

func (t *TemplateNode) writeTo(sb *strings.Builder) {
	sb.WriteString("{{template ")
	if t.NamePipe != nil {
		sb.WriteByte('(')
		t.NamePipe.writeTo(sb)
		sb.WriteByte(')')
	} else {
		sb.WriteString(strconv.Quote(t.Name))
	}
	if t.Pipe != nil {
		sb.WriteByte(' ')
		t.Pipe.writeTo(sb)
	}
	sb.WriteString("}}")
}

// IsEmptyTree reports whether this tree (node) is empty of everything but
// space or comments. It returns an error for node kinds that cannot appear
// at the top level of a tree body.
func IsEmptyTree(n Node) (bool, error) {
	switch n := n.(type) {
	case nil:
		return true, nil
	case *ListNode:
		for _, node := range n.Nodes {
			empty, err := IsEmptyTree(node)
			if err != nil {
				return false, err
			}
			if !empty {
				return false, nil
			}
		}
		return true, nil
	case *TextNode:
		return len(strings.TrimSpace(n.Text)) == 0, nil
	case *ActionNode, *IfNode, *RangeNode, *TemplateNode, *WithNode:
		return false, nil
	}
	return false, errors.Errorf("unknown node %s in tree", n)
}
