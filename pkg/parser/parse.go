// Package parser builds parse trees for templates. The input is template
// text in the usual delimiter-bounded form ({{if .X}}...{{end}}); the
// output is a registry mapping template names to their trees, ready for a
// separate execution engine. Identifiers are validated against a set of
// known function names supplied at construction, so an unknown function is
// a parse error rather than a later evaluation failure.
package parser

import (
	"fmt"
	"strconv"

	"github.com/walteh/gotmplparse/pkg/lexer"
)

// TreeID identifies one tree within a parse. The top-level tree has id 1;
// nested definitions and blocks get fresh ids as they are encountered.
type TreeID int

// Tree is the parse unit for one named template: its root node plus the
// lexically scoped variable stack and the set of field paths the template
// references.
type Tree struct {
	Name   string
	ID     TreeID
	Root   *ListNode
	Fields map[string]bool // referenced field paths, e.g. ".Name.First"
	vars   []string        // variables currently in scope, in declaration order
}

func newTree(name string, id TreeID) *Tree {
	return &Tree{Name: name, ID: id, Fields: make(map[string]bool)}
}

// popVars truncates the variable stack back to length n, closing the scope
// of everything declared after that point.
func (t *Tree) popVars(n int) {
	t.vars = t.vars[:n]
}

// Parser consumes the token stream and builds the tree registry. A Parser
// is not safe for concurrent use; run independent parses on independent
// Parsers.
type Parser struct {
	// Name is the name of the top-level template, used as its registry key
	// and in error context when no tree is active.
	Name string
	// DynamicTemplates enables parenthesized pipelines as template names in
	// {{template}} actions. When disabled, attempting one is a
	// configuration error.
	DynamicTemplates bool

	funcs     map[string]bool
	lex       *lexer.Lexer
	line      int          // line of the most recently consumed token
	token     []lexer.Item // pushback buffer, front is the next token
	treeSet   map[string]*Tree
	treeID    TreeID
	maxTreeID TreeID // source of fresh ids for block definitions
	tree      *Tree
	treeStack []*Tree // suspended parents of the active tree
}

// New returns a Parser for the named template. The funcs are the known
// callable function names; identifiers outside this set fail the parse.
func New(name string, funcs ...string) *Parser {
	fm := make(map[string]bool, len(funcs))
	for _, f := range funcs {
		fm[f] = true
	}
	return &Parser{Name: name, funcs: fm}
}

// Parse is a convenience for New followed by Parser.Parse.
func Parse(name, text string, funcs ...string) (map[string]*Tree, error) {
	return New(name, funcs...).Parse(text)
}

// Parse parses the template text and returns the registry of completed
// trees, keyed by template name. The top-level tree is registered under the
// Parser's name; {{define}} and {{block}} add further entries. The first
// error aborts the parse.
func (p *Parser) Parse(text string) (map[string]*Tree, error) {
	p.lex = lexer.New(text)
	p.line = 0
	p.token = p.token[:0]
	p.tree = nil
	p.treeStack = p.treeStack[:0]
	p.treeID = 0
	p.maxTreeID = 0
	p.treeSet = make(map[string]*Tree)
	if err := p.parseTree(); err != nil {
		return nil, err
	}
	return p.treeSet, nil
}

// next returns the next token, preferring the pushback buffer, and records
// its line for diagnostics.
func (p *Parser) next() lexer.Item {
	var t lexer.Item
	if len(p.token) > 0 {
		t = p.token[0]
		p.token = p.token[1:]
	} else {
		t = p.lex.Next()
	}
	p.line = t.Line
	return t
}

func (p *Parser) pushFront(t lexer.Item) {
	p.token = append(p.token, lexer.Item{})
	copy(p.token[1:], p.token)
	p.token[0] = t
}

// backup pushes a token back onto the stream.
func (p *Parser) backup(t lexer.Item) {
	p.pushFront(t)
}

// backup2 pushes two tokens back in their original order.
func (p *Parser) backup2(t0, t1 lexer.Item) {
	p.pushFront(t1)
	p.pushFront(t0)
}

// backup3 pushes three tokens back in their original order. Three tokens of
// pushback is the most the grammar needs, for disambiguating variable
// declarations at the start of a pipeline.
func (p *Parser) backup3(t0, t1, t2 lexer.Item) {
	p.pushFront(t2)
	p.pushFront(t1)
	p.pushFront(t0)
}

// peek returns but does not consume the next token.
func (p *Parser) peek() lexer.Item {
	t := p.next()
	p.backup(t)
	return t
}

// nextNonSpace returns the next non-space token.
func (p *Parser) nextNonSpace() lexer.Item {
	for {
		t := p.next()
		if t.Typ != lexer.ItemSpace {
			return t
		}
	}
}

// peekNonSpace returns but does not consume the next non-space token.
func (p *Parser) peekNonSpace() lexer.Item {
	t := p.nextNonSpace()
	p.backup(t)
	return t
}

// nextMust is next, but end of input is an error in the given context.
func (p *Parser) nextMust(context string) (lexer.Item, error) {
	t := p.next()
	if t.Typ == lexer.ItemEOF {
		return t, p.errorf(ErrUnexpectedEOF, "unexpected end in %s", context)
	}
	return t, nil
}

// nextNonSpaceMust is nextNonSpace, but end of input is an error.
func (p *Parser) nextNonSpaceMust(context string) (lexer.Item, error) {
	t := p.nextNonSpace()
	if t.Typ == lexer.ItemEOF {
		return t, p.errorf(ErrUnexpectedEOF, "unexpected end in %s", context)
	}
	return t, nil
}

// peekNonSpaceMust is peekNonSpace, but end of input is an error.
func (p *Parser) peekNonSpaceMust(context string) (lexer.Item, error) {
	t, err := p.nextNonSpaceMust(context)
	if err != nil {
		return t, err
	}
	p.backup(t)
	return t, nil
}

// expect consumes the next non-space token, which must have the expected
// type.
func (p *Parser) expect(expected lexer.ItemType, context string) (lexer.Item, error) {
	token, err := p.nextNonSpaceMust(context)
	if err != nil {
		return token, err
	}
	if token.Typ != expected {
		return token, p.unexpected(token, context)
	}
	return token, nil
}

// errorf builds a ParseError annotated with the innermost active tree name
// and the current line.
func (p *Parser) errorf(kind ErrorKind, format string, args ...any) *ParseError {
	name := p.Name
	if p.tree != nil {
		name = p.tree.Name
	}
	return &ParseError{Kind: kind, TreeName: name, Line: p.line, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) unexpected(token fmt.Stringer, context string) *ParseError {
	return p.errorf(ErrUnexpectedToken, "unexpected %s in %s", token, context)
}

func (p *Parser) errNoTree() *ParseError {
	return p.errorf(ErrNoTree, "no tree")
}

func (p *Parser) hasFunc(name string) bool {
	return p.funcs[name]
}

// addVar pushes a declared variable onto the active tree's scope stack.
func (p *Parser) addVar(name string) error {
	if p.tree == nil {
		return p.errNoTree()
	}
	p.tree.vars = append(p.tree.vars, name)
	return nil
}

// addField records a referenced field path on the active tree.
func (p *Parser) addField(path string) error {
	if p.tree == nil {
		return p.errNoTree()
	}
	p.tree.Fields[path] = true
	return nil
}

// startParse suspends the active tree, if any, and makes a fresh tree with
// the given name and id the active one.
func (p *Parser) startParse(name string, id TreeID) {
	if p.tree != nil {
		p.treeStack = append(p.treeStack, p.tree)
	}
	p.treeID = id
	p.tree = newTree(name, id)
}

// stopParse registers the active tree and resumes the suspended parent, if
// any.
func (p *Parser) stopParse() error {
	if err := p.addToTreeSet(); err != nil {
		return err
	}
	if n := len(p.treeStack); n > 0 {
		p.tree = p.treeStack[n-1]
		p.treeStack = p.treeStack[:n-1]
		p.treeID = p.tree.ID
	} else {
		p.tree = nil
		p.treeID = 0
	}
	return nil
}

// addToTreeSet inserts the active tree into the registry. Redefining a name
// whose registered root is non-empty is an error; an empty stub may be
// overwritten.
func (p *Parser) addToTreeSet() error {
	tree := p.tree
	if tree == nil {
		return p.errNoTree()
	}
	if old, ok := p.treeSet[tree.Name]; ok && old.Root != nil {
		empty, err := IsEmptyTree(old.Root)
		if err != nil {
			return err
		}
		if !empty {
			return p.errorf(ErrDuplicateDefinition, "multiple definitions of template %q", tree.Name)
		}
	}
	p.treeSet[tree.Name] = tree
	return nil
}

// parseTree runs the top-level parse: one tree under the Parser's name with
// id 1.
func (p *Parser) parseTree() error {
	p.startParse(p.Name, 1)
	if err := p.parse(); err != nil {
		return err
	}
	return p.stopParse()
}

// parse is the top-level body parser: it accumulates text and actions into
// the active tree's root list until end of input. Nested definitions
// register themselves and contribute nothing to the current list.
func (p *Parser) parse() error {
	if p.tree == nil {
		return p.errNoTree()
	}
	id := p.treeID
	t := p.next()
	p.tree.Root = newList(id, Pos(t.Pos))
	for t.Typ != lexer.ItemEOF {
		if t.Typ == lexer.ItemLeftDelim {
			nns := p.nextNonSpace()
			if nns.Typ == lexer.ItemDefine {
				if err := p.parseDefinition(); err != nil {
					return err
				}
				t = p.next()
				continue
			}
			p.backup2(t, nns)
		} else {
			p.backup(t)
		}
		node, err := p.textOrAction()
		if err != nil {
			return err
		}
		switch node.Type() {
		case NodeEnd, NodeElse:
			return p.errorf(ErrUnexpectedToken, "unexpected %s", node)
		}
		p.tree.Root.append(node)
		t = p.next()
	}
	p.backup(t)
	return nil
}

// parseDefinition parses a {{define}} clause: the quoted name, the closing
// delimiter, then the body as an independent tree which must end with
// {{end}}.
func (p *Parser) parseDefinition() error {
	const context = "define clause"
	id := p.treeID
	token, err := p.nextNonSpaceMust(context)
	if err != nil {
		return err
	}
	name, err := p.parseTemplateName(token, context)
	if err != nil {
		return err
	}
	if _, err := p.expect(lexer.ItemRightDelim, "define end"); err != nil {
		return err
	}
	p.startParse(name, id+1)
	list, end, err := p.itemList()
	if err != nil {
		return err
	}
	if end.Type() != NodeEnd {
		return p.unexpected(end, context)
	}
	p.tree.Root = list
	return p.stopParse()
}

// itemList accumulates text and actions until a node of type End or Else
// surfaces, which is returned as the terminator. Running out of input first
// is an error: every open body must close.
func (p *Parser) itemList() (*ListNode, Node, error) {
	t, err := p.peekNonSpaceMust("item list")
	if err != nil {
		return nil, nil, err
	}
	list := newList(p.treeID, Pos(t.Pos))
	for p.peekNonSpace().Typ != lexer.ItemEOF {
		node, err := p.textOrAction()
		if err != nil {
			return nil, nil, err
		}
		switch node.Type() {
		case NodeEnd, NodeElse:
			return list, node, nil
		}
		list.append(node)
	}
	return nil, nil, p.errorf(ErrUnexpectedEOF, "unexpected EOF")
}

// textOrAction parses one text node or one action.
func (p *Parser) textOrAction() (Node, error) {
	switch token := p.nextNonSpace(); token.Typ {
	case lexer.ItemText:
		return newText(p.treeID, Pos(token.Pos), token.Val), nil
	case lexer.ItemLeftDelim:
		return p.action()
	default:
		return nil, p.unexpected(token, "input")
	}
}

// action parses the inside of a delimiter pair: either a control keyword or
// a pipeline.
func (p *Parser) action() (Node, error) {
	token, err := p.nextNonSpaceMust("action")
	if err != nil {
		return nil, err
	}
	switch token.Typ {
	case lexer.ItemBlock:
		return p.blockControl()
	case lexer.ItemElse:
		return p.elseControl()
	case lexer.ItemEnd:
		return p.endControl()
	case lexer.ItemIf:
		return p.ifControl()
	case lexer.ItemRange:
		return p.rangeControl()
	case lexer.ItemTemplate:
		return p.templateControl()
	case lexer.ItemWith:
		return p.withControl()
	}
	p.backup(token)
	pipe, err := p.pipeline("command")
	if err != nil {
		return nil, err
	}
	return newAction(p.treeID, Pos(token.Pos), pipe), nil
}

// parseControl is the shared body of if, range, and with: one pipeline,
// the body list, and an optional else branch. Variables declared inside the
// construct go out of scope when it closes. allowElseIf permits the
// {{else if}} shortcut, which is parsed as a nested if in the else branch.
func (p *Parser) parseControl(allowElseIf bool, context string) (Pos, *PipeNode, *ListNode, *ListNode, error) {
	if p.tree == nil {
		return 0, nil, nil, nil, p.errNoTree()
	}
	varsLen := len(p.tree.vars)
	pipe, err := p.pipeline(context)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	list, next, err := p.itemList()
	if err != nil {
		return 0, nil, nil, nil, err
	}
	var elseList *ListNode
	switch next.Type() {
	case NodeEnd:
		// no else branch
	case NodeElse:
		elseIf := false
		if allowElseIf {
			peek, err := p.peekNonSpaceMust("else if")
			if err != nil {
				return 0, nil, nil, nil, err
			}
			elseIf = peek.Typ == lexer.ItemIf
		}
		if elseIf {
			// The else-if form: {{if a}}...{{else if b}}...{{end}} is
			// treated as a nested if in the else branch.
			if _, err := p.nextMust("else if"); err != nil {
				return 0, nil, nil, nil, err
			}
			elseList = newList(p.treeID, next.Position())
			inner, err := p.ifControl()
			if err != nil {
				return 0, nil, nil, nil, err
			}
			elseList.append(inner)
		} else {
			elseList, next, err = p.itemList()
			if err != nil {
				return 0, nil, nil, nil, err
			}
			if next.Type() != NodeEnd {
				return 0, nil, nil, nil, p.errorf(ErrUnexpectedToken, "expected end; found %s", next)
			}
		}
	default:
		return 0, nil, nil, nil, p.errorf(ErrUnexpectedToken, "expected end; found %s", next)
	}
	p.tree.popVars(varsLen)
	return pipe.Position(), pipe, list, elseList, nil
}

func (p *Parser) ifControl() (Node, error) {
	pos, pipe, list, elseList, err := p.parseControl(true, "if")
	if err != nil {
		return nil, err
	}
	return newIf(p.treeID, pos, pipe, list, elseList), nil
}

func (p *Parser) rangeControl() (Node, error) {
	pos, pipe, list, elseList, err := p.parseControl(false, "range")
	if err != nil {
		return nil, err
	}
	return newRange(p.treeID, pos, pipe, list, elseList), nil
}

func (p *Parser) withControl() (Node, error) {
	pos, pipe, list, elseList, err := p.parseControl(false, "with")
	if err != nil {
		return nil, err
	}
	return newWith(p.treeID, pos, pipe, list, elseList), nil
}

// endControl parses {{end}}: the keyword must be followed directly by the
// closing delimiter.
func (p *Parser) endControl() (Node, error) {
	token, err := p.expect(lexer.ItemRightDelim, "end")
	if err != nil {
		return nil, err
	}
	return newEnd(p.treeID, Pos(token.Pos)), nil
}

// elseControl parses {{else}}. A following if keyword is left in the stream
// for parseControl to consume.
func (p *Parser) elseControl() (Node, error) {
	peek, err := p.peekNonSpaceMust("else")
	if err != nil {
		return nil, err
	}
	if peek.Typ == lexer.ItemIf {
		return newElse(p.treeID, Pos(peek.Pos), peek.Line), nil
	}
	token, err := p.expect(lexer.ItemRightDelim, "else")
	if err != nil {
		return nil, err
	}
	return newElse(p.treeID, Pos(token.Pos), token.Line), nil
}

// blockControl parses {{block "name" pipeline}}...{{end}}: the body is
// registered as an independent tree under a fresh id, and the enclosing
// tree gets a template invocation of that name.
func (p *Parser) blockControl() (Node, error) {
	const context = "block clause"
	token, err := p.nextNonSpaceMust(context)
	if err != nil {
		return nil, err
	}
	name, err := p.parseTemplateName(token, context)
	if err != nil {
		return nil, err
	}
	pipe, err := p.pipeline(context)
	if err != nil {
		return nil, err
	}

	p.maxTreeID++
	p.startParse(name, p.maxTreeID)
	root, end, err := p.itemList()
	if err != nil {
		return nil, err
	}
	p.tree.Root = root
	if end.Type() != NodeEnd {
		return nil, p.unexpected(end, context)
	}
	if err := p.stopParse(); err != nil {
		return nil, err
	}
	return newTemplate(p.treeID, Pos(token.Pos), name, nil, pipe), nil
}

// templateControl parses {{template}}: a quoted name or, when enabled, a
// parenthesized pipeline producing the name, optionally followed by an
// argument pipeline.
func (p *Parser) templateControl() (Node, error) {
	const context = "template clause"
	token := p.nextNonSpace()
	var name string
	var namePipe *PipeNode
	if token.Typ == lexer.ItemLeftParen {
		if !p.DynamicTemplates {
			return nil, p.errorf(ErrDynamicTemplate, "dynamic template names are not enabled")
		}
		pipe, err := p.pipeline(context)
		if err != nil {
			return nil, err
		}
		// pipeline pushed the right paren back; consume it.
		if _, err := p.nextMust("template name pipeline end"); err != nil {
			return nil, err
		}
		namePipe = pipe
	} else {
		var err error
		name, err = p.parseTemplateName(token, context)
		if err != nil {
			return nil, err
		}
	}
	next := p.nextNonSpace()
	var pipe *PipeNode
	if next.Typ != lexer.ItemRightDelim {
		p.backup(next)
		pp, err := p.pipeline(context)
		if err != nil {
			return nil, err
		}
		pipe = pp
	}
	return newTemplate(p.treeID, Pos(token.Pos), name, namePipe, pipe), nil
}

// pipeline parses an optional variable declaration followed by pipe-
// separated commands. Declaration recognition needs up to three tokens of
// lookahead: $x := ..., and in range context $x, $y := ... . Declared
// variables enter scope immediately so later commands in the same pipeline
// can reference them.
func (p *Parser) pipeline(context string) (*PipeNode, error) {
	var decl []*VariableNode
	token, err := p.nextNonSpaceMust("pipeline")
	if err != nil {
		return nil, err
	}
	pos := Pos(token.Pos)
	if token.Typ == lexer.ItemVariable {
		for token.Typ == lexer.ItemVariable {
			tokenAfterVar, err := p.nextMust("variable")
			if err != nil {
				return nil, err
			}
			next := tokenAfterVar
			if tokenAfterVar.Typ == lexer.ItemSpace {
				next, err = p.nextNonSpaceMust("variable")
				if err != nil {
					return nil, err
				}
				if next.Typ != lexer.ItemDeclare && next.Typ != lexer.ItemComma {
					p.backup3(token, tokenAfterVar, next)
					break
				}
			}
			if next.Typ == lexer.ItemDeclare || next.Typ == lexer.ItemComma {
				variable := newVariable(p.treeID, Pos(token.Pos), token.Val)
				if err := p.addVar(token.Val); err != nil {
					return nil, err
				}
				decl = append(decl, variable)
				if next.Typ == lexer.ItemComma {
					if context == "range" && len(decl) < 2 {
						token, err = p.nextNonSpaceMust("variable")
						if err != nil {
							return nil, err
						}
						continue
					}
					return nil, p.errorf(ErrTooManyDeclarations, "too many declarations in %s", context)
				}
			} else {
				p.backup2(token, next)
			}
			break
		}
	} else {
		p.backup(token)
	}
	pipe := newPipe(p.treeID, pos, decl)
	for {
		token, err := p.nextNonSpaceMust("pipeline")
		if err != nil {
			return nil, err
		}
		switch token.Typ {
		case lexer.ItemRightDelim, lexer.ItemRightParen:
			if err := p.checkPipeline(pipe, context); err != nil {
				return nil, err
			}
			if token.Typ == lexer.ItemRightParen {
				p.backup(token)
			}
			return pipe, nil
		case lexer.ItemBool, lexer.ItemCharConstant, lexer.ItemDot, lexer.ItemField,
			lexer.ItemIdentifier, lexer.ItemNumber, lexer.ItemNil, lexer.ItemRawString,
			lexer.ItemString, lexer.ItemVariable, lexer.ItemLeftParen:
			p.backup(token)
			cmd, err := p.command()
			if err != nil {
				return nil, err
			}
			pipe.append(cmd)
		default:
			return nil, p.unexpected(token, context)
		}
	}
}

// checkPipeline validates a completed pipeline: it must have at least one
// command, and every stage after the first must start with something
// callable.
func (p *Parser) checkPipeline(pipe *PipeNode, context string) error {
	if len(pipe.Cmds) == 0 {
		return p.errorf(ErrMissingValue, "missing value for %s", context)
	}
	for i, c := range pipe.Cmds[1:] {
		if len(c.Args) == 0 {
			return p.errorf(ErrNonExecutableCommand, "non executable command in pipeline stage %d", i+3)
		}
		switch c.Args[0].Type() {
		case NodeBool, NodeDot, NodeNil, NodeNumber, NodeString:
			return p.errorf(ErrNonExecutableCommand, "non executable command in pipeline stage %d", i+3)
		}
	}
	return nil
}

// command parses one command: a space-separated list of operands ending at
// a pipe, close delimiter, or right paren (the latter two are pushed back).
func (p *Parser) command() (*CommandNode, error) {
	t, err := p.peekNonSpaceMust("command")
	if err != nil {
		return nil, err
	}
	cmd := newCommand(p.treeID, Pos(t.Pos))
	for {
		if _, err := p.peekNonSpaceMust("operand"); err != nil {
			return nil, err
		}
		operand, err := p.operand()
		if err != nil {
			return nil, err
		}
		if operand != nil {
			cmd.append(operand)
		}
		token, err := p.nextMust("command")
		if err != nil {
			return nil, err
		}
		switch token.Typ {
		case lexer.ItemSpace:
			continue
		case lexer.ItemError:
			return nil, p.errorf(ErrUnexpectedToken, "%s", token.Val)
		case lexer.ItemRightDelim, lexer.ItemRightParen:
			p.backup(token)
		case lexer.ItemPipe:
			// end of this command, another follows
		default:
			return nil, p.errorf(ErrUnexpectedToken, "unexpected %s in operand", token)
		}
		break
	}
	if len(cmd.Args) == 0 {
		return nil, p.errorf(ErrMissingValue, "empty command")
	}
	return cmd, nil
}

// operand parses a term possibly extended by field accesses. Chaining after
// a field or variable collapses into a longer field or variable; chaining
// after literals, dot, or nil is illegal; anything else becomes a Chain
// node. Every observed field path is recorded on the active tree.
func (p *Parser) operand() (Node, error) {
	node, err := p.term()
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}
	next, err := p.nextMust("operand")
	if err != nil {
		return nil, err
	}
	if next.Typ != lexer.ItemField {
		p.backup(next)
		return node, nil
	}
	switch node.Type() {
	case NodeBool, NodeString, NodeNumber, NodeNil, NodeDot:
		return nil, p.errorf(ErrUnexpectedToken, "unexpected . after term %q", node.String())
	}
	chain := newChain(p.treeID, Pos(next.Pos), node)
	chain.Add(next.Val)
	for p.peek().Typ == lexer.ItemField {
		chain.Add(p.next().Val)
	}
	switch node.Type() {
	case NodeField:
		field := chain.String()
		if err := p.addField(field); err != nil {
			return nil, err
		}
		return newField(p.treeID, chain.Position(), field), nil
	case NodeVariable:
		return newVariable(p.treeID, chain.Position(), chain.String()), nil
	}
	return chain, nil
}

// term parses the base forms an operand can take. A token that cannot start
// a term is pushed back and nil is returned, which callers use to detect
// the end of an operand list.
func (p *Parser) term() (Node, error) {
	token, err := p.nextNonSpaceMust("token")
	if err != nil {
		return nil, err
	}
	switch token.Typ {
	case lexer.ItemError:
		return nil, p.errorf(ErrUnexpectedToken, "%s", token.Val)
	case lexer.ItemIdentifier:
		if !p.hasFunc(token.Val) {
			return nil, p.errorf(ErrUndefinedFunction, "function %s not defined", token.Val)
		}
		return newIdentifier(p.treeID, Pos(token.Pos), token.Val), nil
	case lexer.ItemDot:
		return newDot(p.treeID, Pos(token.Pos)), nil
	case lexer.ItemNil:
		return newNil(p.treeID, Pos(token.Pos)), nil
	case lexer.ItemVariable:
		return p.useVar(Pos(token.Pos), token.Val)
	case lexer.ItemField:
		if err := p.addField(token.Val); err != nil {
			return nil, err
		}
		return newField(p.treeID, Pos(token.Pos), token.Val), nil
	case lexer.ItemBool:
		return newBool(p.treeID, Pos(token.Pos), token.Val == "true"), nil
	case lexer.ItemCharConstant, lexer.ItemNumber:
		n, err := newNumber(p.treeID, Pos(token.Pos), token.Val, token.Typ)
		if err != nil {
			return nil, p.errorf(ErrBadLiteral, "%s", err)
		}
		return n, nil
	case lexer.ItemLeftParen:
		pipe, err := p.pipeline("parenthesized pipeline")
		if err != nil {
			return nil, err
		}
		next, err := p.nextMust("parenthesized pipeline")
		if err != nil {
			return nil, err
		}
		if next.Typ != lexer.ItemRightParen {
			return nil, p.errorf(ErrUnclosedParen, "unclosed right paren: unexpected %s", next)
		}
		return pipe, nil
	case lexer.ItemString, lexer.ItemRawString:
		s, err := strconv.Unquote(token.Val)
		if err != nil {
			return nil, p.errorf(ErrBadLiteral, "unable to unquote string %s", token.Val)
		}
		return newString(p.treeID, Pos(token.Pos), token.Val, s), nil
	}
	p.backup(token)
	return nil, nil
}

// useVar returns a variable node for the named variable, which must be
// declared in the active scope. The reserved variable $ always resolves.
func (p *Parser) useVar(pos Pos, name string) (Node, error) {
	if name == "$" {
		return newVariable(p.treeID, pos, name), nil
	}
	if p.tree != nil {
		for _, v := range p.tree.vars {
			if v == name {
				return newVariable(p.treeID, pos, name), nil
			}
		}
	}
	return nil, p.errorf(ErrUndefinedVariable, "undefined variable %s", name)
}

// parseTemplateName decodes a quoted or raw-quoted template name token.
func (p *Parser) parseTemplateName(token lexer.Item, context string) (string, error) {
	switch token.Typ {
	case lexer.ItemString, lexer.ItemRawString:
		s, err := strconv.Unquote(token.Val)
		if err != nil {
			return "", p.errorf(ErrBadLiteral, "unable to unquote string %s", token.Val)
		}
		return s, nil
	}
	return "", p.unexpected(token, context)
}
