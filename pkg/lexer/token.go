package lexer

import "fmt"

// ItemType identifies the type of a lexed item.
type ItemType int

const (
	ItemError ItemType = iota // value is the text of the error
	ItemBool
	ItemChar // any other printable ASCII character inside an action
	ItemCharConstant
	ItemComma
	ItemDeclare // the := operator
	ItemDot
	ItemEOF
	ItemField // a field access, starting with '.'
	ItemIdentifier
	ItemLeftDelim
	ItemLeftParen
	ItemNil
	ItemNumber
	ItemPipe
	ItemRawString
	ItemRightDelim
	ItemRightParen
	ItemSpace
	ItemString
	ItemText
	ItemVariable // a variable reference, starting with '$'
	// Keywords appear after ItemKeyword.
	ItemKeyword
	ItemBlock
	ItemDefine
	ItemElse
	ItemEnd
	ItemIf
	ItemRange
	ItemTemplate
	ItemWith
)

var key = map[string]ItemType{
	"block":    ItemBlock,
	"define":   ItemDefine,
	"else":     ItemElse,
	"end":      ItemEnd,
	"if":       ItemIf,
	"nil":      ItemNil,
	"range":    ItemRange,
	"template": ItemTemplate,
	"with":     ItemWith,
}

// Item is one token produced by the lexer.
type Item struct {
	Typ  ItemType
	Pos  int // byte offset of the item in the input
	Val  string
	Line int // 1-based line number at the start of the item
}

func (i Item) String() string {
	switch {
	case i.Typ == ItemEOF:
		return "EOF"
	case i.Typ == ItemError:
		return i.Val
	case i.Typ > ItemKeyword:
		return fmt.Sprintf("<%s>", i.Val)
	case len(i.Val) > 10:
		return fmt.Sprintf("%.10q...", i.Val)
	}
	return fmt.Sprintf("%q", i.Val)
}
