// Package lexer turns raw template text into the token stream consumed by
// the parser. It is a synchronous state machine: each call to Next runs the
// current state function until at least one item has been produced. Lexical
// errors are reported in-band as ItemError items; once the input is
// exhausted the lexer keeps returning the ItemEOF item.
package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	leftDelim    = "{{"
	rightDelim   = "}}"
	leftComment  = "/*"
	rightComment = "*/"
	trimMarker   = '-'
)

const eof = -1

// stateFn represents the state of the lexer as a function that returns the
// next state.
type stateFn func(*Lexer) stateFn

// Lexer holds the state of the scanner.
type Lexer struct {
	input      string  // the string being scanned
	pos        int     // current position in the input
	start      int     // start position of the current item
	width      int     // width of the last rune read from input
	line       int     // 1-based line count, at pos
	startLine  int     // line at start
	parenDepth int     // nesting depth of ( ) inside an action
	state      stateFn // next state to run, nil when done
	items      []Item  // queue of items ready to be returned
}

// New prepares a Lexer for the given input. No work happens until Next is
// called.
func New(input string) *Lexer {
	return &Lexer{
		input:     input,
		line:      1,
		startLine: 1,
		state:     lexText,
	}
}

// Next returns the next item from the input.
func (l *Lexer) Next() Item {
	for len(l.items) == 0 && l.state != nil {
		l.state = l.state(l)
	}
	if len(l.items) == 0 {
		return Item{Typ: ItemEOF, Pos: l.pos, Line: l.line}
	}
	it := l.items[0]
	l.items = l.items[1:]
	return it
}

// next returns the next rune in the input.
func (l *Lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += w
	if r == '\n' {
		l.line++
	}
	return r
}

// peek returns but does not consume the next rune.
func (l *Lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

// backup steps back one rune. Only valid once per call of next.
func (l *Lexer) backup() {
	l.pos -= l.width
	if l.width == 1 && l.input[l.pos] == '\n' {
		l.line--
	}
}

// emit queues the pending input as an item of type t.
func (l *Lexer) emit(t ItemType) {
	l.items = append(l.items, Item{Typ: t, Pos: l.start, Val: l.input[l.start:l.pos], Line: l.startLine})
	l.start = l.pos
	l.startLine = l.line
}

// ignore skips over the pending input before this point. It tracks newlines
// in the skipped text, so use it only for text skipped without calling next.
func (l *Lexer) ignore() {
	l.line += strings.Count(l.input[l.start:l.pos], "\n")
	l.start = l.pos
	l.startLine = l.line
}

// accept consumes the next rune if it is from the valid set.
func (l *Lexer) accept(valid string) bool {
	if strings.ContainsRune(valid, l.next()) {
		return true
	}
	l.backup()
	return false
}

// acceptRun consumes a run of runes from the valid set.
func (l *Lexer) acceptRun(valid string) {
	for strings.ContainsRune(valid, l.next()) {
	}
	l.backup()
}

// errorf queues an error item and terminates the scan.
func (l *Lexer) errorf(format string, args ...any) stateFn {
	l.items = append(l.items, Item{Typ: ItemError, Pos: l.start, Val: fmt.Sprintf(format, args...), Line: l.startLine})
	return nil
}

// atRightDelim reports whether the lexer is at a right delimiter, possibly
// preceded by a trim marker.
func (l *Lexer) atRightDelim() (delim, trimSpace bool) {
	if hasRightTrimMarker(l.input[l.pos:]) && strings.HasPrefix(l.input[l.pos+2:], rightDelim) {
		return true, true
	}
	if strings.HasPrefix(l.input[l.pos:], rightDelim) {
		return true, false
	}
	return false, false
}

// atTerminator reports whether the input is at valid termination of an
// identifier, field, or variable.
func (l *Lexer) atTerminator() bool {
	r := l.peek()
	if isSpace(r) {
		return true
	}
	switch r {
	case eof, '.', ',', '|', ':', '(', ')':
		return true
	}
	return strings.HasPrefix(l.input[l.pos:], rightDelim) ||
		strings.HasPrefix(l.input[l.pos:], string(trimMarker)+rightDelim)
}

// lexText scans until an opening action delimiter.
func lexText(l *Lexer) stateFn {
	if x := strings.Index(l.input[l.pos:], leftDelim); x >= 0 {
		if x > 0 {
			l.pos += x
			// Trim trailing space from the text if the action starts
			// with a trim marker.
			trimLength := 0
			delimEnd := l.pos + len(leftDelim)
			if hasLeftTrimMarker(l.input[delimEnd:]) {
				trimLength = rightTrimLength(l.input[l.start:l.pos])
			}
			l.pos -= trimLength
			l.line += strings.Count(l.input[l.start:l.pos], "\n")
			if l.pos > l.start {
				l.emit(ItemText)
			}
			l.pos += trimLength
			l.ignore()
		}
		return lexLeftDelim
	}
	l.pos = len(l.input)
	if l.pos > l.start {
		l.line += strings.Count(l.input[l.start:l.pos], "\n")
		l.emit(ItemText)
	}
	l.emit(ItemEOF)
	return nil
}

// lexLeftDelim scans the left delimiter, which is known to be present,
// possibly with a trim marker or a comment.
func lexLeftDelim(l *Lexer) stateFn {
	l.pos += len(leftDelim)
	trimSpace := hasLeftTrimMarker(l.input[l.pos:])
	afterMarker := 0
	if trimSpace {
		afterMarker = 2
	}
	if strings.HasPrefix(l.input[l.pos+afterMarker:], leftComment) {
		l.pos += afterMarker
		l.ignore()
		return lexComment
	}
	l.emit(ItemLeftDelim)
	l.pos += afterMarker
	l.ignore()
	l.parenDepth = 0
	return lexInsideAction
}

// lexComment scans a comment. The left comment marker is known to be
// present; comments emit no items.
func lexComment(l *Lexer) stateFn {
	l.pos += len(leftComment)
	x := strings.Index(l.input[l.pos:], rightComment)
	if x < 0 {
		return l.errorf("unclosed comment")
	}
	l.pos += x + len(rightComment)
	delim, trimSpace := l.atRightDelim()
	if !delim {
		return l.errorf("comment ends before closing delimiter")
	}
	if trimSpace {
		l.pos += 2
	}
	l.pos += len(rightDelim)
	if trimSpace {
		l.pos += leftTrimLength(l.input[l.pos:])
	}
	l.ignore()
	return lexText
}

// lexRightDelim scans the right delimiter, which is known to be present,
// possibly with a trim marker.
func lexRightDelim(l *Lexer) stateFn {
	_, trimSpace := l.atRightDelim()
	if trimSpace {
		l.pos += 2
		l.ignore()
	}
	l.pos += len(rightDelim)
	l.emit(ItemRightDelim)
	if trimSpace {
		l.pos += leftTrimLength(l.input[l.pos:])
		l.ignore()
	}
	return lexText
}

// lexInsideAction scans the elements inside action delimiters.
func lexInsideAction(l *Lexer) stateFn {
	// Either number, quoted string, or identifier.
	// Spaces separate arguments; runs of spaces turn into ItemSpace.
	if delim, _ := l.atRightDelim(); delim {
		if l.parenDepth == 0 {
			return lexRightDelim
		}
		return l.errorf("unclosed left paren")
	}
	switch r := l.next(); {
	case r == eof:
		return l.errorf("unclosed action")
	case isSpace(r):
		l.backup() // Put space back in case we have " -}}".
		return lexSpace
	case r == ':':
		if l.next() != '=' {
			return l.errorf("expected :=")
		}
		l.emit(ItemDeclare)
	case r == '|':
		l.emit(ItemPipe)
	case r == ',':
		l.emit(ItemComma)
	case r == '"':
		return lexQuote
	case r == '`':
		return lexRawQuote
	case r == '$':
		return lexVariable
	case r == '\'':
		return lexChar
	case r == '.':
		// Special look-ahead for ".field" so we don't break l.backup().
		if l.pos < len(l.input) {
			r := l.input[l.pos]
			if r < '0' || '9' < r {
				return lexField
			}
		}
		fallthrough // '.' can start a number.
	case r == '+' || r == '-' || ('0' <= r && r <= '9'):
		l.backup()
		return lexNumber
	case isAlphaNumeric(r):
		l.backup()
		return lexIdentifier
	case r == '(':
		l.emit(ItemLeftParen)
		l.parenDepth++
	case r == ')':
		l.emit(ItemRightParen)
		l.parenDepth--
		if l.parenDepth < 0 {
			return l.errorf("unexpected right paren")
		}
	case r <= unicode.MaxASCII && unicode.IsPrint(r):
		l.emit(ItemChar)
	default:
		return l.errorf("unrecognized character in action: %#U", r)
	}
	return lexInsideAction
}

// lexSpace scans a run of space characters. One space has already been seen.
func lexSpace(l *Lexer) stateFn {
	var numSpaces int
	for isSpace(l.peek()) {
		l.next()
		numSpaces++
	}
	// Be careful about a trim-marked closing delimiter, which has a minus
	// after a space. We know there is a space, because we ran out of them.
	if strings.HasPrefix(l.input[l.pos-1:], " "+string(trimMarker)+rightDelim) {
		l.backup() // Before the space.
		if numSpaces == 1 {
			return lexRightDelim // On the delim, so go right to that.
		}
	}
	l.emit(ItemSpace)
	return lexInsideAction
}

// lexIdentifier scans an alphanumeric word.
func lexIdentifier(l *Lexer) stateFn {
	for isAlphaNumeric(l.next()) {
	}
	l.backup()
	word := l.input[l.start:l.pos]
	if !l.atTerminator() {
		return l.errorf("bad character %#U", l.peek())
	}
	switch {
	case word == "true" || word == "false":
		l.emit(ItemBool)
	default:
		if t, ok := key[word]; ok {
			l.emit(t)
		} else {
			l.emit(ItemIdentifier)
		}
	}
	return lexInsideAction
}

// lexField scans a field access: .Alphanumeric.
// The '.' has already been consumed.
func lexField(l *Lexer) stateFn {
	return lexFieldOrVariable(l, ItemField)
}

// lexVariable scans a variable: $Alphanumeric.
// The '$' has already been consumed.
func lexVariable(l *Lexer) stateFn {
	return lexFieldOrVariable(l, ItemVariable)
}

func lexFieldOrVariable(l *Lexer, typ ItemType) stateFn {
	if l.atTerminator() {
		// Nothing interesting follows: a bare "." or "$".
		if typ == ItemVariable {
			l.emit(ItemVariable)
		} else {
			l.emit(ItemDot)
		}
		return lexInsideAction
	}
	var r rune
	for {
		r = l.next()
		if !isAlphaNumeric(r) {
			l.backup()
			break
		}
	}
	if !l.atTerminator() {
		return l.errorf("bad character %#U", r)
	}
	l.emit(typ)
	return lexInsideAction
}

// lexChar scans a character constant. The initial quote is already scanned.
func lexChar(l *Lexer) stateFn {
Loop:
	for {
		switch l.next() {
		case '\\':
			if r := l.next(); r != eof && r != '\n' {
				break
			}
			fallthrough
		case eof, '\n':
			return l.errorf("unterminated character constant")
		case '\'':
			break Loop
		}
	}
	l.emit(ItemCharConstant)
	return lexInsideAction
}

// lexNumber scans a number: a decimal, octal, hex, or binary integer, or a
// float with an optional exponent.
func lexNumber(l *Lexer) stateFn {
	if !l.scanNumber() {
		return l.errorf("bad number syntax: %q", l.input[l.start:l.pos])
	}
	l.emit(ItemNumber)
	return lexInsideAction
}

func (l *Lexer) scanNumber() bool {
	l.accept("+-")
	digits := "0123456789_"
	if l.accept("0") {
		if l.accept("xX") {
			digits = "0123456789abcdefABCDEF_"
		} else if l.accept("oO") {
			digits = "01234567_"
		} else if l.accept("bB") {
			digits = "01_"
		}
	}
	l.acceptRun(digits)
	if l.accept(".") {
		l.acceptRun(digits)
	}
	if len(digits) == 10+1 && l.accept("eE") {
		l.accept("+-")
		l.acceptRun("0123456789_")
	}
	// Next thing mustn't be alphanumeric.
	if isAlphaNumeric(l.peek()) {
		l.next()
		return false
	}
	return true
}

// lexQuote scans a quoted string. The initial quote is already scanned.
func lexQuote(l *Lexer) stateFn {
Loop:
	for {
		switch l.next() {
		case '\\':
			if r := l.next(); r != eof && r != '\n' {
				break
			}
			fallthrough
		case eof, '\n':
			return l.errorf("unterminated quoted string")
		case '"':
			break Loop
		}
	}
	l.emit(ItemString)
	return lexInsideAction
}

// lexRawQuote scans a raw quoted string. The initial backquote is already
// scanned.
func lexRawQuote(l *Lexer) stateFn {
Loop:
	for {
		switch l.next() {
		case eof:
			return l.errorf("unterminated raw quoted string")
		case '`':
			break Loop
		}
	}
	l.emit(ItemRawString)
	return lexInsideAction
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

func isAlphaNumeric(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func hasLeftTrimMarker(s string) bool {
	return len(s) >= 2 && s[0] == trimMarker && isSpace(rune(s[1]))
}

func hasRightTrimMarker(s string) bool {
	return len(s) >= 2 && isSpace(rune(s[0])) && s[1] == trimMarker
}

// rightTrimLength returns the length of the spaces at the end of the string.
func rightTrimLength(s string) int {
	return len(s) - len(strings.TrimRight(s, " \t\r\n"))
}

// leftTrimLength returns the length of the spaces at the beginning of the
// string.
func leftTrimLength(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t\r\n"))
}
