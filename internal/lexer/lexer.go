// Package lexer splits source text into s-expression tokens.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/funvibe/rol/internal/token"
)

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int
	column       int
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = len(l.input)
		l.readPosition = len(l.input) + 1
		l.column++
		return
	}
	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) atEnd() bool { return l.position >= len(l.input) }

// NextToken returns the next token. At the end of input it keeps
// returning EOF.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	line, col := l.line, l.column
	if l.atEnd() {
		return token.Token{Type: token.EOF, Line: line, Column: col}
	}

	switch l.ch {
	case '(':
		l.readChar()
		return token.Token{Type: token.LPAREN, Lexeme: "(", Line: line, Column: col}
	case ')':
		l.readChar()
		return token.Token{Type: token.RPAREN, Lexeme: ")", Line: line, Column: col}
	case '"':
		return l.readString(line, col)
	case ':':
		l.readChar()
		name := l.readAtom()
		if name == "" {
			return token.Token{Type: token.ILLEGAL, Lexeme: ":", Line: line, Column: col}
		}
		return token.Token{Type: token.KEYWORD, Lexeme: ":" + name, Literal: name, Line: line, Column: col}
	}

	atom := l.readAtom()
	return token.Token{Type: numberKind(atom), Lexeme: atom, Literal: atom, Line: line, Column: col}
}

// Tokenize reads every token up to and including EOF.
func Tokenize(input string) []token.Token {
	l := New(input)
	var toks []token.Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		switch {
		case l.ch == ';':
			for !l.atEnd() && l.ch != '\n' {
				l.readChar()
			}
		case unicode.IsSpace(l.ch) || l.ch == ',':
			l.readChar()
		default:
			return
		}
	}
}

func isDelimiter(ch rune) bool {
	return ch == '(' || ch == ')' || ch == '"' || ch == ';' || ch == ',' || unicode.IsSpace(ch)
}

func (l *Lexer) readAtom() string {
	start := l.position
	for !l.atEnd() && !isDelimiter(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

func (l *Lexer) readString(line, col int) token.Token {
	start := l.position
	l.readChar() // opening quote
	var out strings.Builder
	for {
		if l.atEnd() {
			return token.Token{Type: token.ILLEGAL, Lexeme: l.input[start:], Literal: "unterminated string", Line: line, Column: col}
		}
		switch l.ch {
		case '"':
			l.readChar()
			return token.Token{Type: token.STRING, Lexeme: l.input[start:l.position], Literal: out.String(), Line: line, Column: col}
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case 'r':
				out.WriteByte('\r')
			case '0':
				out.WriteByte(0)
			default:
				if l.atEnd() {
					continue
				}
				out.WriteRune(l.ch)
			}
		default:
			out.WriteRune(l.ch)
		}
		l.readChar()
	}
}

// numberKind classifies an atom as a number or a symbol. A lone sign is a
// symbol.
func numberKind(s string) token.TokenType {
	digits := strings.TrimLeft(s, "+-")
	if len(s)-len(digits) > 1 || digits == "" {
		return token.SYMBOL
	}
	kind := token.INT
	sawDigit, sawDot, sawExp := false, false, false
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		switch {
		case c >= '0' && c <= '9':
			sawDigit = true
		case c == '.' && !sawDot && !sawExp:
			sawDot = true
			kind = token.FLOAT
		case (c == 'e' || c == 'E') && sawDigit && !sawExp:
			sawExp = true
			kind = token.FLOAT
			if i+1 < len(digits) && (digits[i+1] == '+' || digits[i+1] == '-') {
				i++
			}
			if i+1 >= len(digits) {
				return token.SYMBOL
			}
		default:
			return token.SYMBOL
		}
	}
	if !sawDigit {
		return token.SYMBOL
	}
	return kind
}
