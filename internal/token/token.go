// Package token defines the lexical tokens of rol source.
package token

import "fmt"

type TokenType uint8

const (
	EOF TokenType = iota
	ILLEGAL
	LPAREN
	RPAREN
	INT
	FLOAT
	STRING
	KEYWORD
	SYMBOL
)

var tokenNames = [...]string{
	EOF:     "end of input",
	ILLEGAL: "illegal",
	LPAREN:  "(",
	RPAREN:  ")",
	INT:     "integer",
	FLOAT:   "float",
	STRING:  "string",
	KEYWORD: "keyword",
	SYMBOL:  "symbol",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("token(%d)", uint8(t))
}

type Token struct {
	Type TokenType
	// Lexeme is the source text. Literal is the decoded value: the string
	// contents for STRING and the name without ':' for KEYWORD.
	Lexeme  string
	Literal string
	Line    int
	Column  int
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return t.Type.String()
	case ILLEGAL:
		return fmt.Sprintf("illegal %q", t.Lexeme)
	case LPAREN, RPAREN:
		return t.Lexeme
	}
	return fmt.Sprintf("%s %s", t.Type, t.Lexeme)
}
