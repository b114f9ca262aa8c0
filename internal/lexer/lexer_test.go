package lexer

import (
	"testing"

	"github.com/funvibe/rol/internal/pipeline"
	"github.com/funvibe/rol/internal/token"
)

func TestNextToken(t *testing.T) {
	input := `(let ((x 5) (y -2.5e1)) ; comment
  (+ x "a\"b\n" :kw - +3 1e))`

	tests := []struct {
		expectedType    token.TokenType
		expectedLexeme  string
		expectedLiteral string
	}{
		{token.LPAREN, "(", ""},
		{token.SYMBOL, "let", "let"},
		{token.LPAREN, "(", ""},
		{token.LPAREN, "(", ""},
		{token.SYMBOL, "x", "x"},
		{token.INT, "5", "5"},
		{token.RPAREN, ")", ""},
		{token.LPAREN, "(", ""},
		{token.SYMBOL, "y", "y"},
		{token.FLOAT, "-2.5e1", "-2.5e1"},
		{token.RPAREN, ")", ""},
		{token.RPAREN, ")", ""},
		{token.LPAREN, "(", ""},
		{token.SYMBOL, "+", "+"},
		{token.SYMBOL, "x", "x"},
		{token.STRING, `"a\"b\n"`, "a\"b\n"},
		{token.KEYWORD, ":kw", "kw"},
		{token.SYMBOL, "-", "-"},
		{token.INT, "+3", "+3"},
		{token.SYMBOL, "1e", "1e"},
		{token.RPAREN, ")", ""},
		{token.RPAREN, ")", ""},
		{token.EOF, "", ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (%q)", i, tt.expectedType, tok.Type, tok.Lexeme)
		}
		if tok.Lexeme != tt.expectedLexeme {
			t.Fatalf("tests[%d] - lexeme wrong. expected=%q, got=%q", i, tt.expectedLexeme, tok.Lexeme)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
	if tok := l.NextToken(); tok.Type != token.EOF {
		t.Errorf("after EOF got %s", tok)
	}
}

func TestPositions(t *testing.T) {
	toks := Tokenize("(a\n  bc)")
	want := [][2]int{{1, 1}, {1, 2}, {2, 3}, {2, 5}}
	for i, w := range want {
		if toks[i].Line != w[0] || toks[i].Column != w[1] {
			t.Errorf("token %d (%s) at %d:%d, want %d:%d", i, toks[i], toks[i].Line, toks[i].Column, w[0], w[1])
		}
	}
}

func TestNumberKind(t *testing.T) {
	tests := []struct {
		in   string
		want token.TokenType
	}{
		{"0", token.INT},
		{"-17", token.INT},
		{"3.14", token.FLOAT},
		{".5", token.FLOAT},
		{"1e10", token.FLOAT},
		{"1E-3", token.FLOAT},
		{"--1", token.SYMBOL},
		{"+", token.SYMBOL},
		{"1.2.3", token.SYMBOL},
		{"12abc", token.SYMBOL},
		{".", token.SYMBOL},
	}
	for _, tt := range tests {
		if got := numberKind(tt.in); got != tt.want {
			t.Errorf("numberKind(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLexerProcessorReportsIllegalTokens(t *testing.T) {
	ctx := (&LexerProcessor{}).Process(pipeline.NewContext(`(f "open`))
	if len(ctx.Errors) != 1 {
		t.Fatalf("errors = %v", ctx.Errors)
	}
	if got := ctx.Errors[0].Error(); got != "1:4: unterminated string" {
		t.Errorf("error = %q", got)
	}

	ctx = (&LexerProcessor{}).Process(pipeline.NewContext("(: x)"))
	if len(ctx.Errors) != 1 {
		t.Fatalf("lone colon: errors = %v", ctx.Errors)
	}
}
