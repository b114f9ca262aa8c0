// Package parser builds expression trees from tokens.
//
//	expr    = atom | "(" ")" | "(" special ")" | "(" expr expr* ")"
//	special = "let" "(" ("(" symbol expr ")")* ")" expr
//	        | "if" expr expr expr
//	        | "lambda" "(" symbol* ")" expr
package parser

import (
	"strconv"

	"github.com/funvibe/rol/internal/ast"
	"github.com/funvibe/rol/internal/config"
	"github.com/funvibe/rol/internal/lexer"
	"github.com/funvibe/rol/internal/symbol"
	"github.com/funvibe/rol/internal/token"
	"github.com/funvibe/rol/internal/value"
)

type Parser struct {
	tokens   []token.Token
	position int
}

// New returns a parser over tokens. A missing trailing EOF is implied.
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

func (p *Parser) current() token.Token {
	if p.position < len(p.tokens) {
		return p.tokens[p.position]
	}
	return token.Token{Type: token.EOF}
}

func (p *Parser) advance() token.Token {
	tok := p.current()
	if p.position < len(p.tokens) {
		p.position++
	}
	return tok
}

func (p *Parser) atEnd() bool { return p.current().Type == token.EOF }

func pos(tok token.Token) ast.Pos { return ast.Pos{Line: tok.Line, Column: tok.Column} }

func (p *Parser) unexpected(expected string) error {
	tok := p.current()
	if tok.Type == token.EOF {
		return &ParseError{Kind: ErrUnexpectedEOF, Pos: pos(tok), Expected: expected}
	}
	return &ParseError{Kind: ErrUnexpectedToken, Pos: pos(tok), Expected: expected, Found: tok}
}

func (p *Parser) expect(t token.TokenType) (token.Token, error) {
	if p.current().Type != t {
		return token.Token{}, p.unexpected(t.String())
	}
	return p.advance(), nil
}

// ParseProgram reads every expression up to EOF.
func (p *Parser) ParseProgram() ([]ast.Expr, error) {
	var exprs []ast.Expr
	for !p.atEnd() {
		e, err := p.ParseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

// ParseExpr reads one expression.
func (p *Parser) ParseExpr() (ast.Expr, error) {
	tok := p.current()
	switch tok.Type {
	case token.LPAREN:
		return p.parseList()
	case token.INT:
		p.advance()
		n, err := strconv.ParseInt(tok.Lexeme, 10, 32)
		if err != nil {
			return nil, &ParseError{Kind: ErrInvalidLiteral, Pos: pos(tok), Found: tok, Reason: "integer out of range: " + tok.Lexeme}
		}
		return &ast.Literal{Pos: pos(tok), Value: value.Int(int32(n))}, nil
	case token.FLOAT:
		p.advance()
		f, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, &ParseError{Kind: ErrInvalidLiteral, Pos: pos(tok), Found: tok, Reason: "bad float: " + tok.Lexeme}
		}
		return &ast.Literal{Pos: pos(tok), Value: value.Float(f)}, nil
	case token.STRING:
		p.advance()
		return &ast.StringLiteral{Pos: pos(tok), Value: tok.Literal}, nil
	case token.KEYWORD:
		p.advance()
		return &ast.StringLiteral{Pos: pos(tok), Value: tok.Lexeme}, nil
	case token.SYMBOL:
		p.advance()
		switch tok.Lexeme {
		case config.TrueLiteral:
			return &ast.Literal{Pos: pos(tok), Value: value.Bool(true)}, nil
		case config.FalseLiteral:
			return &ast.Literal{Pos: pos(tok), Value: value.Bool(false)}, nil
		case config.NilLiteral:
			return &ast.Literal{Pos: pos(tok), Value: value.None()}, nil
		}
		return &ast.Variable{Pos: pos(tok), Name: symbol.Mk(tok.Lexeme)}, nil
	}
	return nil, p.unexpected("expression")
}

func (p *Parser) parseList() (ast.Expr, error) {
	open, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if p.current().Type == token.RPAREN {
		p.advance()
		return &ast.ListLiteral{Pos: pos(open)}, nil
	}

	head := p.current()
	if head.Type == token.SYMBOL {
		switch head.Lexeme {
		case config.LetFormName:
			p.advance()
			return p.parseLet(open)
		case config.IfFormName:
			p.advance()
			return p.parseIf(open)
		case config.LambdaFormName:
			p.advance()
			return p.parseLambda(open)
		}
	}

	fn, err := p.ParseExpr()
	if err != nil {
		return nil, err
	}
	call := &ast.Call{Pos: pos(open), Func: fn}
	for p.current().Type != token.RPAREN && !p.atEnd() {
		arg, err := p.ParseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *Parser) symbol(form, reason string) (symbol.Symbol, error) {
	tok := p.current()
	e, err := p.ParseExpr()
	if err != nil {
		return 0, err
	}
	v, ok := e.(*ast.Variable)
	if !ok {
		return 0, &ParseError{Kind: ErrInvalidSpecialForm, Pos: pos(tok), Form: form, Reason: reason}
	}
	return v.Name, nil
}

// parseLet reads the rest of (let ((name init)...) body).
func (p *Parser) parseLet(open token.Token) (ast.Expr, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	let := &ast.Let{Pos: pos(open)}
	for p.current().Type != token.RPAREN && !p.atEnd() {
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		name, err := p.symbol(config.LetFormName, "binding variable must be a symbol")
		if err != nil {
			return nil, err
		}
		init, err := p.ParseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		let.Bindings = append(let.Bindings, ast.Binding{Name: name, Init: init})
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.ParseExpr()
	if err != nil {
		return nil, err
	}
	let.Body = body
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return let, nil
}

// parseIf reads the rest of (if cond then else).
func (p *Parser) parseIf(open token.Token) (ast.Expr, error) {
	var parts [3]ast.Expr
	for i := range parts {
		e, err := p.ParseExpr()
		if err != nil {
			return nil, err
		}
		parts[i] = e
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.If{Pos: pos(open), Cond: parts[0], Then: parts[1], Else: parts[2]}, nil
}

// parseLambda reads the rest of (lambda (params...) body).
func (p *Parser) parseLambda(open token.Token) (ast.Expr, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	lam := &ast.Lambda{Pos: pos(open)}
	for p.current().Type != token.RPAREN && !p.atEnd() {
		name, err := p.symbol(config.LambdaFormName, "parameter must be a symbol")
		if err != nil {
			return nil, err
		}
		lam.Params = append(lam.Params, name)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.ParseExpr()
	if err != nil {
		return nil, err
	}
	lam.Body = body
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return lam, nil
}

// ParseString reads every expression in src.
func ParseString(src string) ([]ast.Expr, error) {
	return New(lexer.Tokenize(src)).ParseProgram()
}

// ParseExprString reads exactly one expression from src.
func ParseExprString(src string) (ast.Expr, error) {
	exprs, err := ParseString(src)
	if err != nil {
		return nil, err
	}
	switch len(exprs) {
	case 0:
		return nil, &ParseError{Kind: ErrUnexpectedEOF, Expected: "expression"}
	case 1:
		return exprs[0], nil
	}
	return nil, &ParseError{Kind: ErrUnexpectedToken, Pos: exprs[1].Position(), Expected: "end of input", Found: token.Token{Type: token.SYMBOL, Lexeme: exprs[1].String()}}
}
