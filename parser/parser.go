// Package parser implements the syntactic analyzer for the EARL
// programming language.
//
// The parser takes a stream of tokens from the lexer and constructs an
// Abstract Syntax Tree (AST) that represents the structure of the
// program. It implements a recursive descent parser with Pratt parsing
// (precedence climbing) for expressions, following the same shape as the
// lexer it pairs with: a two-token lookahead (current/peek), registered
// prefix/infix parse functions keyed by token type, and a precedence
// table driving the climb.
//
// The evaluation engine this AST feeds is specified as an external
// collaborator's input; this package only builds the tree and collects
// syntax errors — it never evaluates anything.
package parser

import (
	"strconv"

	"github.com/malloc-nbytes/earl/ast"
	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/lexer"
	"github.com/malloc-nbytes/earl/token"
)

const (
	_ int = iota

	Lowest
	LogicalOr   // ||
	LogicalAnd  // &&
	BitOr       // |
	BitXor      // ^
	BitAnd      // &
	Equals      // == !=
	LessGreater // < > <= >=
	Shift       // << >>
	Sum         // + -
	Product     // * / %
	Prefix      // -x !x
	ModAccess   // ::
	Member      // .
	Call        // f(...)
	Index       // xs[...]
)

var precedences = map[token.Type]int{
	token.Or:       LogicalOr,
	token.And:      LogicalAnd,
	token.Pipe:     BitOr,
	token.Caret:    BitXor,
	token.Amp:      BitAnd,
	token.Eq:       Equals,
	token.NotEq:    Equals,
	token.Lt:       LessGreater,
	token.Gt:       LessGreater,
	token.Lte:      LessGreater,
	token.Gte:      LessGreater,
	token.Shl:      Shift,
	token.Shr:      Shift,
	token.Plus:     Sum,
	token.Minus:    Sum,
	token.Asterisk: Product,
	token.Slash:    Product,
	token.Percent:  Product,
	token.ColonCol: ModAccess,
	token.Dot:      Member,
	token.Lparen:   Call,
	token.Lbracket: Index,
}

// assignOps are the operators that turn a parsed expression into the
// left-hand side of a Mut statement.
var assignOps = map[token.Type]bool{
	token.Assign:     true,
	token.PlusEq:     true,
	token.MinusEq:    true,
	token.AsteriskEq: true,
	token.SlashEq:    true,
	token.PercentEq:  true,
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

// Parser turns a token stream into a *ast.Program, collecting syntax
// errors rather than halting on the first one.
type Parser struct {
	l      *lexer.Lexer
	errors []*errs.Error

	currentToken token.Token
	peekToken    token.Token

	prefixParseFns map[token.Type]prefixParseFn
	infixParseFns  map[token.Type]infixParseFn
}

// New constructs a Parser reading from l.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}

	p.prefixParseFns = make(map[token.Type]prefixParseFn)
	p.registerPrefix(token.Ident, p.parseIdentifier)
	p.registerPrefix(token.Int, p.parseIntegerLiteral)
	p.registerPrefix(token.True, p.parseBooleanLiteral)
	p.registerPrefix(token.False, p.parseBooleanLiteral)
	p.registerPrefix(token.String, p.parseStringLiteral)
	p.registerPrefix(token.Char, p.parseCharLiteral)
	p.registerPrefix(token.None, p.parseNoneLiteral)
	p.registerPrefix(token.Some, p.parseSomeExpression)
	p.registerPrefix(token.Bang, p.parsePrefixExpression)
	p.registerPrefix(token.Minus, p.parsePrefixExpression)
	p.registerPrefix(token.Lparen, p.parseGroupedExpression)
	p.registerPrefix(token.Lbracket, p.parseListLiteral)
	p.registerPrefix(token.Function, p.parseClosureLiteral)

	p.infixParseFns = make(map[token.Type]infixParseFn)
	for t := range precedences {
		switch t {
		case token.Lparen:
			p.registerInfix(t, p.parseCallExpression)
		case token.Lbracket:
			p.registerInfix(t, p.parseIndexExpression)
		case token.Dot:
			p.registerInfix(t, p.parseMemberExpression)
		case token.ColonCol:
			p.registerInfix(t, p.parseModuleAccessExpression)
		default:
			p.registerInfix(t, p.parseInfixExpression)
		}
	}

	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) registerPrefix(t token.Type, fn prefixParseFn) { p.prefixParseFns[t] = fn }
func (p *Parser) registerInfix(t token.Type, fn infixParseFn)   { p.infixParseFns[t] = fn }

// Errors returns every syntax error accumulated while parsing.
func (p *Parser) Errors() []*errs.Error { return p.errors }

func (p *Parser) errorf(tok token.Token, format string, args ...any) {
	p.errors = append(p.errors, errs.New(errs.Syntax, tok, format, args...))
}

func (p *Parser) nextToken() {
	p.currentToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t token.Type) bool  { return p.currentToken.Type == t }
func (p *Parser) peekTokenIs(t token.Type) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t token.Type) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf(p.peekToken, "expected next token to be %s, got %s instead", t, p.peekToken.Type)
	return false
}

func (p *Parser) peekPrecedence() int {
	if pr, ok := precedences[p.peekToken.Type]; ok {
		return pr
	}
	return Lowest
}

func (p *Parser) curPrecedence() int {
	if pr, ok := precedences[p.currentToken.Type]; ok {
		return pr
	}
	return Lowest
}

// ParseProgram parses a complete EARL source file and returns its AST.
// Check [Parser.Errors] afterwards.
func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{}

	for !p.curTokenIs(token.EOF) {
		if stmt := p.parseStatement(); stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}

	return program
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.currentToken.Type {
	case token.At:
		return p.parseAttributedStatement()
	case token.Let:
		return p.parseLetStatement(nil)
	case token.Def:
		return p.parseDefStatement(nil)
	case token.Class:
		return p.parseClassStatement(nil)
	case token.Import:
		return p.parseImportStatement()
	case token.Module:
		return p.parseModuleStatement()
	case token.Lbrace:
		return p.parseBlockStatement()
	case token.If:
		return p.parseIfStatement()
	case token.While:
		return p.parseWhileStatement()
	case token.For:
		return p.parseForStatement()
	case token.Foreach:
		return p.parseForeachStatement()
	case token.Return:
		return p.parseReturnStatement()
	case token.Break:
		return p.parseBreakStatement()
	case token.Continue:
		return p.parseContinueStatement()
	default:
		return p.parseExpressionOrMutStatement()
	}
}

// parseAttrs consumes a comma-separated run of "@ident" attributes
// ("@mut, @pub"), leaving currentToken
// on the keyword that follows.
func (p *Parser) parseAttrs() []string {
	var attrs []string
	for p.curTokenIs(token.At) {
		if !p.expectPeek(token.Ident) {
			return attrs
		}
		attrs = append(attrs, p.currentToken.Literal)
		if p.peekTokenIs(token.Comma) {
			p.nextToken()
			if !p.expectPeek(token.At) {
				return attrs
			}
			continue
		}
		p.nextToken()
		break
	}
	return attrs
}

func (p *Parser) parseAttributedStatement() ast.Statement {
	attrs := p.parseAttrs()
	switch p.currentToken.Type {
	case token.Let:
		return p.parseLetStatement(attrs)
	case token.Def:
		return p.parseDefStatement(attrs)
	case token.Class:
		return p.parseClassStatement(attrs)
	default:
		p.errorf(p.currentToken, "attributes are not valid before %s", p.currentToken.Type)
		return nil
	}
}

func (p *Parser) parseLetStatement(attrs []string) ast.Statement {
	tok := p.currentToken

	if !p.expectPeek(token.Ident) {
		return nil
	}
	name := &ast.Identifier{Value: p.currentToken.Literal}
	name.Token = p.currentToken

	typeName := ""
	if p.peekTokenIs(token.Colon) {
		p.nextToken()
		if !p.expectPeek(token.Ident) {
			return nil
		}
		typeName = p.currentToken.Literal
	}

	if !p.expectPeek(token.Assign) {
		return nil
	}
	p.nextToken()
	value := p.parseExpression(Lowest)

	if cl, ok := value.(*ast.ClosureLiteral); ok {
		if cl.Name == "" {
			cl.Name = name.Value
		}
		if containsAttr(attrs, "world") {
			cl.World = true
		}
	}

	if p.peekTokenIs(token.Semicolon) {
		p.nextToken()
	}

	ls := &ast.LetStatement{Attrs: attrs, Name: name, TypeName: typeName, Value: value}
	ls.Token = tok
	return ls
}

func (p *Parser) parseDefStatement(attrs []string) ast.Statement {
	tok := p.currentToken
	world := containsAttr(attrs, "world")

	if !p.expectPeek(token.Ident) {
		return nil
	}
	name := &ast.Identifier{Value: p.currentToken.Literal}
	name.Token = p.currentToken

	if !p.expectPeek(token.Lparen) {
		return nil
	}
	params := p.parseParameterList(token.Rparen)

	returnType := ""
	if p.peekTokenIs(token.Arrow) {
		p.nextToken()
		if !p.expectPeek(token.Ident) {
			return nil
		}
		returnType = p.currentToken.Literal
	}

	if !p.expectPeek(token.Lbrace) {
		return nil
	}
	body := p.parseBlockStatement()

	ds := &ast.DefStatement{Attrs: attrs, Name: name, Parameters: params, ReturnType: returnType, Body: body, World: world}
	ds.Token = tok
	return ds
}

func (p *Parser) parseClassStatement(attrs []string) ast.Statement {
	tok := p.currentToken

	if !p.expectPeek(token.Ident) {
		return nil
	}
	name := &ast.Identifier{Value: p.currentToken.Literal}
	name.Token = p.currentToken

	if !p.expectPeek(token.Lbracket) {
		return nil
	}
	params := p.parseParameterList(token.Rbracket)

	if !p.expectPeek(token.Lbrace) {
		return nil
	}
	body := p.parseBlockStatement()

	cs := &ast.ClassStatement{Attrs: attrs, Name: name, Parameters: params, Body: body}
	cs.Token = tok
	return cs
}

// parseParameterList parses a comma-separated identifier list, each
// optionally annotated with ": type" (the type is skipped: it is neither
// checked nor retained on ast.Identifier), up to and including the closing
// delimiter end.
func (p *Parser) parseParameterList(end token.Type) []*ast.Identifier {
	var params []*ast.Identifier

	if p.peekTokenIs(end) {
		p.nextToken()
		return params
	}
	p.nextToken()

	params = append(params, p.parseOneParameter())
	for p.peekTokenIs(token.Comma) {
		p.nextToken()
		p.nextToken()
		params = append(params, p.parseOneParameter())
	}

	if !p.expectPeek(end) {
		return nil
	}
	return params
}

func (p *Parser) parseOneParameter() *ast.Identifier {
	ident := &ast.Identifier{Value: p.currentToken.Literal}
	ident.Token = p.currentToken
	if p.peekTokenIs(token.Colon) {
		p.nextToken()
		p.expectPeek(token.Ident)
	}
	return ident
}

func (p *Parser) parseImportStatement() ast.Statement {
	tok := p.currentToken

	if !p.expectPeek(token.String) {
		return nil
	}
	path := p.currentToken.Literal

	alias := ""
	if p.peekTokenIs(token.As) {
		p.nextToken()
		if !p.expectPeek(token.Ident) {
			return nil
		}
		alias = p.currentToken.Literal
	}

	if p.peekTokenIs(token.Semicolon) {
		p.nextToken()
	}

	is := &ast.ImportStatement{Path: path, Alias: alias}
	is.Token = tok
	return is
}

func (p *Parser) parseModuleStatement() ast.Statement {
	tok := p.currentToken
	if !p.expectPeek(token.Ident) {
		return nil
	}
	name := &ast.Identifier{Value: p.currentToken.Literal}
	name.Token = p.currentToken

	if p.peekTokenIs(token.Semicolon) {
		p.nextToken()
	}

	ms := &ast.ModuleStatement{Name: name}
	ms.Token = tok
	return ms
}

func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	block := &ast.BlockStatement{}
	block.Token = p.currentToken

	p.nextToken()
	for !p.curTokenIs(token.Rbrace) && !p.curTokenIs(token.EOF) {
		if stmt := p.parseStatement(); stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.nextToken()
	}
	return block
}

func (p *Parser) parseIfStatement() ast.Statement {
	tok := p.currentToken

	p.nextToken()
	condition := p.parseExpression(Lowest)

	if !p.expectPeek(token.Lbrace) {
		return nil
	}
	consequence := p.parseBlockStatement()

	is := &ast.IfStatement{Condition: condition, Consequence: consequence}
	is.Token = tok

	for p.peekTokenIs(token.Elif) {
		p.nextToken()
		p.nextToken()
		cond := p.parseExpression(Lowest)
		if !p.expectPeek(token.Lbrace) {
			return nil
		}
		is.Elifs = append(is.Elifs, ast.ElifClause{Condition: cond, Consequence: p.parseBlockStatement()})
	}

	if p.peekTokenIs(token.Else) {
		p.nextToken()
		if !p.expectPeek(token.Lbrace) {
			return nil
		}
		is.Alternative = p.parseBlockStatement()
	}

	return is
}

func (p *Parser) parseWhileStatement() ast.Statement {
	tok := p.currentToken
	p.nextToken()
	condition := p.parseExpression(Lowest)

	if !p.expectPeek(token.Lbrace) {
		return nil
	}
	body := p.parseBlockStatement()

	ws := &ast.WhileStatement{Condition: condition, Body: body}
	ws.Token = tok
	return ws
}

// parseForStatement parses a C-style "for (init; cond; post) { ... }"
// loop. Parens are required to disambiguate the three clauses.
func (p *Parser) parseForStatement() ast.Statement {
	tok := p.currentToken

	if !p.expectPeek(token.Lparen) {
		return nil
	}
	p.nextToken()

	var init ast.Statement
	if !p.curTokenIs(token.Semicolon) {
		init = p.parseStatement()
	}
	if !p.curTokenIs(token.Semicolon) && !p.expectPeek(token.Semicolon) {
		return nil
	}
	p.nextToken()

	var cond ast.Expression
	if !p.curTokenIs(token.Semicolon) {
		cond = p.parseExpression(Lowest)
	}
	if !p.expectPeek(token.Semicolon) {
		return nil
	}
	p.nextToken()

	var post ast.Statement
	if !p.curTokenIs(token.Rparen) {
		post = p.parseExpressionOrMutStatement()
	}
	if !p.curTokenIs(token.Rparen) && !p.expectPeek(token.Rparen) {
		return nil
	}

	if !p.expectPeek(token.Lbrace) {
		return nil
	}
	body := p.parseBlockStatement()

	fs := &ast.ForStatement{Init: init, Condition: cond, Post: post, Body: body}
	fs.Token = tok
	return fs
}

func (p *Parser) parseForeachStatement() ast.Statement {
	tok := p.currentToken

	if !p.expectPeek(token.Ident) {
		return nil
	}
	iterator := &ast.Identifier{Value: p.currentToken.Literal}
	iterator.Token = p.currentToken

	if !p.expectPeek(token.In) {
		return nil
	}
	p.nextToken()
	iterable := p.parseExpression(Lowest)

	if !p.expectPeek(token.Lbrace) {
		return nil
	}
	body := p.parseBlockStatement()

	fe := &ast.ForeachStatement{Iterator: iterator, Iterable: iterable, Body: body}
	fe.Token = tok
	return fe
}

func (p *Parser) parseReturnStatement() ast.Statement {
	tok := p.currentToken
	rs := &ast.ReturnStatement{}
	rs.Token = tok

	if !p.peekTokenIs(token.Semicolon) {
		p.nextToken()
		rs.ReturnValue = p.parseExpression(Lowest)
	}

	if p.peekTokenIs(token.Semicolon) {
		p.nextToken()
	}
	return rs
}

func (p *Parser) parseBreakStatement() ast.Statement {
	bs := &ast.BreakStatement{}
	bs.Token = p.currentToken
	if p.peekTokenIs(token.Semicolon) {
		p.nextToken()
	}
	return bs
}

func (p *Parser) parseContinueStatement() ast.Statement {
	cs := &ast.ContinueStatement{}
	cs.Token = p.currentToken
	if p.peekTokenIs(token.Semicolon) {
		p.nextToken()
	}
	return cs
}

// parseExpressionOrMutStatement parses a leading expression and, if it is
// immediately followed by an assignment operator, folds it into a Mut
// statement; otherwise it stands alone as an expression statement.
func (p *Parser) parseExpressionOrMutStatement() ast.Statement {
	tok := p.currentToken
	expr := p.parseExpression(Lowest)

	if assignOps[p.peekToken.Type] {
		p.nextToken()
		op := p.currentToken.Literal
		p.nextToken()
		value := p.parseExpression(Lowest)
		if p.peekTokenIs(token.Semicolon) {
			p.nextToken()
		}
		ms := &ast.MutStatement{Target: expr, Operator: op, Value: value}
		ms.Token = tok
		return ms
	}

	if p.peekTokenIs(token.Semicolon) {
		p.nextToken()
	}
	es := &ast.ExpressionStatement{Expression: expr}
	es.Token = tok
	return es
}

func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix := p.prefixParseFns[p.currentToken.Type]
	if prefix == nil {
		p.errorf(p.currentToken, "no prefix parse function for %s found", p.currentToken.Type)
		return nil
	}
	left := prefix()

	for !p.peekTokenIs(token.Semicolon) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}

	return left
}

func (p *Parser) parseIdentifier() ast.Expression {
	id := &ast.Identifier{Value: p.currentToken.Literal}
	id.Token = p.currentToken
	return id
}

func (p *Parser) parseIntegerLiteral() ast.Expression {
	lit := &ast.IntegerLiteral{}
	lit.Token = p.currentToken

	v, err := strconv.ParseInt(p.currentToken.Literal, 0, 64)
	if err != nil {
		p.errorf(p.currentToken, "could not parse %q as an integer literal", p.currentToken.Literal)
		return nil
	}
	lit.Value = v
	return lit
}

func (p *Parser) parseBooleanLiteral() ast.Expression {
	b := &ast.BooleanLiteral{Value: p.curTokenIs(token.True)}
	b.Token = p.currentToken
	return b
}

func (p *Parser) parseStringLiteral() ast.Expression {
	s := &ast.StringLiteral{Value: p.currentToken.Literal}
	s.Token = p.currentToken
	return s
}

func (p *Parser) parseCharLiteral() ast.Expression {
	c := &ast.CharLiteral{Value: p.currentToken.Literal}
	c.Token = p.currentToken
	return c
}

func (p *Parser) parseNoneLiteral() ast.Expression {
	n := &ast.NoneLiteral{}
	n.Token = p.currentToken
	return n
}

func (p *Parser) parseSomeExpression() ast.Expression {
	tok := p.currentToken
	if !p.expectPeek(token.Lparen) {
		return nil
	}
	p.nextToken()
	value := p.parseExpression(Lowest)
	if !p.expectPeek(token.Rparen) {
		return nil
	}
	se := &ast.SomeExpression{Value: value}
	se.Token = tok
	return se
}

func (p *Parser) parsePrefixExpression() ast.Expression {
	tok := p.currentToken
	op := p.currentToken.Literal
	p.nextToken()
	right := p.parseExpression(Prefix)
	pe := &ast.PrefixExpression{Operator: op, Right: right}
	pe.Token = tok
	return pe
}

func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	tok := p.currentToken
	op := p.currentToken.Literal
	precedence := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(precedence)
	ie := &ast.InfixExpression{Left: left, Operator: op, Right: right}
	ie.Token = tok
	return ie
}

func (p *Parser) parseGroupedExpression() ast.Expression {
	p.nextToken()
	expr := p.parseExpression(Lowest)
	if !p.expectPeek(token.Rparen) {
		return nil
	}
	return expr
}

func (p *Parser) parseListLiteral() ast.Expression {
	tok := p.currentToken
	ll := &ast.ListLiteral{Elements: p.parseExpressionList(token.Rbracket)}
	ll.Token = tok
	return ll
}

func (p *Parser) parseExpressionList(end token.Type) []ast.Expression {
	var list []ast.Expression

	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}

	p.nextToken()
	list = append(list, p.parseExpression(Lowest))
	for p.peekTokenIs(token.Comma) {
		p.nextToken()
		p.nextToken()
		list = append(list, p.parseExpression(Lowest))
	}

	if !p.expectPeek(end) {
		return nil
	}
	return list
}

func (p *Parser) parseClosureLiteral() ast.Expression {
	tok := p.currentToken

	if !p.expectPeek(token.Lparen) {
		return nil
	}
	params := p.parseParameterList(token.Rparen)

	if !p.expectPeek(token.Lbrace) {
		return nil
	}
	body := p.parseBlockStatement()

	cl := &ast.ClosureLiteral{Parameters: params, Body: body}
	cl.Token = tok
	return cl
}

func (p *Parser) parseCallExpression(function ast.Expression) ast.Expression {
	tok := p.currentToken
	ce := &ast.CallExpression{Function: function, Arguments: p.parseExpressionList(token.Rparen)}
	ce.Token = tok
	return ce
}

func (p *Parser) parseIndexExpression(left ast.Expression) ast.Expression {
	tok := p.currentToken
	p.nextToken()
	index := p.parseExpression(Lowest)
	if !p.expectPeek(token.Rbracket) {
		return nil
	}
	ie := &ast.IndexExpression{Left: left, Index: index}
	ie.Token = tok
	return ie
}

func (p *Parser) parseMemberExpression(left ast.Expression) ast.Expression {
	tok := p.currentToken
	// "foreach" lexes as a keyword but is also a member intrinsic name.
	if p.peekTokenIs(token.Foreach) {
		p.nextToken()
	} else if !p.expectPeek(token.Ident) {
		return nil
	}
	member := p.currentToken.Literal

	me := &ast.MemberExpression{Left: left, Member: member}
	me.Token = tok

	if p.peekTokenIs(token.Lparen) {
		p.nextToken()
		me.IsCall = true
		me.Arguments = p.parseExpressionList(token.Rparen)
	}
	return me
}

func (p *Parser) parseModuleAccessExpression(left ast.Expression) ast.Expression {
	tok := p.currentToken
	if !p.expectPeek(token.Ident) {
		return nil
	}
	mae := &ast.ModuleAccessExpression{Module: left, Name: p.currentToken.Literal}
	mae.Token = tok
	return mae
}

func containsAttr(attrs []string, name string) bool {
	for _, a := range attrs {
		if a == name {
			return true
		}
	}
	return false
}
