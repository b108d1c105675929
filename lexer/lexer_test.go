package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loxgo/token"
)

func TestNextToken_Punctuation(t *testing.T) {
	input := `(){};,+-*/`
	want := []token.TokenType{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
		token.SEMICOLON, token.COMMA, token.PLUS, token.MINUS,
		token.ASTERISK, token.SLASH, token.EOF,
	}

	l := New(input)
	for i, tt := range want {
		tok := l.NextToken()
		assert.Equal(t, tt, tok.Type, "token %d", i)
	}
}

func TestNextToken_TwoCharOperators(t *testing.T) {
	input := `== != <= >= = < >`
	want := []struct {
		typ     token.TokenType
		literal string
	}{
		{token.EQ, "=="},
		{token.NOT_EQ, "!="},
		{token.LE, "<="},
		{token.GE, ">="},
		{token.ASSIGN, "="},
		{token.LT, "<"},
		{token.GT, ">"},
	}

	l := New(input)
	for _, tt := range want {
		tok := l.NextToken()
		assert.Equal(t, tt.typ, tok.Type)
		assert.Equal(t, tt.literal, tok.Literal)
	}
}

func TestNextToken_KeywordsAndIdentifiers(t *testing.T) {
	input := `var x = foo;`
	l := New(input)

	assert.Equal(t, token.VAR, l.NextToken().Type)
	ident := l.NextToken()
	assert.Equal(t, token.IDENT, ident.Type)
	assert.Equal(t, "x", ident.Literal)
	assert.Equal(t, token.ASSIGN, l.NextToken().Type)
	foo := l.NextToken()
	assert.Equal(t, token.IDENT, foo.Type)
	assert.Equal(t, "foo", foo.Literal)
	assert.Equal(t, token.SEMICOLON, l.NextToken().Type)
}

func TestNextToken_NumberLiteral(t *testing.T) {
	l := New(`123 45.67`)

	tok := l.NextToken()
	require.Equal(t, token.NUMBER, tok.Type)
	assert.Equal(t, "123", tok.Literal)

	tok = l.NextToken()
	require.Equal(t, token.NUMBER, tok.Type)
	assert.Equal(t, "45.67", tok.Literal)
}

func TestNextToken_StringLiteral(t *testing.T) {
	l := New(`"hello world"`)
	tok := l.NextToken()
	require.Equal(t, token.STRING, tok.Type)
	assert.Equal(t, "hello world", tok.Literal)
}

func TestNextToken_UnterminatedString(t *testing.T) {
	l := New(`"unterminated`)
	tok := l.NextToken()
	assert.Equal(t, token.ILLEGAL, tok.Type)
}

func TestNextToken_LineComment(t *testing.T) {
	l := New("1 // a comment\n2")
	first := l.NextToken()
	assert.Equal(t, "1", first.Literal)
	second := l.NextToken()
	assert.Equal(t, "2", second.Literal)
	assert.Equal(t, 2, second.Line)
}

func TestNextToken_LineTracking(t *testing.T) {
	l := New("var a = 1;\nvar b = 2;")
	var lastLine int
	for {
		tok := l.NextToken()
		if tok.Type == token.EOF {
			break
		}
		lastLine = tok.Line
	}
	assert.Equal(t, 2, lastLine)
}
