package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupIdent(t *testing.T) {
	tests := []struct {
		ident string
		want  TokenType
	}{
		{"var", VAR},
		{"fun", FUN},
		{"if", IF},
		{"else", ELSE},
		{"for", FOR},
		{"while", WHILE},
		{"print", PRINT},
		{"return", RETURN},
		{"true", TRUE},
		{"false", FALSE},
		{"nil", NIL},
		{"and", AND},
		{"or", OR},
		{"somethingElse", IDENT},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LookupIdent(tt.ident), tt.ident)
	}
}
