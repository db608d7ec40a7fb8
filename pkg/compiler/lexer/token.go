// Package lexer provides lexical analysis for single lines of task script.
package lexer

import (
	"fmt"
	"math"
	"strconv"
)

// TokenType represents the type of a token.
type TokenType int

// Token types
const (
	// Special tokens
	TOKEN_EOL     TokenType = iota // end of line (also after a % comment)
	TOKEN_INVALID                  // any character the grammar does not know

	// Literals
	TOKEN_IDENT   // identifier, folded to uppercase
	TOKEN_INT     // 32-bit integer literal
	TOKEN_FLOAT   // floating point literal
	TOKEN_STRING  // string literal
	TOKEN_BOOLEAN // TRUE / FALSE

	// Operators
	TOKEN_AMPERSAND // &
	TOKEN_HASH      // #
	TOKEN_PLUS      // +
	TOKEN_MINUS     // -
	TOKEN_ASTERISK  // *
	TOKEN_SLASH     // /
	TOKEN_BACKSLASH // \
	TOKEN_CARET     // ^
	TOKEN_EQ        // =
	TOKEN_NE        // <>
	TOKEN_LT        // <
	TOKEN_LE        // <=
	TOKEN_GT        // >
	TOKEN_GE        // >=
	TOKEN_ASSIGN    // :=
	TOKEN_ARROW     // ->
	TOKEN_AND       // AND
	TOKEN_OR        // OR
	TOKEN_XOR       // XOR
	TOKEN_NOT       // NOT
	TOKEN_MOD       // MOD

	// Delimiters
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_COMMA     // ,
	TOKEN_SEMICOLON // ;
	TOKEN_COLON     // :
	TOKEN_DOT       // .
)

// Token represents a lexical token.
// Literal tokens carry their decoded payload in String, Int or Float.
// Boolean tokens use Int (1 for TRUE, 0 for FALSE).
type Token struct {
	Type    TokenType
	Literal string // source text (identifiers: folded name)
	Column  int    // 1-indexed column of the first character

	String string
	Int    int32
	Float  float64
}

// tokenTypeNames maps TokenType to its string representation.
var tokenTypeNames = map[TokenType]string{
	TOKEN_EOL:     "EOL",
	TOKEN_INVALID: "INVALID",

	TOKEN_IDENT:   "IDENT",
	TOKEN_INT:     "INT",
	TOKEN_FLOAT:   "FLOAT",
	TOKEN_STRING:  "STRING",
	TOKEN_BOOLEAN: "BOOLEAN",

	TOKEN_AMPERSAND: "&",
	TOKEN_HASH:      "#",
	TOKEN_PLUS:      "+",
	TOKEN_MINUS:     "-",
	TOKEN_ASTERISK:  "*",
	TOKEN_SLASH:     "/",
	TOKEN_BACKSLASH: "\\",
	TOKEN_CARET:     "^",
	TOKEN_EQ:        "=",
	TOKEN_NE:        "<>",
	TOKEN_LT:        "<",
	TOKEN_LE:        "<=",
	TOKEN_GT:        ">",
	TOKEN_GE:        ">=",
	TOKEN_ASSIGN:    ":=",
	TOKEN_ARROW:     "->",
	TOKEN_AND:       "AND",
	TOKEN_OR:        "OR",
	TOKEN_XOR:       "XOR",
	TOKEN_NOT:       "NOT",
	TOKEN_MOD:       "MOD",

	TOKEN_LPAREN:    "(",
	TOKEN_RPAREN:    ")",
	TOKEN_COMMA:     ",",
	TOKEN_SEMICOLON: ";",
	TOKEN_COLON:     ":",
	TOKEN_DOT:       ".",
}

// String returns a string representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsOperator returns true if the token type is an operator.
func (t TokenType) IsOperator() bool {
	return t >= TOKEN_AMPERSAND && t <= TOKEN_MOD
}

// IsLiteral returns true if the token type carries a literal value.
// Identifiers are not literals.
func (t TokenType) IsLiteral() bool {
	return t >= TOKEN_INT && t <= TOKEN_BOOLEAN
}

// Bool returns the payload of a boolean token.
func (t Token) Bool() bool {
	return t.Int != 0
}

// Value returns the decoded payload of a literal token as a Go value:
// string, int32, float64 or bool. Other tokens yield nil.
func (t Token) Value() any {
	switch t.Type {
	case TOKEN_STRING:
		return t.String
	case TOKEN_INT:
		return t.Int
	case TOKEN_FLOAT:
		return t.Float
	case TOKEN_BOOLEAN:
		return t.Bool()
	}
	return nil
}

// GoString renders the token for test failure messages.
func (t Token) GoString() string {
	switch t.Type {
	case TOKEN_STRING:
		return fmt.Sprintf("STRING(%q)", t.String)
	case TOKEN_INT:
		return "INT(" + strconv.Itoa(int(t.Int)) + ")"
	case TOKEN_FLOAT:
		return "FLOAT(" + strconv.FormatFloat(t.Float, 'g', -1, 64) + ")"
	case TOKEN_BOOLEAN:
		return "BOOLEAN(" + strconv.FormatBool(t.Bool()) + ")"
	case TOKEN_IDENT:
		return "IDENT(" + t.Literal + ")"
	}
	return t.Type.String()
}

// keywords maps folded identifiers to the token they become.
var keywords = map[string]TokenType{
	"AND": TOKEN_AND,
	"OR":  TOKEN_OR,
	"XOR": TOKEN_XOR,
	"NOT": TOKEN_NOT,
	"MOD": TOKEN_MOD,
}

// lookupIdent turns a folded identifier into its final token.
func lookupIdent(tok Token) Token {
	switch tok.Literal {
	case "TRUE":
		tok.Type = TOKEN_BOOLEAN
		tok.Int = 1
		return tok
	case "FALSE":
		tok.Type = TOKEN_BOOLEAN
		tok.Int = 0
		return tok
	case "PI":
		tok.Type = TOKEN_FLOAT
		tok.Float = math.Pi
		return tok
	}
	if tt, ok := keywords[tok.Literal]; ok {
		tok.Type = tt
		return tok
	}
	tok.Type = TOKEN_IDENT
	return tok
}
