package lexer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxIdentifierLength is the longest identifier the lexer accepts.
const MaxIdentifierLength = 255

var (
	// ErrUnterminatedString is reported for a string literal without closing quote.
	ErrUnterminatedString = errors.New("unterminated string literal")

	// ErrIdentifierTooLong is reported for identifiers above MaxIdentifierLength.
	ErrIdentifierTooLong = errors.New("identifier too long")

	// ErrNumberOutOfRange is reported for a number literal too large for a double.
	ErrNumberOutOfRange = errors.New("number out of range")
)

// Error is a lexical error with the column where the offending token started.
type Error struct {
	Message string
	Column  int
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("lexer error at column %d: %s", e.Column, e.Message)
}

// Unwrap returns the sentinel error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Lexer tokenizes one line of task script.
// It never stops on unknown characters; those come back as TOKEN_INVALID
// so the caller can report the exact position.
type Lexer struct {
	input        string
	position     int  // current position in input
	readPosition int  // current reading position (after current char)
	ch           byte // current char
}

// New creates a new Lexer.
func New(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// Reset rewinds the lexer to the start of its input.
func (l *Lexer) Reset() {
	l.position = 0
	l.readPosition = 0
	l.readChar()
}

// NextToken returns the next token.
// Once the line is exhausted (or a % comment is reached) every call returns TOKEN_EOL.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	column := l.position + 1

	if l.position >= len(l.input) || l.ch == '%' {
		l.position = len(l.input)
		l.readPosition = len(l.input) + 1
		l.ch = 0
		return Token{Type: TOKEN_EOL, Column: column}, nil
	}

	switch l.ch {
	case '&':
		return l.single(TOKEN_AMPERSAND, column), nil
	case '#':
		return l.single(TOKEN_HASH, column), nil
	case '+':
		return l.single(TOKEN_PLUS, column), nil
	case '*':
		return l.single(TOKEN_ASTERISK, column), nil
	case '/':
		return l.single(TOKEN_SLASH, column), nil
	case '\\':
		return l.single(TOKEN_BACKSLASH, column), nil
	case '^':
		return l.single(TOKEN_CARET, column), nil
	case '(':
		return l.single(TOKEN_LPAREN, column), nil
	case ')':
		return l.single(TOKEN_RPAREN, column), nil
	case ',':
		return l.single(TOKEN_COMMA, column), nil
	case ';':
		return l.single(TOKEN_SEMICOLON, column), nil
	case '=':
		return l.single(TOKEN_EQ, column), nil
	case '-':
		if l.peekChar() == '>' {
			return l.double(TOKEN_ARROW, column), nil
		}
		return l.single(TOKEN_MINUS, column), nil
	case '<':
		switch l.peekChar() {
		case '=':
			return l.double(TOKEN_LE, column), nil
		case '>':
			return l.double(TOKEN_NE, column), nil
		}
		return l.single(TOKEN_LT, column), nil
	case '>':
		if l.peekChar() == '=' {
			return l.double(TOKEN_GE, column), nil
		}
		return l.single(TOKEN_GT, column), nil
	case ':':
		if l.peekChar() == '=' {
			return l.double(TOKEN_ASSIGN, column), nil
		}
		return l.single(TOKEN_COLON, column), nil
	case '.':
		if isDigit(l.peekChar()) {
			return l.readNumber(column)
		}
		return l.single(TOKEN_DOT, column), nil
	case '\'':
		return l.readRawString(column)
	case '"':
		return l.readQuotedString(column)
	}

	if isDigit(l.ch) {
		return l.readNumber(column)
	}
	if isIdentifierStart(l.ch) {
		return l.readIdentifier(column)
	}
	return l.single(TOKEN_INVALID, column), nil
}

// Tokenize returns all tokens of the line, ending with TOKEN_EOL.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOL {
			return tokens, nil
		}
	}
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

// unreadChar steps back one character.
func (l *Lexer) unreadChar() {
	l.readPosition = l.position
	l.position--
	l.ch = l.input[l.position]
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) single(tt TokenType, column int) Token {
	tok := Token{Type: tt, Literal: string(l.ch), Column: column}
	l.readChar()
	return tok
}

func (l *Lexer) double(tt TokenType, column int) Token {
	tok := Token{Type: tt, Literal: l.input[l.position : l.position+2], Column: column}
	l.readChar()
	l.readChar()
	return tok
}

// readNumber reads an integer or float literal.
// Digits are accumulated as an integer; an integer that leaves the 32-bit
// range turns the literal into a float. The double is the correctly rounded
// value of the digits, so fractional digits past its precision are ignored.
func (l *Lexer) readNumber(column int) (Token, error) {
	start := l.position
	var intValue int64
	isFloat := false

	for isDigit(l.ch) {
		if !isFloat {
			intValue = intValue*10 + int64(l.ch-'0')
			if intValue > math.MaxInt32 {
				isFloat = true
			}
		}
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar() // consume '.'
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	tok := Token{Literal: l.input[start:l.position], Column: column}
	if !isFloat {
		tok.Type = TOKEN_INT
		tok.Int = int32(intValue)
		return tok, nil
	}

	value, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil || math.IsInf(value, 0) {
		return Token{}, &Error{Message: "number does not fit in a double", Column: column, Err: ErrNumberOutOfRange}
	}
	tok.Type = TOKEN_FLOAT
	tok.Float = value
	return tok, nil
}

// readRawString reads a single-quoted string. No escapes.
func (l *Lexer) readRawString(column int) (Token, error) {
	start := l.position
	l.readChar() // consume '
	contentStart := l.position
	for l.ch != '\'' {
		if l.position >= len(l.input) {
			return Token{}, &Error{Message: "missing closing '", Column: column, Err: ErrUnterminatedString}
		}
		l.readChar()
	}
	content := l.input[contentStart:l.position]
	l.readChar() // consume '
	return Token{Type: TOKEN_STRING, Literal: l.input[start:l.position], Column: column, String: content}, nil
}

// readQuotedString reads a double-quoted string with backslash escapes.
func (l *Lexer) readQuotedString(column int) (Token, error) {
	start := l.position
	l.readChar() // consume "
	var sb strings.Builder
	for l.ch != '"' {
		if l.position >= len(l.input) {
			return Token{}, &Error{Message: "missing closing \"", Column: column, Err: ErrUnterminatedString}
		}
		if l.ch == '\\' {
			l.readChar()
			if l.position >= len(l.input) {
				return Token{}, &Error{Message: "missing closing \"", Column: column, Err: ErrUnterminatedString}
			}
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(l.ch)
			}
		} else {
			sb.WriteByte(l.ch)
		}
		l.readChar()
	}
	l.readChar() // consume "
	return Token{Type: TOKEN_STRING, Literal: l.input[start:l.position], Column: column, String: sb.String()}, nil
}

// readIdentifier reads an identifier and folds it to uppercase.
// A trailing '.' is not part of the name; it is left for the next call.
func (l *Lexer) readIdentifier(column int) (Token, error) {
	start := l.position
	for IsIdentifierChar(l.ch) {
		l.readChar()
	}
	if l.input[l.position-1] == '.' {
		l.unreadChar()
	}
	text := l.input[start:l.position]
	if len(text) > MaxIdentifierLength {
		return Token{}, &Error{Message: fmt.Sprintf("identifier longer than %d characters", MaxIdentifierLength), Column: column, Err: ErrIdentifierTooLong}
	}
	return lookupIdent(Token{Literal: strings.ToUpper(text), Column: column}), nil
}

// skipWhitespace skips whitespace characters.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\f' {
		l.readChar()
	}
}

// isDigit checks if a character is a digit.
func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// isLetter checks if a character is an ASCII letter.
func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z'
}

func isIdentifierStart(ch byte) bool {
	return isLetter(ch) || ch == '$' || ch == '_'
}

// IsIdentifierChar reports whether ch may appear inside an identifier.
func IsIdentifierChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '$' || ch == '_' || ch == '.'
}

// IsValidUppercaseIdentifier reports whether s is a canonical identifier:
// non-empty, uppercase, starting with a letter or '_', continuing with
// letters, digits, '_', '.' or '$'.
func IsValidUppercaseIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case 'A' <= ch && ch <= 'Z', ch == '_':
		case i > 0 && (isDigit(ch) || ch == '.' || ch == '$'):
		default:
			return false
		}
	}
	return true
}
