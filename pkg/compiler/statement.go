package compiler

import (
	"errors"

	"github.com/zurustar/unitask/pkg/compiler/lexer"
)

// RestartName is the one control keyword of the flat task grammar.
const RestartName = "RESTART"

// reserved lists keywords that open or close structured code, declare
// things, or otherwise have no place in a flat task.
var reserved = map[string]bool{
	"IF": true, "ELSE": true, "ELSEIF": true, "ENDIF": true,
	"FOR": true, "FOREACH": true, "NEXT": true,
	"DO": true, "LOOP": true, "WHILE": true, "UNTIL": true,
	"BREAK": true, "CONTINUE": true,
	"SELECT": true, "CASE": true, "ENDSELECT": true,
	"SUB": true, "ENDSUB": true, "FUNCTION": true, "ENDFUNCTION": true, "RETURN": true,
	"TRY": true, "ENDTRY": true,
	"WITH": true, "ENDWITH": true, "ON": true, "ENDON": true,
	"DIM": true, "LOCAL": true, "STATIC": true, "SHARED": true,
	"STRUCT": true, "ENDSTRUCT": true,
	"BIND": true, "EVAL": true, "OPTION": true, "CALL": true,
}

// IsReserved reports whether a folded statement name is a structured keyword.
func IsReserved(name string) bool {
	return reserved[name]
}

// Statement is one decoded task line.
type Statement struct {
	Name  string // folded to uppercase
	Args  []any  // string, int32, float64 or bool
	Blank bool   // empty line or comment
}

// IsRestart reports whether the statement is the RESTART keyword.
func (s Statement) IsRestart() bool {
	return !s.Blank && s.Name == RestartName
}

// ParseStatement decodes "NAME [arg (, arg)*]" where every arg is a string,
// boolean, or optionally signed number literal. Blank and comment lines
// come back with Blank set.
func ParseStatement(line string) (Statement, error) {
	l := lexer.New(line)

	tok, err := next(l)
	if err != nil {
		return Statement{}, err
	}
	if tok.Type == lexer.TOKEN_EOL {
		return Statement{Blank: true}, nil
	}
	if tok.Type != lexer.TOKEN_IDENT {
		return Statement{}, newError("parser", ErrNotStatement, tok.Column, "expected statement name, got %s", tok.Type)
	}

	stmt := Statement{Name: tok.Literal}

	tok, err = next(l)
	if err != nil {
		return Statement{}, err
	}
	if tok.Type == lexer.TOKEN_EOL {
		return stmt, nil
	}

	for {
		value, err := parseArgument(l, tok)
		if err != nil {
			return Statement{}, err
		}
		stmt.Args = append(stmt.Args, value)

		tok, err = next(l)
		if err != nil {
			return Statement{}, err
		}
		switch tok.Type {
		case lexer.TOKEN_EOL:
			return stmt, nil
		case lexer.TOKEN_COMMA:
			tok, err = next(l)
			if err != nil {
				return Statement{}, err
			}
		default:
			return Statement{}, newError("parser", ErrBadArgument, tok.Column, "expected ',' or end of line, got %s", tok.Type)
		}
	}
}

// parseArgument decodes one literal argument starting at tok.
func parseArgument(l *lexer.Lexer, tok lexer.Token) (any, error) {
	switch tok.Type {
	case lexer.TOKEN_STRING:
		return tok.String, nil
	case lexer.TOKEN_BOOLEAN:
		return tok.Bool(), nil
	}

	negative := false
	if tok.Type == lexer.TOKEN_PLUS || tok.Type == lexer.TOKEN_MINUS {
		negative = tok.Type == lexer.TOKEN_MINUS
		var err error
		if tok, err = next(l); err != nil {
			return nil, err
		}
	}

	switch tok.Type {
	case lexer.TOKEN_INT:
		if negative {
			return -tok.Int, nil
		}
		return tok.Int, nil
	case lexer.TOKEN_FLOAT:
		if negative {
			return -tok.Float, nil
		}
		return tok.Float, nil
	}
	return nil, newError("parser", ErrBadArgument, tok.Column, "expected literal argument, got %s", tok.Type)
}

// next reads a token and converts lexer failures to CompileError.
func next(l *lexer.Lexer) (lexer.Token, error) {
	tok, err := l.NextToken()
	if err != nil {
		message, column := err.Error(), 0
		var lexErr *lexer.Error
		if errors.As(err, &lexErr) {
			message, column = lexErr.Message, lexErr.Column
		}
		return tok, &CompileError{Phase: "lexer", Message: message, Column: column, Err: err}
	}
	return tok, nil
}
