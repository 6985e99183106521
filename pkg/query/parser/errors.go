package parser

import "fmt"

// SyntaxError reports a parse failure at a precise source location, with
// a human-readable description of what was expected instead.
type SyntaxError struct {
	Pos      Pos
	Expected string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d (offset %d): expected %s",
		e.Pos.Line, e.Pos.Column, e.Pos.Offset, e.Expected)
}
