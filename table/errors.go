package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDecode is the sentinel behind every *DecodeError.
var ErrDecode = errors.New("source could not be decoded")

// Attempt records one failed decode strategy.
type Attempt struct {
	Strategy string
	Err      error
}

// DecodeError is returned when no strategy could decode a source.
type DecodeError struct {
	Source   string
	Attempts []Attempt
}

func (e *DecodeError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return fmt.Sprintf("cannot decode %q (%s)", e.Source, strings.Join(parts, "; "))
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}
