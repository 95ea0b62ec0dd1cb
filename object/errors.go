package object

import (
	"errors"
	"fmt"
)

// MalformedError reports a structural violation in the source bytes: a
// grammar error, a bad cross-reference header, a broken stream delimiter.
// It carries the byte offset the problem was detected at.
type MalformedError struct {
	Offset int64
	Msg    string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed pdf at byte %d: %s", e.Offset, e.Msg)
}

// Malformedf builds a MalformedError with a formatted message.
func Malformedf(offset int64, format string, args ...interface{}) error {
	return &MalformedError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// IsMalformed reports whether err has a MalformedError anywhere in its chain.
func IsMalformed(err error) bool {
	var m *MalformedError
	return errors.As(err, &m)
}
