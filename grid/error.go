package grid

import (
	"errors"
	"fmt"
)

// Error is the typed error returned by pool and command operations.
// The dispatcher flattens it into an error envelope; nothing else needs to know
// about the HTTP-shaped error convention.
type Error struct {
	Code string
	Msg  string
}

const (
	Unknown            = "Unknown"
	NoSuchCapability   = "NoSuchCapability"
	NoSuchSession      = "NoSuchSession"
	DuplicateSession   = "DuplicateSession"
	InvariantViolation = "InvariantViolation"
	CommandParsing     = "CommandParsing"
	Transport          = "Transport"
)

func (e Error) Error() string {
	return e.Msg
}

// Errorf builds an Error with the given code and a formatted message.
func Errorf(code string, format string, args ...interface{}) error {
	return Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CanonicalCode returns the code of the first Error in err's chain.
func CanonicalCode(err error) string {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CanonicalCode(err) == code
}
