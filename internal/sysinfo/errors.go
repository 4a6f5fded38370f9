package sysinfo

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means a pseudo-file could not be opened: the process
	// exited, access was denied, or the platform has no such file.
	ErrUnavailable = errors.New("unavailable")
	// ErrMalformed means a file was read but an expected key, field or token
	// was missing or unparsable.
	ErrMalformed = errors.New("malformed data")
	// ErrDivisionUndefined means a derived ratio had a zero denominator.
	ErrDivisionUndefined = errors.New("division undefined")
)

func unavailable(name string, err error) error {
	return fmt.Errorf("read %s: %w: %w", name, ErrUnavailable, err)
}

func malformed(name, format string, args ...any) error {
	return fmt.Errorf("parse %s: %w: %s", name, ErrMalformed, fmt.Sprintf(format, args...))
}
