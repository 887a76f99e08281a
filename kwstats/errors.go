package kwstats

import (
	"errors"
	"fmt"
)

// ErrorLogPrefix is prepended to fatal log lines.
const ErrorLogPrefix = "!! "

// ErrConfig marks configuration failures, such as a missing or unreadable report path.
var ErrConfig = errors.New("configuration error")

// ErrParse marks reports whose structure could not be interpreted.
var ErrParse = errors.New("report parse error")

// ParseError describes a failure to interpret an execution report.
type ParseError struct {
	// Path is the report file.
	Path string
	// Offset is the input byte offset the failure was detected at.
	Offset int64
	// Partial reports that the root element and some content were read before the failure, the returned
	// Report holds every node parsed up to that point.
	Partial bool
	// Err is the underlying decoder error.
	Err error
}

func (e *ParseError) Error() string {
	if e.Partial {
		return fmt.Sprintf("%s: report truncated or malformed at offset %d: %v", e.Path, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: invalid report at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
