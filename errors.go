package tabcsv

import (
	"errors"
	"fmt"
)

var (
	// ErrUnacceptableType is returned by Output.Write when the argument is not a Record.
	ErrUnacceptableType = errors.New("tabcsv: unacceptable type")
	// ErrSeekUnsupported is returned when fixed-header-length mode is requested on a stream that cannot seek.
	ErrSeekUnsupported = errors.New("tabcsv: fixed-header-length mode requires a seekable stream")
	// ErrRewriteUnsupported is returned when copy-on-close mode is requested on a stream that cannot be read back and truncated.
	ErrRewriteUnsupported = errors.New("tabcsv: copy-on-close mode requires a file or a readable, truncatable stream")
	// ErrClosed is returned when an Output is used after Close.
	ErrClosed = errors.New("tabcsv: output already closed")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("tabcsv: invalid config")

	// ErrBareQuote is returned when an unexpected quote is found in an unquoted field.
	ErrBareQuote = errors.New("tabcsv: bare quote in non-quoted field")
	// ErrUnterminatedQuote is returned when a quoted field is not closed before EOF.
	ErrUnterminatedQuote = errors.New("tabcsv: unterminated quoted field")
	// ErrFieldCount is returned when a row does not have RowReader.FieldsPerRecord fields.
	ErrFieldCount = errors.New("tabcsv: wrong number of fields")

	errNilWriter      = errors.New("tabcsv: writer is nil")
	errWriterNoTarget = errors.New("tabcsv: writer destination cannot be nil")
)

// ParseError contains location information for CSV parsing errors.
type ParseError struct {
	Line   int
	Column int
	Err    error
}

// Error formats the parse error message with the stored line, column, and Err values.
func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("tabcsv: parse error on line %d, column %d: %v", e.Line, e.Column, e.Err)
}

// Unwrap returns the underlying Err so ParseError participates in errors.Is.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
