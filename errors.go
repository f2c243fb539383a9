package fdp2bin

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// FormatError is the error type returned for all fatal problems found while
// converting a record stream. Use [errors.Is] with one of the Err* sentinels
// below to find out what went wrong.
type FormatError interface {
	error
	WithMessage(message string) FormatError
	Wrap(err error) FormatError
}

type baseFormatError string

const rootError = baseFormatError("")

var ErrUnsupportedGranularity = rootError.WithMessage("Unsupported granularity")
var ErrUnsupportedHeader = rootError.WithMessage("Unsupported segment header")
var ErrZeroLength = rootError.WithMessage("Zero length segment")
var ErrNegativeStart = rootError.WithMessage("Negative start address")
var ErrSecondCompressedSegment = rootError.WithMessage("Compressed code must all be in one segment")
var ErrCompressedDoesNotFit = rootError.WithMessage("Compressed sound driver might not fit")
var ErrTruncatedRecord = rootError.WithMessage("Truncated segment record")
var ErrIOFailed = rootError.WithMessage("Input/output error")

func (e baseFormatError) Error() string {
	return string(e)
}

func (e baseFormatError) WithMessage(message string) FormatError {
	return customFormatError{
		message:       message,
		originalError: e,
	}
}

func (e baseFormatError) Wrap(err error) FormatError {
	return customFormatError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customFormatError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customFormatError) Error() string {
	return e.message
}

func (e customFormatError) WithMessage(message string) FormatError {
	return customFormatError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customFormatError) Wrap(err error) FormatError {
	return customFormatError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customFormatError) Unwrap() error {
	return e.originalError
}
