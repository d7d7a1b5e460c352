package ber

import (
	"errors"
	"fmt"
)

// Sentinel decode errors. Errors returned by Decode wrap one of these and
// carry the stream offset at which the problem was detected; match with
// errors.Is.
var (
	// ErrTruncatedInput indicates the source ended before a required
	// identifier, length, or payload byte could be read.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrInvalidIdentifier indicates a malformed multi-byte tag number
	// (the accumulated value was zero).
	ErrInvalidIdentifier = errors.New("invalid identifier encoding")

	// ErrUnsupportedLength indicates a long-form length field declaring
	// more encoding bytes than the decoder's integer width can hold.
	ErrUnsupportedLength = errors.New("unsupported length encoding")

	// ErrPayloadTooLarge indicates a declared payload length above the
	// decoder's configured allocation limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidEncoding indicates a structurally invalid combination,
	// such as a primitive tag with indefinite length or a child element
	// overrunning its parent's declared extent.
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrDepthExceeded indicates nesting deeper than the configured limit.
	ErrDepthExceeded = errors.New("nesting depth exceeded")
)

// decodeError wraps a sentinel error with the offset at which it occurred.
func decodeError(sentinel error, offset int64, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("ber: %s at offset %d: %w", msg, offset, sentinel)
}
