package wire

import "errors"

// ErrTruncated is returned by deserialize when the byte slice ends before
// the frame it describes is fully read.
var ErrTruncated = errors.New("wire: truncated frame")

// ErrMalformed is returned when a length prefix, the version byte or the
// tag byte does not match any value this package writes.
var ErrMalformed = errors.New("wire: malformed frame")
