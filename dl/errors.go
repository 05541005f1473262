package dl

import "github.com/pkg/errors"

var (
	ErrDuplicate        = errors.New("duplicate in-flight: url is downloading")
	ErrUnknownLength    = errors.New("server returned no content length")
	ErrRangeUnsupported = errors.New("server ignored the range request")
	ErrClosed           = errors.New("dispatcher closed")
	ErrInvalidRequest   = errors.New("url and destination are required")
)
