package pixels

import "errors"

var (
	ErrInvalidInputKind        = errors.New("invalid pixel source")
	ErrSourceNotReady          = errors.New("pixel source not ready")
	ErrInvalidRank             = errors.New("invalid rank")
	ErrUnsupportedChannelDepth = errors.New("unsupported channel depth")
	ErrUnsupportedDtype        = errors.New("unsupported dtype")
	ErrValueOutOfRange         = errors.New("value out of range")
)

// Kind names the error kind of err for metrics and transport, or "" if err
// is not a codec error.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInputKind):
		return "InvalidInputKind"
	case errors.Is(err, ErrSourceNotReady):
		return "SourceNotReady"
	case errors.Is(err, ErrInvalidRank):
		return "InvalidRank"
	case errors.Is(err, ErrUnsupportedChannelDepth):
		return "UnsupportedChannelDepth"
	case errors.Is(err, ErrUnsupportedDtype):
		return "UnsupportedDtype"
	case errors.Is(err, ErrValueOutOfRange):
		return "ValueOutOfRange"
	}
	return ""
}
