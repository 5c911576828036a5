package yoloprep

import (
	"github.com/pkg/errors"
)

// Error kinds. Functions in this package wrap one of these with context, so callers test for a kind
// with errors.Is and the batch summary buckets skips by KindOf.
var (
	// A shape with too few points, or a zero-area box.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// A label name that is not part of an explicit catalog.
	ErrUnknownLabel = errors.New("unknown label")
	// A class index outside of the catalog.
	ErrUnknownClassIndex = errors.New("unknown class index")
	// An image without its label file, or a label file without its image.
	ErrMissingPair = errors.New("missing image/label pair")
	// An annotation document that cannot be parsed.
	ErrMalformedDocument = errors.New("malformed document")
	// A normalized coordinate outside of [0, 1].
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// Invalid configuration. Always fatal.
	ErrConfig = errors.New("invalid configuration")
)

// ErrorKind buckets recoverable errors for the end-of-batch summary.
type ErrorKind int

// The known error kinds.
const (
	KindOther ErrorKind = iota
	KindInvalidGeometry
	KindUnknownLabel
	KindUnknownClassIndex
	KindMissingPair
	KindMalformedDocument
	KindOutOfBounds
)

var kindNames = map[ErrorKind]string{
	KindOther:             "Other",
	KindInvalidGeometry:   "InvalidGeometry",
	KindUnknownLabel:      "UnknownLabel",
	KindUnknownClassIndex: "UnknownClassIndex",
	KindMissingPair:       "MissingPair",
	KindMalformedDocument: "MalformedDocument",
	KindOutOfBounds:       "OutOfBounds",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Other"
}

// KindOf returns the kind of err. Errors that do not wrap one of the package's sentinel errors are
// KindOther.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidGeometry):
		return KindInvalidGeometry
	case errors.Is(err, ErrUnknownLabel):
		return KindUnknownLabel
	case errors.Is(err, ErrUnknownClassIndex):
		return KindUnknownClassIndex
	case errors.Is(err, ErrMissingPair):
		return KindMissingPair
	case errors.Is(err, ErrMalformedDocument):
		return KindMalformedDocument
	case errors.Is(err, ErrOutOfBounds):
		return KindOutOfBounds
	}
	return KindOther
}
