package share

import "errors"

// Errors returned by Decode and ParseLink.
var (
	// ErrNoFragment indicates there was nothing to decode: the fragment was
	// empty or the link carried no fragment at all.
	ErrNoFragment = errors.New("share: no fragment")

	// ErrCorruptFragment matches every failure to decode a non-empty fragment.
	ErrCorruptFragment = errors.New("share: corrupt fragment")

	// ErrTooLarge indicates the fragment or its decompressed payload exceeded
	// the codec limits.
	ErrTooLarge = errors.New("share: fragment too large")
)

// DecodeError describes why a fragment could not be decoded.
// errors.Is(err, ErrCorruptFragment) is true for every DecodeError.
type DecodeError struct {
	// Reason is a short human-readable description of the failure.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "share: corrupt fragment: " + e.Reason + ": " + e.Err.Error()
	}
	return "share: corrupt fragment: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCorruptFragment.
func (e *DecodeError) Is(target error) bool {
	return target == ErrCorruptFragment
}
