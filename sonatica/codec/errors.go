package codec

import "errors"

var (
	// ErrDecode matches every DecodeError.
	ErrDecode = errors.New("codec: decode failed")

	ErrEmptyMessage       = errors.New("message size 0")
	ErrBufferOverflow     = errors.New("buffer overflow")
	ErrInvalidBase64      = errors.New("invalid base64")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrStringTooLong      = errors.New("codec: string exceeds 65535 bytes")
	ErrMessageTooLarge    = errors.New("codec: message exceeds header size limit")
)

// DecodeError reports a malformed track blob. Reason is one of the
// sentinel errors above; Cause carries the underlying error when there is one.
type DecodeError struct {
	Reason error
	Cause  error
}

func (e *DecodeError) Error() string {
	msg := "codec: " + e.Reason.Error()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}
