package domain

import "errors"

var (
	// ErrTransient marks network/timeout failures; retried with backoff
	ErrTransient = errors.New("transient source failure")
	// ErrAuthRequired marks invalid or expired credentials; the adapter pauses until refreshed
	ErrAuthRequired = errors.New("authentication required")
	// ErrDecode marks artwork that could not be decoded or processed
	ErrDecode = errors.New("artwork decode failure")
	// ErrNoUpdate means the collaborator has nothing new; it is not a failure
	ErrNoUpdate = errors.New("no update available")
)

// ErrorKind classifies a failure for retry policy
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransient
	KindAuthRequired
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthRequired:
		return "auth_required"
	case KindDecode:
		return "decode"
	default:
		return "transient"
	}
}

// Classify maps err onto the error taxonomy. Unclassified errors are transient.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.Is(err, ErrDecode):
		return KindDecode
	default:
		return KindTransient
	}
}
