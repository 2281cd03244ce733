// errors.go - Typed errors with user-facing messages
package client

// Kind classifies a failed request into one of the categories the UI
// layer knows how to present.
type Kind string

const (
	KindTooLarge   Kind = "too_large"
	KindBadRequest Kind = "bad_request"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindServer     Kind = "server"
	KindNetwork    Kind = "network"
)

// User-facing messages. MsgFileTooLarge is a fixed string shown for any
// 413 response, independent of what the server put in the body.
const (
	MsgFileTooLarge  = "file too large, maximum 500MB"
	MsgInvalidFormat = "invalid file format"
	MsgServerError   = "server error, please try again"
	MsgNetworkError  = "upload failed, check your connection and try again"
)

// Error is the only error type returned by Client methods. Message is
// safe to show to an end user; Status is the HTTP status that produced
// it (0 for transport failures).
type Error struct {
	Kind    Kind
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func networkError(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: MsgNetworkError, cause: cause}
}
