package scheduler

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow-engine/internal/models"
)

var (
	ErrNoAccountConnected  = errors.New("no account connected")
	ErrTokenExpired        = errors.New("token expired")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// publishError carries the message shown to the post owner while still
// matching one of the sentinels above.
type publishError struct {
	msg   string
	kind  error
	cause error
}

func (e *publishError) Error() string { return e.msg }

func (e *publishError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func noAccountError(p models.Platform) error {
	return &publishError{msg: fmt.Sprintf("No %s account connected", p.DisplayName()), kind: ErrNoAccountConnected}
}

func tokenExpiredError(p models.Platform, cause error) error {
	return &publishError{
		msg:   fmt.Sprintf("Token expired for %s. Please reconnect your account.", p.DisplayName()),
		kind:  ErrTokenExpired,
		cause: cause,
	}
}

// InternalError is a failure of the batch itself, such as the due-post query.
// The tick is abandoned and the next one starts over.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *InternalError) Unwrap() error { return e.Err }
