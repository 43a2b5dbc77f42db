package chat

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPermission: the bot lacks access or permission for the target.
	ErrPermission = errors.New("chat: permission denied")
	// ErrNotFound: the message, channel, thread or member is gone.
	ErrNotFound = errors.New("chat: not found")
	// ErrArchived: the target is archived or otherwise immutable.
	ErrArchived = errors.New("chat: archived")
	// ErrUnsupported: the operation is not valid for this channel type.
	ErrUnsupported = errors.New("chat: unsupported operation")
	// ErrInvalid: the platform rejected the request body (bad name, too long, ...).
	ErrInvalid = errors.New("chat: invalid request")
	// ErrThreadExists: a thread is already anchored to the message.
	ErrThreadExists = errors.New("chat: thread already exists")
	// ErrTransient: rate limited, timed out, or a platform-side 5xx.
	ErrTransient = errors.New("chat: transient failure")
)

// Error carries the platform code behind a classified failure.
type Error struct {
	Kind    error
	Code    int
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (status %d, code %d): %s", e.Kind, e.Status, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// IsGone reports whether err means the target no longer exists.
func IsGone(err error) bool { return errors.Is(err, ErrNotFound) }

// IgnoreGone maps already-gone errors to nil.
func IgnoreGone(err error) error {
	if IsGone(err) {
		return nil
	}
	return err
}

// IsTransient reports whether the next tick may succeed where this call failed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// IsPermanent reports whether retrying can never help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermission) ||
		errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrArchived)
}
