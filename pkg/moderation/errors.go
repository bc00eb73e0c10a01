package moderation

import (
	"errors"
	"fmt"
)

// Error kinds. Typed errors below wrap these so callers can use errors.Is.
var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrTargetNotFound       = errors.New("target not found")
	ErrReasonTooLong        = errors.New("reason too long")
	ErrInvalidCount         = errors.New("invalid message count")
	ErrPlatformActionFailed = errors.New("platform action failed")
)

// DenyReason explains a PermissionDeniedError.
type DenyReason int

const (
	DenyMissingPermission DenyReason = iota + 1
	DenySelf
	DenyOwner
	DenyHierarchy
)

func (r DenyReason) String() string {
	switch r {
	case DenyMissingPermission:
		return "missing_permission"
	case DenySelf:
		return "self"
	case DenyOwner:
		return "owner"
	case DenyHierarchy:
		return "hierarchy"
	default:
		return "unknown"
	}
}

type PermissionDeniedError struct {
	Kind   Kind
	Reason DenyReason
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Kind, e.Reason)
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

type TargetNotFoundError struct {
	Token string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("member %q does not exist", e.Token)
}

func (e *TargetNotFoundError) Is(target error) bool { return target == ErrTargetNotFound }

type ReasonTooLongError struct {
	Length int
	Max    int
}

func (e *ReasonTooLongError) Error() string {
	return fmt.Sprintf("reason is too long (%d/%d)", e.Length, e.Max)
}

func (e *ReasonTooLongError) Is(target error) bool { return target == ErrReasonTooLong }

type InvalidCountError struct {
	Count int
	Max   int
}

func (e *InvalidCountError) Error() string {
	return fmt.Sprintf("message count %d outside 1..%d", e.Count, e.Max)
}

func (e *InvalidCountError) Is(target error) bool { return target == ErrInvalidCount }

// PlatformActionFailedError wraps any failure reported by the chat platform,
// timeouts included.
type PlatformActionFailedError struct {
	Op    string
	Cause error
}

func (e *PlatformActionFailedError) Error() string {
	return fmt.Sprintf("platform %s failed: %v", e.Op, e.Cause)
}

func (e *PlatformActionFailedError) Unwrap() error { return e.Cause }

func (e *PlatformActionFailedError) Is(target error) bool { return target == ErrPlatformActionFailed }

// IsValidation reports whether err was raised before any platform mutation
// because the request itself was rejected.
func IsValidation(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrReasonTooLong) ||
		errors.Is(err, ErrInvalidCount)
}

// UserMessage maps an executor error to a fixed sentence for the invoker.
// Platform error text is never included.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var denied *PermissionDeniedError
	if errors.As(err, &denied) {
		switch denied.Reason {
		case DenySelf:
			return fmt.Sprintf("You can't %s yourself.", denied.Kind.Verb())
		case DenyOwner:
			return fmt.Sprintf("You can't %s the server owner.", denied.Kind.Verb())
		case DenyHierarchy:
			return fmt.Sprintf("You can't %s someone with an equal or higher role.", denied.Kind.Verb())
		default:
			return fmt.Sprintf("You don't have permission to %s.", denied.Kind.Verb())
		}
	}

	var tooLong *ReasonTooLongError
	if errors.As(err, &tooLong) {
		return fmt.Sprintf("The reason is too long (%d/%d characters).", tooLong.Length, tooLong.Max)
	}

	var badCount *InvalidCountError
	if errors.As(err, &badCount) {
		return fmt.Sprintf("The amount must be between 1 and %d.", badCount.Max)
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "You don't have permission to do that."
	case errors.Is(err, ErrTargetNotFound):
		return "That member could not be found."
	case errors.Is(err, ErrPlatformActionFailed):
		return "Discord rejected the action. Check the bot's role and permissions."
	default:
		return "An error occurred while executing the command."
	}
}
