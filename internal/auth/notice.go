package auth

import (
	"context"
	"errors"
)

// NoticeVariant selects how a notice is rendered.
type NoticeVariant string

const (
	NoticeDefault     NoticeVariant = "default"
	NoticeSuccess     NoticeVariant = "success"
	NoticeDestructive NoticeVariant = "destructive"
)

// Notice is a user-facing message.
type Notice struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Variant     NoticeVariant `json:"variant"`
}

// NoticeFor converts an error into a message that is safe to show: it never
// reveals whether an email is known.
func NoticeFor(err error) Notice {
	n := Notice{Variant: NoticeDestructive}
	switch {
	case err == nil:
		return Notice{Title: "Done", Variant: NoticeSuccess}
	case errors.Is(err, ErrDuplicateAccount):
		n.Title, n.Description = "Registration failed", "An account with this email already exists."
	case errors.Is(err, ErrUnauthorizedRole):
		n.Title, n.Description = "Registration failed", "This role must be set up by an administrator before you can register."
	case errors.Is(err, ErrInvalidCredentials):
		n.Title, n.Description = "Login failed", "Invalid email or password."
	case errors.Is(err, ErrUnverifiedAccount):
		n.Title, n.Description = "Verification required", "Please verify your account using the link we sent before logging in."
	case errors.Is(err, ErrNotFound):
		n.Title, n.Description = "Not found", "The requested item does not exist."
	case errors.Is(err, ErrValidation):
		n.Title, n.Description = "Invalid input", "Please check the submitted values and try again."
	case errors.Is(err, ErrOperationPending):
		n.Title, n.Description = "Please wait", "A previous request is still being processed."
		n.Variant = NoticeDefault
	case errors.Is(err, ErrInvalidToken):
		n.Title, n.Description = "Verification failed", "The verification link is invalid."
	default:
		n.Title, n.Description = "Something went wrong", "Please try again."
	}
	return n
}

var (
	noticeSessionRequired = Notice{Title: "Authentication required", Description: "Please log in to continue.", Variant: NoticeDestructive}
	noticeAccessDenied    = Notice{Title: "Access denied", Description: "You do not have permission to view this page.", Variant: NoticeDestructive}
)

// SessionRequiredNotice is shown when a guard sends the user to login.
func SessionRequiredNotice() Notice { return noticeSessionRequired }

// AccessDeniedNotice is shown when a role guard rejects a valid session.
func AccessDeniedNotice() Notice { return noticeAccessDenied }

// DiscardNotifier drops every notice.
type DiscardNotifier struct{}

func (DiscardNotifier) Notify(context.Context, Notice) {}
