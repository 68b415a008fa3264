package notify

import (
	"context"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/obs"
)

// Log writes deliveries to the structured log. It backs local runs without a
// broker; the verification token is logged so the link can be followed by hand.
type Log struct{}

var (
	_ auth.VerificationDispatcher = Log{}
	_ auth.ApprovalNotifier       = Log{}
	_ auth.Notifier               = Log{}
)

func (Log) SendVerification(ctx context.Context, c auth.Challenge) error {
	obs.Info("verification challenge", map[string]any{
		"account_id": c.AccountID,
		"email":      c.Email,
		"role":       string(c.Role),
		"token":      c.Token,
		"request_id": audit.RequestIDFromContext(ctx),
	})
	return nil
}

func (Log) NotifyApproval(ctx context.Context, r auth.ApprovalRequest) error {
	obs.Info("admin approval requested", map[string]any{
		"to":             r.To,
		"account_id":     r.AccountID,
		"email":          r.Email,
		"requested_role": string(r.RequestedRole),
		"request_id":     audit.RequestIDFromContext(ctx),
	})
	return nil
}

func (Log) Notify(ctx context.Context, n auth.Notice) {
	obs.Info("notice", map[string]any{
		"title":       n.Title,
		"description": n.Description,
		"variant":     string(n.Variant),
		"request_id":  audit.RequestIDFromContext(ctx),
	})
}
