package auth

import (
	"context"
	"time"

	"lawdesk.org/internal/ids"
	"lawdesk.org/internal/obs"
)

// Option configures the services in this package. Options that do not apply
// to a given service are ignored by it.
type Option func(*settings)

type settings struct {
	audit      AuditSink
	now        func() time.Time
	revalidate bool
	verifier   *Verifier
	dispatcher VerificationDispatcher
	approvals  *ApprovalWorkflow
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithAuditSink sets where mutations are recorded.
func WithAuditSink(sink AuditSink) Option {
	return func(s *settings) { s.audit = sink }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRestoreRevalidation makes session restore re-read the account and drop
// sessions whose account vanished, was deactivated or lost verification.
func WithRestoreRevalidation() Option {
	return func(s *settings) { s.revalidate = true }
}

// WithVerification wires challenge issuing and delivery into registration.
func WithVerification(v *Verifier, d VerificationDispatcher) Option {
	return func(s *settings) {
		s.verifier = v
		s.dispatcher = d
	}
}

// WithApprovalWorkflow routes admin registrations to the approval workflow.
func WithApprovalWorkflow(w *ApprovalWorkflow) Option {
	return func(s *settings) { s.approvals = w }
}

func (s settings) record(ctx context.Context, action, details string) {
	if s.audit == nil {
		return
	}
	entry := AuditEntry{
		ActorID:    ActorFromContext(ctx),
		Action:     action,
		Details:    details,
		OccurredAt: s.now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		obs.ObserveAuditFailure()
		obs.Warn("audit record failed", map[string]any{
			"action": action,
			"actor":  entry.ActorID,
			"error":  err,
		})
	}
}

func (s settings) newID() string { return ids.NewAt(s.now()) }
