package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lawdesk.org/internal/obs"
)

// ApprovalWorkflow handles registrations that asked for the admin role. The
// requester stays pending_admin until an administrator approves; there is no
// timeout.
type ApprovalWorkflow struct {
	notifier ApprovalNotifier
	contact  string
	accounts *AccountService
	settings
}

func NewApprovalWorkflow(notifier ApprovalNotifier, contact string, accounts *AccountService, opts ...Option) (*ApprovalWorkflow, error) {
	if notifier == nil {
		return nil, errors.New("approval notifier is required")
	}
	if accounts == nil {
		return nil, errors.New("account service is required")
	}
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, errors.New("administrator contact is required")
	}
	return &ApprovalWorkflow{notifier: notifier, contact: contact, accounts: accounts, settings: newSettings(opts)}, nil
}

// Request notifies the administrator contact. Delivery failures are logged
// and do not affect the registration.
func (w *ApprovalWorkflow) Request(ctx context.Context, account Account, requested RoleTag) {
	req := ApprovalRequest{
		To:            w.contact,
		AccountID:     account.ID,
		Email:         account.Email,
		RequestedRole: requested,
		RequestedAt:   w.now().UTC(),
	}
	if err := w.notifier.NotifyApproval(ctx, req); err != nil {
		obs.Warn("admin approval notification failed", map[string]any{
			"account_id": account.ID,
			"error":      err,
		})
		return
	}
	w.record(ctx, "account.approval_requested", fmt.Sprintf("%s requested %s", account.Email, requested))
}

// Approve promotes a pending_admin account to admin.
func (w *ApprovalWorkflow) Approve(ctx context.Context, id string) (Account, error) {
	account, err := w.accounts.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.Role != RolePendingAdmin {
		return Account{}, fmt.Errorf("%w: account is not awaiting approval", ErrValidation)
	}
	admin := RoleAdmin
	return w.accounts.Update(ctx, id, AccountPatch{Role: &admin})
}

// Pending lists accounts awaiting approval.
func (w *ApprovalWorkflow) Pending(ctx context.Context) ([]Account, error) {
	all, err := w.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Account
	for _, a := range all {
		if a.Role == RolePendingAdmin {
			out = append(out, a)
		}
	}
	return out, nil
}
