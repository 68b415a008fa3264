package auth

import "errors"

var (
	ErrDuplicateAccount   = errors.New("auth: account already exists")
	ErrUnauthorizedRole   = errors.New("auth: role requires administrator provisioning")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnverifiedAccount  = errors.New("auth: account not verified")
	ErrNotFound           = errors.New("auth: not found")
	ErrValidation         = errors.New("auth: validation failed")

	// ErrOperationPending is returned when login or register is called while
	// another one is still in flight for the same client.
	ErrOperationPending = errors.New("auth: operation already in progress")
	ErrInvalidToken     = errors.New("auth: invalid token")
)
