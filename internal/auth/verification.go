package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lawdesk.org/internal/ids"
)

const defaultChallengeIssuer = "lawdesk-auth"

// Verifier signs and checks verification challenge tokens. Challenges carry
// no expiry.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// ChallengeClaims are the claims of a verification token.
type ChallengeClaims struct {
	Email string  `json:"email"`
	Role  RoleTag `json:"role"`
	jwt.RegisteredClaims
}

func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("verification secret is required")
	}
	if issuer = strings.TrimSpace(issuer); issuer == "" {
		issuer = defaultChallengeIssuer
	}
	return &Verifier{secret: append([]byte(nil), secret...), issuer: issuer, now: time.Now}, nil
}

// Issue signs a challenge for account and the role it asked for.
func (v *Verifier) Issue(account Account, requested RoleTag) (string, error) {
	claims := ChallengeClaims{
		Email: account.Email,
		Role:  requested,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  account.ID,
			Issuer:   v.issuer,
			IssuedAt: jwt.NewNumericDate(v.now().UTC()),
			ID:       ids.Opaque(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Parse validates signature and issuer.
func (v *Verifier) Parse(token string) (ChallengeClaims, error) {
	var claims ChallengeClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer))
	if err != nil || !parsed.Valid {
		return ChallengeClaims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Email == "" {
		return ChallengeClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// VerificationService completes challenges against the self-registration
// store.
type VerificationService struct {
	verifier   *Verifier
	registered AccountRepository
	settings
}

func NewVerificationService(v *Verifier, registered AccountRepository, opts ...Option) (*VerificationService, error) {
	if v == nil {
		return nil, errors.New("verifier is required")
	}
	if registered == nil {
		return nil, errors.New("registration store is required")
	}
	return &VerificationService{verifier: v, registered: registered, settings: newSettings(opts)}, nil
}

// Confirm marks the account named by token as verified. Confirming twice is
// harmless.
func (s *VerificationService) Confirm(ctx context.Context, token string) (Account, error) {
	claims, err := s.verifier.Parse(strings.TrimSpace(token))
	if err != nil {
		return Account{}, err
	}
	account, err := s.registered.GetAccount(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return Account{}, fmt.Errorf("%w: account no longer exists", ErrInvalidToken)
	}
	if err != nil {
		return Account{}, err
	}
	if !strings.EqualFold(account.Email, claims.Email) {
		return Account{}, ErrInvalidToken
	}
	if account.Verified {
		return account, nil
	}
	account.Verified = true
	updated, err := s.registered.UpdateAccount(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.verify", fmt.Sprintf("verified %s", updated.Email))
	return updated, nil
}
