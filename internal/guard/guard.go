// Package guard gates navigation to protected views. A plain guard requires
// an authenticated session; a role guard additionally requires one of a set
// of roles. The two failures lead to different destinations.
package guard

import (
	"context"
	"net/url"
	"strings"

	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/obs"
)

// LandingPath is where an authenticated user is sent when a role guard
// rejects them.
const LandingPath = "/dashboard"

type Outcome int

const (
	Allow Outcome = iota
	RedirectLogin
	RedirectLanding
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectLanding:
		return "redirect_landing"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating a guard.
type Decision struct {
	Outcome  Outcome
	Location string
	ReturnTo string
	Notice   *auth.Notice
	Session  *auth.Session
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

// Source exposes the session state of one client context.
// *auth.SessionManager satisfies it.
type Source interface {
	State() auth.State
	Session() (auth.Session, bool)
}

var _ Source = (*auth.SessionManager)(nil)

type Guard struct {
	notifier    auth.Notifier
	loginPath   string
	landingPath string
}

type Option func(*Guard)

// WithNotifier routes denial notices to n in addition to the decision.
func WithNotifier(n auth.Notifier) Option {
	return func(g *Guard) {
		if n != nil {
			g.notifier = n
		}
	}
}

func WithLoginPath(p string) Option {
	return func(g *Guard) {
		if p != "" {
			g.loginPath = p
		}
	}
}

func WithLandingPath(p string) Option {
	return func(g *Guard) {
		if p != "" {
			g.landingPath = p
		}
	}
}

func New(opts ...Option) *Guard {
	g := &Guard{
		notifier:    auth.DiscardNotifier{},
		loginPath:   auth.LoginPath,
		landingPath: LandingPath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Plain admits any authenticated session. Otherwise it redirects to login and
// keeps requested as the post-login destination.
func (g *Guard) Plain(ctx context.Context, src Source, requested string) Decision {
	d := g.session(ctx, src, requested)
	obs.ObserveGuard("plain", d.Outcome.String())
	return d
}

// Role admits an authenticated session whose account passes CanAccess for
// roles. A valid session with the wrong role goes to the landing page.
func (g *Guard) Role(ctx context.Context, src Source, requested string, roles ...auth.RoleTag) Decision {
	d := g.session(ctx, src, requested)
	if d.Allowed() && !auth.CanAccess(&d.Session.Account, roles...) {
		notice := auth.AccessDeniedNotice()
		d = Decision{
			Outcome:  RedirectLanding,
			Location: g.landingPath,
			Notice:   &notice,
			Session:  d.Session,
		}
		g.notifier.Notify(ctx, notice)
	}
	obs.ObserveGuard("role", d.Outcome.String())
	return d
}

func (g *Guard) session(ctx context.Context, src Source, requested string) Decision {
	if src != nil && src.State() == auth.StateAuthenticated {
		if s, ok := src.Session(); ok {
			return Decision{Outcome: Allow, Location: requested, Session: &s}
		}
	}
	notice := auth.SessionRequiredNotice()
	g.notifier.Notify(ctx, notice)
	returnTo := g.returnTo(requested)
	return Decision{
		Outcome:  RedirectLogin,
		Location: g.loginLocation(returnTo),
		ReturnTo: returnTo,
		Notice:   &notice,
	}
}

func (g *Guard) returnTo(requested string) string {
	requested = strings.TrimSpace(requested)
	// Only local paths survive, so the redirect cannot leave the site.
	if !strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, "//") {
		return ""
	}
	if requested == g.loginPath || strings.HasPrefix(requested, g.loginPath+"?") {
		return ""
	}
	return requested
}

func (g *Guard) loginLocation(returnTo string) string {
	if returnTo == "" {
		return g.loginPath
	}
	return g.loginPath + "?return_to=" + url.QueryEscape(returnTo)
}
