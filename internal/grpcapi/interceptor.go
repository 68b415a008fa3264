package grpcapi

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/guard"
	"lawdesk.org/internal/obs"
)

// ClientMetadataKey carries the client context id, the same value the HTTP
// API keeps in its client cookie.
const ClientMetadataKey = "x-client-id"

// Rule guards one method. With no roles only a session is required.
type Rule struct {
	Roles []auth.RoleTag
}

// Policy maps full method names to rules. Methods without a rule are public.
type Policy map[string]Rule

// SourceFunc finds the session source of a client id.
type SourceFunc func(ctx context.Context, clientID string) (guard.Source, error)

// GuardInterceptor applies the route guard to unary calls. A missing session
// is Unauthenticated; a session with the wrong role is PermissionDenied.
func GuardInterceptor(g *guard.Guard, policy Policy, source SourceFunc) grpc.UnaryServerInterceptor {
	if g == nil {
		g = guard.New()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		rule, guarded := policy[info.FullMethod]
		if !guarded {
			return handler(ctx, req)
		}

		var src guard.Source
		if clientID := clientIDFromMetadata(ctx); clientID != "" {
			var err error
			if src, err = source(ctx, clientID); err != nil {
				obs.Error("grpc session resolve failed", map[string]any{"error": err, "method": info.FullMethod})
				return nil, status.Error(codes.Unavailable, "session unavailable")
			}
		}

		var d guard.Decision
		if len(rule.Roles) == 0 {
			d = g.Plain(ctx, src, info.FullMethod)
		} else {
			d = g.Role(ctx, src, info.FullMethod, rule.Roles...)
		}
		switch d.Outcome {
		case guard.Allow:
			ctx = auth.ContextWithActor(ctx, d.Session.Account.ID)
			ctx = auth.ContextWithSession(ctx, *d.Session)
			return handler(ctx, req)
		case guard.RedirectLanding:
			return nil, status.Error(codes.PermissionDenied, d.Notice.Description)
		default:
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
	}
}

func clientIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(ClientMetadataKey) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
