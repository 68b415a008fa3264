package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit line enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		"type":     "audit",
		"event":    event,
		"actor_id": auth.ActorFromContext(ctx),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// LogSink writes audit entries as JSON lines through the shared logger.
type LogSink struct{}

var _ auth.AuditSink = LogSink{}

func (LogSink) Record(ctx context.Context, e auth.AuditEntry) error {
	if e.ActorID != "" {
		ctx = auth.ContextWithActor(ctx, e.ActorID)
	}
	return LogEvent(ctx, e.Action, map[string]any{
		"details":     e.Details,
		"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
}

// Multi fans an entry out to every sink and joins their errors.
type Multi []auth.AuditSink

var _ auth.AuditSink = Multi(nil)

func (m Multi) Record(ctx context.Context, e auth.AuditEntry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
