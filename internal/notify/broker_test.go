package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
)

type published struct {
	key string
	msg amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestBrokerSendVerification(t *testing.T) {
	ch := &fakeChannel{}
	b := NewBroker(ch)
	b.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	ctx := audit.WithRequestID(context.Background(), "req-1")
	c := auth.Challenge{AccountID: "acc-1", Email: "jane@firm.test", Role: auth.RoleStaff, Token: "tok"}
	if err := b.SendVerification(ctx, c); err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	if err := b.SendVerification(ctx, c); err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != QueueVerification {
		t.Fatalf("expected one declare of %s, got %v", QueueVerification, ch.declared)
	}
	if len(ch.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(ch.published))
	}
	p := ch.published[0]
	if p.key != QueueVerification || p.msg.DeliveryMode != amqp.Persistent || p.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing: %+v", p)
	}
	if p.msg.CorrelationId != "req-1" {
		t.Fatalf("expected correlation id req-1, got %q", p.msg.CorrelationId)
	}
	var got auth.Challenge
	if err := json.Unmarshal(p.msg.Body, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != c {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestBrokerNotifyApprovalError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	b := NewBroker(ch)
	err := b.NotifyApproval(context.Background(), auth.ApprovalRequest{To: "admin@firm.test", AccountID: "acc-1"})
	if err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestBrokerNotifySwallowsErrors(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	b := NewBroker(ch)
	b.Notify(context.Background(), auth.AccessDeniedNotice())

	ch.publishErr = nil
	b.Notify(context.Background(), auth.SessionRequiredNotice())
	if len(ch.published) != 1 || ch.published[0].key != QueueNotices {
		t.Fatalf("expected one notice publish, got %+v", ch.published)
	}
	var body map[string]any
	if err := json.Unmarshal(ch.published[0].msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["title"] != "Authentication required" {
		t.Fatalf("unexpected notice body: %v", body)
	}
	if err := b.Close(); err != nil || !ch.closed {
		t.Fatalf("Close: %v closed=%v", err, ch.closed)
	}
}

func TestLogImplementsDeliveries(t *testing.T) {
	var l Log
	if err := l.SendVerification(context.Background(), auth.Challenge{AccountID: "a"}); err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	if err := l.NotifyApproval(context.Background(), auth.ApprovalRequest{AccountID: "a"}); err != nil {
		t.Fatalf("NotifyApproval: %v", err)
	}
	l.Notify(context.Background(), auth.NoticeFor(nil))
}
