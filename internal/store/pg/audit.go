package pg

import (
	"context"
	"database/sql"

	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/ids"
)

// AuditStore appends audit entries to audit_log.
type AuditStore struct {
	db *sql.DB
}

var _ auth.AuditSink = (*AuditStore)(nil)

func NewAuditStore(db *sql.DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) Record(ctx context.Context, e auth.AuditEntry) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, action, details, occurred_at)
		values ($1, $2, $3, $4, $5)
	`, ids.NewAt(e.OccurredAt), e.ActorID, e.Action, e.Details, e.OccurredAt)
	return err
}

// Recent returns the newest entries first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]auth.AuditEntry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select actor_id, action, details, occurred_at
		from audit_log
		order by occurred_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.AuditEntry
	for rows.Next() {
		var e auth.AuditEntry
		if err := rows.Scan(&e.ActorID, &e.Action, &e.Details, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
