package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const insertEntrySQL = `
INSERT INTO audit_logs (
	id, tenant_id, actor, role, action, resource_type, resource_id, client_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`

// Repository persists entries to the audit_logs table.
type Repository struct {
	db *sql.DB
}

// NewRepository returns nil for a nil db so callers can fall back to no auditing.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log inserts one entry, filling its id, timestamp and digest first.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	fill(&entry)

	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = string(entry.Metadata)
	}
	if _, err := r.db.ExecContext(ctx, insertEntrySQL,
		entry.ID, entry.TenantID, entry.Actor, entry.Role, entry.Action,
		entry.ResourceType, entry.ResourceID, entry.ClientID,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit repo: insert %s: %w", entry.Action, err)
	}
	return nil
}
