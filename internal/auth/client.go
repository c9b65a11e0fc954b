package auth

import (
	"context"
	"database/sql"
	"errors"
)

// ClientChecker validates that a caller may read a client's data.
type ClientChecker interface {
	EnsureClientAccess(ctx context.Context, clientID string) error
}

// MeterClientChecker enforces token client scoping and checks the client has meters.
type MeterClientChecker struct {
	db *sql.DB
}

// NewMeterClientChecker constructs a MeterClientChecker.
func NewMeterClientChecker(db *sql.DB) *MeterClientChecker {
	if db == nil {
		return nil
	}
	return &MeterClientChecker{db: db}
}

// EnsureClientAccess rejects tokens scoped to another client and unknown clients.
func (c *MeterClientChecker) EnsureClientAccess(ctx context.Context, clientID string) error {
	if err := EnsureClientScope(ctx, clientID); err != nil {
		return err
	}
	if c == nil || c.db == nil || clientID == "" {
		return nil
	}
	var found int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM meters WHERE client_id = $1 LIMIT 1`, clientID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// EnsureClientScope rejects a request for clientID when the token is scoped to another client.
func EnsureClientScope(ctx context.Context, clientID string) error {
	scoped := ClientIDFromContext(ctx)
	if scoped == "" || clientID == "" {
		return nil
	}
	if scoped != clientID {
		return ErrClientMismatch
	}
	return nil
}
