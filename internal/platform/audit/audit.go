package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmauij/Viali-sub010/internal/platform/db"
)

// Actions recorded in the audit trail. Destructive actions (delete, rollback)
// must carry a non-empty Reason.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionOverride = "override"
	ActionCommit   = "commit"
	ActionRollback = "rollback"
)

// Entry is a single append-only audit trail row. Entries are never updated
// or deleted once written.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	RecordType string          `json:"record_type"`
	RecordID   uuid.UUID       `json:"record_id"`
	Action     string          `json:"action"`
	UserID     string          `json:"user_id"`
	Reason     string          `json:"reason,omitempty"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Trail persists audit entries and serves the read path for a record's history.
type Trail interface {
	Append(ctx context.Context, entry *Entry) error
	ListByRecord(ctx context.Context, recordType string, recordID uuid.UUID) ([]Entry, error)
}

// PGTrail writes audit entries to the tenant's audit_trail table.
type PGTrail struct {
	pool *pgxpool.Pool
}

// NewPGTrail creates a Trail backed by the given connection pool. The
// tenant-scoped connection from context is preferred when available.
func NewPGTrail(pool *pgxpool.Pool) *PGTrail {
	return &PGTrail{pool: pool}
}

// Append writes an entry to the audit_trail table. Destructive actions
// require a reason.
func (t *PGTrail) Append(ctx context.Context, entry *Entry) error {
	if entry.Action == "" {
		return fmt.Errorf("audit: action is required")
	}
	if (entry.Action == ActionDelete || entry.Action == ActionRollback) && entry.Reason == "" {
		return fmt.Errorf("audit: reason is required for %s", entry.Action)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO audit_trail (
			record_type, record_id, action, user_id, reason, old_value, new_value, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`

	args := []any{
		entry.RecordType, entry.RecordID, entry.Action, entry.UserID,
		entry.Reason, entry.OldValue, entry.NewValue, entry.CreatedAt,
	}

	if tx := db.TxFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, query, args...).Scan(&entry.ID)
	}
	if conn := db.ConnFromContext(ctx); conn != nil {
		return conn.QueryRow(ctx, query, args...).Scan(&entry.ID)
	}

	poolConn, err := t.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("audit: acquire connection: %w", err)
	}
	defer poolConn.Release()

	return poolConn.QueryRow(ctx, query, args...).Scan(&entry.ID)
}

// ListByRecord returns all entries for a record in insertion order.
func (t *PGTrail) ListByRecord(ctx context.Context, recordType string, recordID uuid.UUID) ([]Entry, error) {
	const query = `
		SELECT id, record_type, record_id, action, user_id, reason, old_value, new_value, created_at
		FROM audit_trail
		WHERE record_type = $1 AND record_id = $2
		ORDER BY created_at, id`

	conn := db.ConnFromContext(ctx)
	if conn == nil {
		poolConn, err := t.pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("audit: acquire connection: %w", err)
		}
		defer poolConn.Release()
		conn = poolConn
	}

	rows, err := conn.Query(ctx, query, recordType, recordID)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.RecordType, &e.RecordID, &e.Action, &e.UserID,
			&e.Reason, &e.OldValue, &e.NewValue, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// NewChangeEntry builds an entry capturing a value transition. Values that
// fail to marshal are recorded as null rather than failing the operation.
func NewChangeEntry(recordType string, recordID uuid.UUID, action, userID string, oldValue, newValue any) *Entry {
	entry := &Entry{
		RecordType: recordType,
		RecordID:   recordID,
		Action:     action,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
	}
	if oldValue != nil {
		if b, err := json.Marshal(oldValue); err == nil {
			entry.OldValue = b
		}
	}
	if newValue != nil {
		if b, err := json.Marshal(newValue); err == nil {
			entry.NewValue = b
		}
	}
	return entry
}
