package anesthesia

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Update(ctx context.Context, rec *Record) error
}

type EventRepository interface {
	Create(ctx context.Context, ev *MedicationEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicationEvent, error)
	// ListByRecord returns events ordered by timestamp, ties broken by
	// insertion order.
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*MedicationEvent, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type UsageRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*UsageRecord, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*UsageRecord, error)
	// ListByRecordForUpdate locks the record's usage rows for the duration
	// of the surrounding transaction, serializing concurrent commits
	// against the same record.
	ListByRecordForUpdate(ctx context.Context, recordID uuid.UUID) ([]*UsageRecord, error)
	// Upsert inserts or refreshes the calculated quantity for a
	// (record, item) pair without touching an existing override.
	Upsert(ctx context.Context, u *UsageRecord) error
	Update(ctx context.Context, u *UsageRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByRecordItem(ctx context.Context, recordID, itemID uuid.UUID) error
}

type CommitRepository interface {
	Create(ctx context.Context, c *InventoryCommit) error
	GetByID(ctx context.Context, id uuid.UUID) (*InventoryCommit, error)
	// ListByRecord returns commits newest-first. A non-nil unit filter also
	// includes legacy commits recorded before unit scoping (NULL unit).
	ListByRecord(ctx context.Context, recordID uuid.UUID, unitID *uuid.UUID) ([]*InventoryCommit, error)
	// MarkRolledBack stamps the rollback fields if and only if the commit
	// has not been rolled back yet. Returns false when another rollback
	// won the race.
	MarkRolledBack(ctx context.Context, id uuid.UUID, by, reason string, at time.Time) (bool, error)
	// LastCommitTimes returns, per item, the commit timestamp of the most
	// recent non-rolled-back commit that included that item.
	LastCommitTimes(ctx context.Context, recordID uuid.UUID) (map[uuid.UUID]time.Time, error)
}
