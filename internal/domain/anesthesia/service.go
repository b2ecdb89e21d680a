package anesthesia

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/drmauij/Viali-sub010/internal/domain/inventory"
	"github.com/drmauij/Viali-sub010/internal/platform/audit"
	"github.com/drmauij/Viali-sub010/internal/platform/db"
)

// Service implements the medication usage reconciliation engine: it turns
// charted medication events into per-item consumption, maintains the usage
// ledger, and drives the commit/rollback ledger against stock.
type Service struct {
	records RecordRepository
	events  EventRepository
	usage   UsageRepository
	commits CommitRepository
	items   inventory.ItemRepository
	trail   audit.Trail
	calc    Calculator
	pool    *pgxpool.Pool
	beginTx func(ctx context.Context) (context.Context, pgx.Tx, error)
}

func NewService(
	records RecordRepository,
	events EventRepository,
	usage UsageRepository,
	commits CommitRepository,
	items inventory.ItemRepository,
	trail audit.Trail,
	pool *pgxpool.Pool,
) *Service {
	s := &Service{
		records: records,
		events:  events,
		usage:   usage,
		commits: commits,
		items:   items,
		trail:   trail,
		pool:    pool,
	}
	s.beginTx = s.begin
	return s
}

// begin opens a transaction on the tenant-scoped connection when one is in
// context, falling back to the pool.
func (s *Service) begin(ctx context.Context) (context.Context, pgx.Tx, error) {
	if db.ConnFromContext(ctx) != nil {
		return db.WithTx(ctx)
	}
	return db.WithPoolTx(ctx, s.pool)
}

// -- Records --

func (s *Service) CreateRecord(ctx context.Context, rec *Record) error {
	if rec.UnitID == uuid.Nil {
		return fmt.Errorf("unit_id is required")
	}
	if rec.PatientName == "" {
		return fmt.Errorf("patient_name is required")
	}
	return s.records.Create(ctx, rec)
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) UpdateRecord(ctx context.Context, rec *Record) error {
	if rec.PatientName == "" {
		return fmt.Errorf("patient_name is required")
	}
	return s.records.Update(ctx, rec)
}

// -- Events --

var validEventTypes = map[EventType]bool{
	EventBolus: true, EventInfusionStart: true, EventInfusionStop: true, EventRateChange: true,
}

func (s *Service) AddEvent(ctx context.Context, ev *MedicationEvent, actor string) error {
	if !validEventTypes[ev.Type] {
		return fmt.Errorf("invalid event type: %s", ev.Type)
	}
	if ev.RecordID == uuid.Nil {
		return fmt.Errorf("record_id is required")
	}
	if ev.ItemID == uuid.Nil {
		return fmt.Errorf("item_id is required")
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if _, err := s.records.GetByID(ctx, ev.RecordID); err != nil {
		return err
	}
	if err := s.events.Create(ctx, ev); err != nil {
		return err
	}
	entry := audit.NewChangeEntry("medication_event", ev.ID, audit.ActionCreate, actor, nil, ev)
	return s.trail.Append(ctx, entry)
}

func (s *Service) ListEvents(ctx context.Context, recordID uuid.UUID) ([]*MedicationEvent, error) {
	return s.events.ListByRecord(ctx, recordID)
}

// DeleteEvent removes a charted event. Events are otherwise immutable, so
// deletion is the only destructive operation and demands a reason.
func (s *Service) DeleteEvent(ctx context.Context, id uuid.UUID, actor, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	ev, err := s.events.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	entry := audit.NewChangeEntry("medication_event", ev.ID, audit.ActionDelete, actor, ev, nil)
	entry.Reason = reason
	return s.trail.Append(ctx, entry)
}

// -- Usage --

// Recalculate recomputes the usage ledger for a record from its uncommitted
// events. It is idempotent: with no intervening events or commits, repeated
// calls produce identical rows. Overrides are never touched.
func (s *Service) Recalculate(ctx context.Context, recordID uuid.UUID) ([]*UsageRecord, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	boundaries, err := s.commits.LastCommitTimes(ctx, recordID)
	if err != nil {
		return nil, err
	}

	// Exclude events already consumed by a non-rolled-back commit: only
	// events strictly after an item's last commit timestamp count.
	uncommitted := events[:0:0]
	for _, ev := range events {
		if boundary, ok := boundaries[ev.ItemID]; ok && !ev.Timestamp.After(boundary) {
			continue
		}
		uncommitted = append(uncommitted, ev)
	}

	itemIDs := make([]uuid.UUID, 0, len(uncommitted))
	seen := make(map[uuid.UUID]bool)
	for _, ev := range uncommitted {
		if !seen[ev.ItemID] {
			seen[ev.ItemID] = true
			itemIDs = append(itemIDs, ev.ItemID)
		}
	}
	items, err := s.items.GetByIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	itemMap := make(map[uuid.UUID]*inventory.Item, len(items))
	for _, item := range items {
		itemMap[item.ID] = item
	}

	quantities := s.calc.Calculate(uncommitted, itemMap, rec.PatientWeightKG)

	existing, err := s.usage.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	existingByItem := make(map[uuid.UUID]*UsageRecord, len(existing))
	for _, u := range existing {
		existingByItem[u.ItemID] = u
	}

	for itemID, qty := range quantities {
		u := existingByItem[itemID]
		if u == nil {
			u = &UsageRecord{RecordID: recordID, ItemID: itemID}
		}
		u.CalculatedQty = qty
		if err := s.usage.Upsert(ctx, u); err != nil {
			return nil, err
		}
	}
	for itemID, u := range existingByItem {
		if _, stillUsed := quantities[itemID]; stillUsed {
			continue
		}
		if u.OverrideQty != nil {
			// An override survives until explicitly cleared, even when the
			// computed contribution has dropped to zero.
			u.CalculatedQty = decimal.Zero
			if err := s.usage.Upsert(ctx, u); err != nil {
				return nil, err
			}
			continue
		}
		if err := s.usage.Delete(ctx, u.ID); err != nil {
			return nil, err
		}
	}

	return s.usage.ListByRecord(ctx, recordID)
}

// Override pins a usage row to a manually entered quantity. The calculated
// quantity is preserved underneath and restored by ClearOverride.
func (s *Service) Override(ctx context.Context, usageID uuid.UUID, qty decimal.Decimal, reason, actor string) (*UsageRecord, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if qty.IsNegative() {
		return nil, fmt.Errorf("override quantity must not be negative")
	}
	u, err := s.usage.GetByID(ctx, usageID)
	if err != nil {
		return nil, err
	}

	old := *u
	now := time.Now().UTC()
	u.OverrideQty = &qty
	u.OverrideReason = &reason
	u.OverriddenBy = &actor
	u.OverriddenAt = &now
	if err := s.usage.Update(ctx, u); err != nil {
		return nil, err
	}

	entry := audit.NewChangeEntry("usage_record", u.ID, audit.ActionOverride, actor, &old, u)
	entry.Reason = reason
	if err := s.trail.Append(ctx, entry); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ClearOverride(ctx context.Context, usageID uuid.UUID, actor string) (*UsageRecord, error) {
	u, err := s.usage.GetByID(ctx, usageID)
	if err != nil {
		return nil, err
	}

	old := *u
	u.OverrideQty = nil
	u.OverrideReason = nil
	u.OverriddenBy = nil
	u.OverriddenAt = nil
	if err := s.usage.Update(ctx, u); err != nil {
		return nil, err
	}

	entry := audit.NewChangeEntry("usage_record", u.ID, audit.ActionUpdate, actor, &old, u)
	if err := s.trail.Append(ctx, entry); err != nil {
		return nil, err
	}
	return u, nil
}

// -- Commit / Rollback --

type stockChange struct {
	itemID     uuid.UUID
	quantity   int
	controlled bool
	before     int
}

// Commit snapshots the record's pending usage for one unit into an
// immutable ledger entry, consumes the usage rows, and deducts stock. The
// whole operation is transactional: snapshot, deletion, deduction, and
// audit entries land together or not at all.
func (s *Service) Commit(ctx context.Context, recordID, unitID uuid.UUID, actor string, signature *string) (*InventoryCommit, error) {
	if actor == "" {
		return nil, fmt.Errorf("actor is required")
	}
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	txCtx, tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Locking the usage rows serializes concurrent commits for the same
	// record so the same pending usage cannot be committed twice.
	usages, err := s.usage.ListByRecordForUpdate(txCtx, recordID)
	if err != nil {
		return nil, err
	}

	itemIDs := make([]uuid.UUID, 0, len(usages))
	for _, u := range usages {
		itemIDs = append(itemIDs, u.ItemID)
	}
	items, err := s.items.GetByIDs(txCtx, itemIDs)
	if err != nil {
		return nil, err
	}
	itemMap := make(map[uuid.UUID]*inventory.Item, len(items))
	for _, item := range items {
		itemMap[item.ID] = item
	}

	var commitItems []CommitItem
	var changes []stockChange
	var consumed []uuid.UUID
	controlled := false
	for _, u := range usages {
		item, ok := itemMap[u.ItemID]
		if !ok || item.UnitID != unitID {
			// A commit never spans organizational units.
			continue
		}
		qty := int(u.EffectiveQty().Round(0).IntPart())
		if qty < 0 {
			qty = 0
		}
		commitItems = append(commitItems, CommitItem{
			ItemID:       item.ID,
			ItemName:     item.Name,
			Quantity:     qty,
			IsControlled: item.Controlled,
		})
		changes = append(changes, stockChange{
			itemID: item.ID, quantity: qty, controlled: item.Controlled, before: item.CurrentUnits,
		})
		consumed = append(consumed, u.ID)
		if item.Controlled {
			controlled = true
		}
	}

	if len(commitItems) == 0 {
		return nil, ErrNoItemsToCommit
	}
	if controlled && (signature == nil || *signature == "") {
		return nil, ErrSignatureRequired
	}

	commit := &InventoryCommit{
		RecordID:    recordID,
		UnitID:      &unitID,
		CommittedBy: actor,
		Signature:   signature,
		PatientName: rec.PatientName,
		PatientID:   rec.PatientID,
		Items:       commitItems,
	}
	if err := s.commits.Create(txCtx, commit); err != nil {
		return nil, err
	}

	// Consuming the usage rows is what moves the commit boundary: the next
	// recalculation excludes the events counted here.
	for _, usageID := range consumed {
		if err := s.usage.Delete(txCtx, usageID); err != nil {
			return nil, err
		}
	}

	for _, ch := range changes {
		after, err := s.items.AdjustStock(txCtx, ch.itemID, -ch.quantity)
		if err != nil {
			return nil, err
		}
		if ch.controlled {
			entry := audit.NewChangeEntry("inventory_item", ch.itemID, audit.ActionCommit, actor,
				map[string]any{"current_units": ch.before},
				map[string]any{"current_units": after, "quantity": ch.quantity, "signature": signature, "commit_id": commit.ID})
			if err := s.trail.Append(txCtx, entry); err != nil {
				return nil, err
			}
		}
	}

	entry := audit.NewChangeEntry("inventory_commit", commit.ID, audit.ActionCreate, actor, nil, commit)
	if err := s.trail.Append(txCtx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return commit, nil
}

// Rollback reverses a commit exactly once: stamps the rollback fields,
// restores stock, and recomputes the usage ledger so the reversed
// consumption becomes visible again.
func (s *Service) Rollback(ctx context.Context, commitID uuid.UUID, actor, reason string) (*InventoryCommit, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if actor == "" {
		return nil, fmt.Errorf("actor is required")
	}

	txCtx, tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	commit, err := s.commits.GetByID(txCtx, commitID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := s.commits.MarkRolledBack(txCtx, commitID, actor, reason, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyRolledBack
	}
	commit.RolledBackAt = &now
	commit.RolledBackBy = &actor
	commit.RollbackReason = &reason

	for _, item := range commit.Items {
		after, err := s.items.AdjustStock(txCtx, item.ItemID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if item.IsControlled {
			entry := audit.NewChangeEntry("inventory_item", item.ItemID, audit.ActionRollback, actor,
				map[string]any{"current_units": after - item.Quantity},
				map[string]any{"current_units": after, "quantity": item.Quantity, "commit_id": commit.ID})
			entry.Reason = reason
			if err := s.trail.Append(txCtx, entry); err != nil {
				return nil, err
			}
		}
	}

	entry := audit.NewChangeEntry("inventory_commit", commit.ID, audit.ActionRollback, actor, nil, commit)
	entry.Reason = reason
	if err := s.trail.Append(txCtx, entry); err != nil {
		return nil, err
	}

	// Rollback is not complete until the reversed consumption is recomputed
	// into fresh usage rows.
	if _, err := s.Recalculate(txCtx, commit.RecordID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return commit, nil
}

func (s *Service) GetCommit(ctx context.Context, id uuid.UUID) (*InventoryCommit, error) {
	return s.commits.GetByID(ctx, id)
}

func (s *Service) ListCommits(ctx context.Context, recordID uuid.UUID, unitID *uuid.UUID) ([]*InventoryCommit, error) {
	return s.commits.ListByRecord(ctx, recordID, unitID)
}

// -- Audit --

func (s *Service) ListAudit(ctx context.Context, recordType string, recordID uuid.UUID) ([]audit.Entry, error) {
	return s.trail.ListByRecord(ctx, recordType, recordID)
}
