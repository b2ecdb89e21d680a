package anesthesia

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmauij/Viali-sub010/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Record Repository ===========

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `id, unit_id, patient_name, patient_id, patient_weight_kg, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.UnitID, &rec.PatientName, &rec.PatientID,
		&rec.PatientWeightKG, &rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO anesthesia_records (id, unit_id, patient_name, patient_id, patient_weight_kg)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.UnitID, rec.PatientName, rec.PatientID, rec.PatientWeightKG)
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM anesthesia_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return rec, err
}

func (r *recordRepoPG) Update(ctx context.Context, rec *Record) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE anesthesia_records SET patient_name=$2, patient_id=$3,
			patient_weight_kg=$4, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.PatientName, rec.PatientID, rec.PatientWeightKG)
	return err
}

// =========== Event Repository ===========

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository {
	return &eventRepoPG{pool: pool}
}

const eventCols = `id, seq, record_id, item_id, type, ts, dose, rate,
	infusion_session_id, end_ts, created_at`

func scanEvent(row pgx.Row) (*MedicationEvent, error) {
	var ev MedicationEvent
	err := row.Scan(&ev.ID, &ev.Seq, &ev.RecordID, &ev.ItemID, &ev.Type, &ev.Timestamp,
		&ev.Dose, &ev.Rate, &ev.InfusionSessionID, &ev.EndTimestamp, &ev.CreatedAt)
	return &ev, err
}

func (r *eventRepoPG) Create(ctx context.Context, ev *MedicationEvent) error {
	ev.ID = uuid.New()
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medication_events (id, record_id, item_id, type, ts, dose, rate,
			infusion_session_id, end_ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING seq, created_at`,
		ev.ID, ev.RecordID, ev.ItemID, ev.Type, ev.Timestamp, ev.Dose, ev.Rate,
		ev.InfusionSessionID, ev.EndTimestamp).Scan(&ev.Seq, &ev.CreatedAt)
}

func (r *eventRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicationEvent, error) {
	ev, err := scanEvent(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+eventCols+` FROM medication_events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

func (r *eventRepoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*MedicationEvent, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+eventCols+` FROM medication_events WHERE record_id = $1 ORDER BY ts, seq`,
		recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*MedicationEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *eventRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM medication_events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// =========== Usage Repository ===========

type usageRepoPG struct{ pool *pgxpool.Pool }

func NewUsageRepoPG(pool *pgxpool.Pool) UsageRepository {
	return &usageRepoPG{pool: pool}
}

const usageCols = `id, record_id, item_id, calculated_qty, override_qty,
	override_reason, overridden_by, overridden_at, updated_at`

func scanUsage(row pgx.Row) (*UsageRecord, error) {
	var u UsageRecord
	err := row.Scan(&u.ID, &u.RecordID, &u.ItemID, &u.CalculatedQty, &u.OverrideQty,
		&u.OverrideReason, &u.OverriddenBy, &u.OverriddenAt, &u.UpdatedAt)
	return &u, err
}

func (r *usageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*UsageRecord, error) {
	u, err := scanUsage(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+usageCols+` FROM usage_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUsageNotFound
	}
	return u, err
}

func (r *usageRepoPG) listByRecord(ctx context.Context, recordID uuid.UUID, forUpdate bool) ([]*UsageRecord, error) {
	query := `SELECT ` + usageCols + ` FROM usage_records WHERE record_id = $1 ORDER BY item_id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := conn(ctx, r.pool).Query(ctx, query, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []*UsageRecord
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (r *usageRepoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*UsageRecord, error) {
	return r.listByRecord(ctx, recordID, false)
}

func (r *usageRepoPG) ListByRecordForUpdate(ctx context.Context, recordID uuid.UUID) ([]*UsageRecord, error) {
	return r.listByRecord(ctx, recordID, true)
}

func (r *usageRepoPG) Upsert(ctx context.Context, u *UsageRecord) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	// Refresh the calculated quantity only; override fields belong to the
	// clinician and survive recalculation.
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO usage_records (id, record_id, item_id, calculated_qty)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (record_id, item_id) DO UPDATE
		SET calculated_qty = EXCLUDED.calculated_qty, updated_at = NOW()
		RETURNING id, override_qty, override_reason, overridden_by, overridden_at, updated_at`,
		u.ID, u.RecordID, u.ItemID, u.CalculatedQty).
		Scan(&u.ID, &u.OverrideQty, &u.OverrideReason, &u.OverriddenBy, &u.OverriddenAt, &u.UpdatedAt)
}

func (r *usageRepoPG) Update(ctx context.Context, u *UsageRecord) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE usage_records SET calculated_qty=$2, override_qty=$3, override_reason=$4,
			overridden_by=$5, overridden_at=$6, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.CalculatedQty, u.OverrideQty, u.OverrideReason, u.OverriddenBy, u.OverriddenAt)
	return err
}

func (r *usageRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM usage_records WHERE id = $1`, id)
	return err
}

func (r *usageRepoPG) DeleteByRecordItem(ctx context.Context, recordID, itemID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM usage_records WHERE record_id = $1 AND item_id = $2`, recordID, itemID)
	return err
}

// =========== Commit Repository ===========

type commitRepoPG struct{ pool *pgxpool.Pool }

func NewCommitRepoPG(pool *pgxpool.Pool) CommitRepository {
	return &commitRepoPG{pool: pool}
}

const commitCols = `id, record_id, unit_id, committed_by, committed_at, signature,
	patient_name, patient_id, rolled_back_at, rolled_back_by, rollback_reason`

func scanCommit(row pgx.Row) (*InventoryCommit, error) {
	var c InventoryCommit
	err := row.Scan(&c.ID, &c.RecordID, &c.UnitID, &c.CommittedBy, &c.CommittedAt,
		&c.Signature, &c.PatientName, &c.PatientID,
		&c.RolledBackAt, &c.RolledBackBy, &c.RollbackReason)
	return &c, err
}

func (r *commitRepoPG) Create(ctx context.Context, c *InventoryCommit) error {
	c.ID = uuid.New()
	q := conn(ctx, r.pool)
	err := q.QueryRow(ctx, `
		INSERT INTO inventory_commits (id, record_id, unit_id, committed_by, signature,
			patient_name, patient_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING committed_at`,
		c.ID, c.RecordID, c.UnitID, c.CommittedBy, c.Signature,
		c.PatientName, c.PatientID).Scan(&c.CommittedAt)
	if err != nil {
		return err
	}
	for i, item := range c.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO inventory_commit_items (commit_id, position, item_id, item_name,
				quantity, is_controlled)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			c.ID, i, item.ItemID, item.ItemName, item.Quantity, item.IsControlled)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *commitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*InventoryCommit, error) {
	q := conn(ctx, r.pool)
	c, err := scanCommit(q.QueryRow(ctx,
		`SELECT `+commitCols+` FROM inventory_commits WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommitNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Items, err = r.loadItems(ctx, q, c.ID)
	return c, err
}

func (r *commitRepoPG) loadItems(ctx context.Context, q queryable, commitID uuid.UUID) ([]CommitItem, error) {
	rows, err := q.Query(ctx, `
		SELECT item_id, item_name, quantity, is_controlled
		FROM inventory_commit_items WHERE commit_id = $1 ORDER BY position`, commitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CommitItem
	for rows.Next() {
		var it CommitItem
		if err := rows.Scan(&it.ItemID, &it.ItemName, &it.Quantity, &it.IsControlled); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *commitRepoPG) ListByRecord(ctx context.Context, recordID uuid.UUID, unitID *uuid.UUID) ([]*InventoryCommit, error) {
	q := conn(ctx, r.pool)
	query := `SELECT ` + commitCols + ` FROM inventory_commits WHERE record_id = $1`
	args := []any{recordID}
	if unitID != nil {
		// Legacy commits predate unit scoping and carry no unit; they are
		// included in every unit-filtered listing.
		query += ` AND (unit_id = $2 OR unit_id IS NULL)`
		args = append(args, *unitID)
	}
	query += ` ORDER BY committed_at DESC`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []*InventoryCommit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range commits {
		if c.Items, err = r.loadItems(ctx, q, c.ID); err != nil {
			return nil, err
		}
	}
	return commits, nil
}

func (r *commitRepoPG) MarkRolledBack(ctx context.Context, id uuid.UUID, by, reason string, at time.Time) (bool, error) {
	// Compare-and-set on rolled_back_at: exactly one rollback can win.
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE inventory_commits
		SET rolled_back_at = $2, rolled_back_by = $3, rollback_reason = $4
		WHERE id = $1 AND rolled_back_at IS NULL`,
		id, at, by, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *commitRepoPG) LastCommitTimes(ctx context.Context, recordID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT ci.item_id, MAX(c.committed_at)
		FROM inventory_commit_items ci
		JOIN inventory_commits c ON c.id = ci.commit_id
		WHERE c.record_id = $1 AND c.rolled_back_at IS NULL
		GROUP BY ci.item_id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	times := make(map[uuid.UUID]time.Time)
	for rows.Next() {
		var itemID uuid.UUID
		var ts time.Time
		if err := rows.Scan(&itemID, &ts); err != nil {
			return nil, err
		}
		times[itemID] = ts
	}
	return times, rows.Err()
}
