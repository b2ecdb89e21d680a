package anesthesia

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventBolus         EventType = "bolus"
	EventInfusionStart EventType = "infusion_start"
	EventInfusionStop  EventType = "infusion_stop"
	EventRateChange    EventType = "rate_change"
)

// MedicationEvent is one administration action charted during a case.
// Events are immutable once created; corrections are new events, and
// removal goes through an explicit, audited delete.
//
// Dose and Rate are free text entered by clinicians; only their leading
// numeric magnitude is meaningful to the calculator. InfusionSessionID
// groups the start/rate_change/stop events of one continuous infusion.
// EndTimestamp is a shortcut for a start event whose infusion was stopped
// without a separate stop record.
type MedicationEvent struct {
	ID                uuid.UUID  `json:"id"`
	Seq               int64      `json:"seq"`
	RecordID          uuid.UUID  `json:"record_id"`
	ItemID            uuid.UUID  `json:"item_id"`
	Type              EventType  `json:"type"`
	Timestamp         time.Time  `json:"timestamp"`
	Dose              *string    `json:"dose,omitempty"`
	Rate              *string    `json:"rate,omitempty"`
	InfusionSessionID *string    `json:"infusion_session_id,omitempty"`
	EndTimestamp      *time.Time `json:"end_timestamp,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Record is the anesthesia case record that owns a stream of medication
// events. PatientWeightKG feeds weight-normalized infusion rates.
type Record struct {
	ID              uuid.UUID  `json:"id"`
	UnitID          uuid.UUID  `json:"unit_id"`
	PatientName     string     `json:"patient_name"`
	PatientID       string     `json:"patient_id"`
	PatientWeightKG *float64   `json:"patient_weight_kg,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// UsageRecord holds the computed consumption for one (record, item) pair,
// in dispensable units. OverrideQty, when set, takes precedence over the
// calculated quantity and survives recalculation until explicitly cleared.
type UsageRecord struct {
	ID             uuid.UUID        `json:"id"`
	RecordID       uuid.UUID        `json:"record_id"`
	ItemID         uuid.UUID        `json:"item_id"`
	CalculatedQty  decimal.Decimal  `json:"calculated_qty"`
	OverrideQty    *decimal.Decimal `json:"override_qty,omitempty"`
	OverrideReason *string          `json:"override_reason,omitempty"`
	OverriddenBy   *string          `json:"overridden_by,omitempty"`
	OverriddenAt   *time.Time       `json:"overridden_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// EffectiveQty returns the override when present, the calculated quantity
// otherwise.
func (u *UsageRecord) EffectiveQty() decimal.Decimal {
	if u.OverrideQty != nil {
		return *u.OverrideQty
	}
	return u.CalculatedQty
}

// CommitItem is a denormalized item snapshot inside a commit. Name and
// controlled flag are captured at commit time on purpose: the ledger must
// stay historically accurate even if the item is later renamed or
// reclassified.
type CommitItem struct {
	ItemID       uuid.UUID `json:"item_id"`
	ItemName     string    `json:"item_name"`
	Quantity     int       `json:"quantity"`
	IsControlled bool      `json:"is_controlled"`
}

// InventoryCommit is an immutable ledger entry converting computed usage
// into a stock deduction. The only permitted mutation is setting the
// rollback fields, exactly once.
type InventoryCommit struct {
	ID             uuid.UUID    `json:"id"`
	RecordID       uuid.UUID    `json:"record_id"`
	UnitID         *uuid.UUID   `json:"unit_id,omitempty"`
	CommittedBy    string       `json:"committed_by"`
	CommittedAt    time.Time    `json:"committed_at"`
	Signature      *string      `json:"signature,omitempty"`
	PatientName    string       `json:"patient_name"`
	PatientID      string       `json:"patient_id"`
	Items          []CommitItem `json:"items"`
	RolledBackAt   *time.Time   `json:"rolled_back_at,omitempty"`
	RolledBackBy   *string      `json:"rolled_back_by,omitempty"`
	RollbackReason *string      `json:"rollback_reason,omitempty"`
}

// RolledBack reports whether the commit has been reversed.
func (c *InventoryCommit) RolledBack() bool {
	return c.RolledBackAt != nil
}
