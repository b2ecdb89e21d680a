package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestAppend_RequiresAction(t *testing.T) {
	trail := NewPGTrail(nil)
	err := trail.Append(context.Background(), &Entry{
		RecordType: "usage_record",
		RecordID:   uuid.New(),
		UserID:     "user-1",
	})
	if err == nil {
		t.Fatal("expected error for missing action")
	}
}

func TestAppend_DestructiveActionsRequireReason(t *testing.T) {
	trail := NewPGTrail(nil)
	for _, action := range []string{ActionDelete, ActionRollback} {
		err := trail.Append(context.Background(), &Entry{
			RecordType: "medication_event",
			RecordID:   uuid.New(),
			Action:     action,
			UserID:     "user-1",
		})
		if err == nil {
			t.Errorf("expected error for %s without reason", action)
		}
	}
}

func TestNewChangeEntry_MarshalsValues(t *testing.T) {
	recordID := uuid.New()
	oldVal := map[string]any{"quantity": 2}
	newVal := map[string]any{"quantity": 3}

	entry := NewChangeEntry("usage_record", recordID, ActionOverride, "user-9", oldVal, newVal)

	if entry.RecordType != "usage_record" {
		t.Errorf("expected record_type usage_record, got %s", entry.RecordType)
	}
	if entry.RecordID != recordID {
		t.Errorf("expected record_id %s, got %s", recordID, entry.RecordID)
	}
	if entry.Action != ActionOverride {
		t.Errorf("expected action override, got %s", entry.Action)
	}
	if string(entry.OldValue) != `{"quantity":2}` {
		t.Errorf("unexpected old_value: %s", entry.OldValue)
	}
	if string(entry.NewValue) != `{"quantity":3}` {
		t.Errorf("unexpected new_value: %s", entry.NewValue)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestNewChangeEntry_NilValues(t *testing.T) {
	entry := NewChangeEntry("inventory_commit", uuid.New(), ActionCreate, "user-2", nil, nil)
	if entry.OldValue != nil {
		t.Errorf("expected nil old_value, got %s", entry.OldValue)
	}
	if entry.NewValue != nil {
		t.Errorf("expected nil new_value, got %s", entry.NewValue)
	}
}
