package anesthesia

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func infusionEvent(typ EventType, at time.Time, rate string, sessionID *string) *MedicationEvent {
	ev := &MedicationEvent{
		ID:                uuid.New(),
		Type:              typ,
		Timestamp:         at,
		InfusionSessionID: sessionID,
	}
	if rate != "" {
		ev.Rate = strPtr(rate)
	}
	return ev
}

func TestAssembleSessions_TaggedClosedByStop(t *testing.T) {
	sid := strPtr("session-1")
	events := []*MedicationEvent{
		infusionEvent(EventInfusionStart, t0, "10 ml/h", sid),
		infusionEvent(EventRateChange, t0.Add(time.Hour), "20 ml/h", sid),
		infusionEvent(EventInfusionStop, t0.Add(2*time.Hour), "", sid),
	}

	sessions := AssembleSessions(events)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if !s.End.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("expected end at +2h, got %v", s.End)
	}
	if len(s.RateChanges) != 1 {
		t.Errorf("expected 1 rate change, got %d", len(s.RateChanges))
	}
}

func TestAssembleSessions_TaggedClosedByEndTimestamp(t *testing.T) {
	sid := strPtr("session-2")
	end := t0.Add(90 * time.Minute)
	start := infusionEvent(EventInfusionStart, t0, "5 ml/h", sid)
	start.EndTimestamp = &end

	sessions := AssembleSessions([]*MedicationEvent{start})
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if !sessions[0].End.Equal(end) {
		t.Errorf("expected end %v, got %v", end, sessions[0].End)
	}
}

func TestAssembleSessions_TaggedUnclosedExcluded(t *testing.T) {
	sid := strPtr("session-3")
	events := []*MedicationEvent{
		infusionEvent(EventInfusionStart, t0, "10 ml/h", sid),
		infusionEvent(EventRateChange, t0.Add(time.Hour), "20 ml/h", sid),
	}

	if sessions := AssembleSessions(events); len(sessions) != 0 {
		t.Errorf("expected running session to be excluded, got %d sessions", len(sessions))
	}
}

func TestAssembleSessions_LegacyGreedyPairing(t *testing.T) {
	events := []*MedicationEvent{
		infusionEvent(EventInfusionStart, t0, "10 ml/h", nil),
		infusionEvent(EventRateChange, t0.Add(30*time.Minute), "15 ml/h", nil),
		infusionEvent(EventInfusionStop, t0.Add(time.Hour), "", nil),
		infusionEvent(EventInfusionStart, t0.Add(2*time.Hour), "20 ml/h", nil),
		infusionEvent(EventInfusionStop, t0.Add(3*time.Hour), "", nil),
	}

	sessions := AssembleSessions(events)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if !sessions[0].End.Equal(t0.Add(time.Hour)) {
		t.Errorf("first session: expected end at +1h, got %v", sessions[0].End)
	}
	if len(sessions[0].RateChanges) != 1 {
		t.Errorf("first session: expected 1 rate change, got %d", len(sessions[0].RateChanges))
	}
	if !sessions[1].End.Equal(t0.Add(3 * time.Hour)) {
		t.Errorf("second session: expected end at +3h, got %v", sessions[1].End)
	}
	if len(sessions[1].RateChanges) != 0 {
		t.Errorf("second session: expected 0 rate changes, got %d", len(sessions[1].RateChanges))
	}
}

func TestAssembleSessions_LegacyEndTimestampFallback(t *testing.T) {
	end := t0.Add(time.Hour)
	start := infusionEvent(EventInfusionStart, t0, "10 ml/h", nil)
	start.EndTimestamp = &end

	sessions := AssembleSessions([]*MedicationEvent{start})
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if !sessions[0].End.Equal(end) {
		t.Errorf("expected end %v, got %v", end, sessions[0].End)
	}
}

func TestAssembleSessions_LegacyUnclosedExcluded(t *testing.T) {
	events := []*MedicationEvent{
		infusionEvent(EventInfusionStart, t0, "10 ml/h", nil),
	}
	if sessions := AssembleSessions(events); len(sessions) != 0 {
		t.Errorf("expected running session to be excluded, got %d sessions", len(sessions))
	}
}

func TestAssembleSessions_MixedTaggedAndLegacy(t *testing.T) {
	sid := strPtr("session-4")
	events := []*MedicationEvent{
		infusionEvent(EventInfusionStart, t0, "10 ml/h", sid),
		infusionEvent(EventInfusionStop, t0.Add(time.Hour), "", sid),
		infusionEvent(EventInfusionStart, t0.Add(2*time.Hour), "20 ml/h", nil),
		infusionEvent(EventInfusionStop, t0.Add(3*time.Hour), "", nil),
	}

	sessions := AssembleSessions(events)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestSegments_SplitsAtRateChanges(t *testing.T) {
	sid := strPtr("session-5")
	start := infusionEvent(EventInfusionStart, t0, "10 ml/h", sid)
	rc := infusionEvent(EventRateChange, t0.Add(time.Hour), "20 ml/h", sid)

	session := Session{
		Start:       start,
		RateChanges: []*MedicationEvent{rc},
		End:         t0.Add(2 * time.Hour),
	}

	segments := session.Segments()
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Rate != "10 ml/h" || !segments[0].End.Equal(t0.Add(time.Hour)) {
		t.Errorf("unexpected first segment: %+v", segments[0])
	}
	if segments[1].Rate != "20 ml/h" || !segments[1].End.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("unexpected second segment: %+v", segments[1])
	}
}

func TestSegments_IgnoresOutOfWindowRateChanges(t *testing.T) {
	sid := strPtr("session-6")
	start := infusionEvent(EventInfusionStart, t0, "10 ml/h", sid)
	before := infusionEvent(EventRateChange, t0.Add(-time.Hour), "99 ml/h", sid)
	after := infusionEvent(EventRateChange, t0.Add(3*time.Hour), "99 ml/h", sid)

	session := Session{
		Start:       start,
		RateChanges: []*MedicationEvent{before, after},
		End:         t0.Add(2 * time.Hour),
	}

	segments := session.Segments()
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Rate != "10 ml/h" {
		t.Errorf("expected rate from start event, got %q", segments[0].Rate)
	}
}
