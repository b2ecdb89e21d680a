package anesthesia

import (
	"sort"
	"time"
)

// Session is a closed infusion: a start event, the rate changes charted
// while it ran, and a resolved end time. Sessions still running (no stop
// event and no end timestamp on the start) are never produced.
type Session struct {
	Start       *MedicationEvent
	RateChanges []*MedicationEvent
	End         time.Time
}

// Segment is one contiguous interval of a session at a constant charted rate.
type Segment struct {
	Rate  string
	Start time.Time
	End   time.Time
}

// Segments splits the session at each rate change. Rate changes outside
// the session window or with a non-positive span are skipped.
func (s *Session) Segments() []Segment {
	changes := make([]*MedicationEvent, 0, len(s.RateChanges))
	for _, rc := range s.RateChanges {
		if rc.Timestamp.Before(s.Start.Timestamp) || !rc.Timestamp.Before(s.End) {
			continue
		}
		changes = append(changes, rc)
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Timestamp.Before(changes[j].Timestamp)
	})

	var segments []Segment
	cur := Segment{Rate: rateOf(s.Start), Start: s.Start.Timestamp}
	for _, rc := range changes {
		cur.End = rc.Timestamp
		if cur.End.After(cur.Start) {
			segments = append(segments, cur)
		}
		cur = Segment{Rate: rateOf(rc), Start: rc.Timestamp}
	}
	cur.End = s.End
	if cur.End.After(cur.Start) {
		segments = append(segments, cur)
	}
	return segments
}

func rateOf(ev *MedicationEvent) string {
	if ev.Rate == nil {
		return ""
	}
	return *ev.Rate
}

// sessionAssembler turns a time-ordered list of infusion events for one
// item into closed sessions. Two strategies exist: one for events tagged
// with an infusion session id and one for legacy untagged events.
type sessionAssembler interface {
	Assemble(events []*MedicationEvent) []Session
}

// AssembleSessions partitions an item's infusion events by whether they
// carry a session id and runs the matching strategy on each partition.
// Events must already be in non-decreasing timestamp order.
func AssembleSessions(events []*MedicationEvent) []Session {
	var tagged, legacy []*MedicationEvent
	for _, ev := range events {
		switch ev.Type {
		case EventInfusionStart, EventInfusionStop, EventRateChange:
		default:
			continue
		}
		if ev.InfusionSessionID != nil && *ev.InfusionSessionID != "" {
			tagged = append(tagged, ev)
		} else {
			legacy = append(legacy, ev)
		}
	}

	var sessions []Session
	if len(tagged) > 0 {
		sessions = append(sessions, taggedAssembler{}.Assemble(tagged)...)
	}
	if len(legacy) > 0 {
		sessions = append(sessions, legacyAssembler{}.Assemble(legacy)...)
	}
	return sessions
}

// taggedAssembler groups events directly by their infusion session id.
// A session closes on its stop event, or on the start event's own end
// timestamp when the infusion was stopped without a separate stop record.
type taggedAssembler struct{}

func (taggedAssembler) Assemble(events []*MedicationEvent) []Session {
	type group struct {
		start       *MedicationEvent
		stop        *MedicationEvent
		rateChanges []*MedicationEvent
	}

	groups := make(map[string]*group)
	var order []string
	for _, ev := range events {
		sid := *ev.InfusionSessionID
		g, ok := groups[sid]
		if !ok {
			g = &group{}
			groups[sid] = g
			order = append(order, sid)
		}
		switch ev.Type {
		case EventInfusionStart:
			if g.start == nil {
				g.start = ev
			}
		case EventInfusionStop:
			if g.stop == nil {
				g.stop = ev
			}
		case EventRateChange:
			g.rateChanges = append(g.rateChanges, ev)
		}
	}

	var sessions []Session
	for _, sid := range order {
		g := groups[sid]
		if g.start == nil {
			continue
		}
		var end time.Time
		switch {
		case g.stop != nil:
			end = g.stop.Timestamp
		case g.start.EndTimestamp != nil:
			end = *g.start.EndTimestamp
		default:
			// still running
			continue
		}
		sessions = append(sessions, Session{
			Start:       g.start,
			RateChanges: g.rateChanges,
			End:         end,
		})
	}
	return sessions
}

// legacyAssembler pairs untagged events heuristically: starts are processed
// in chronological order, each claiming the earliest unclaimed stop after
// it (or its own end timestamp when no stop exists), plus every unclaimed
// rate change strictly inside the window. Overlapping manual corrections
// are resolved greedily by earliest match rather than reconciled.
type legacyAssembler struct{}

func (legacyAssembler) Assemble(events []*MedicationEvent) []Session {
	var starts, stops, changes []*MedicationEvent
	for _, ev := range events {
		switch ev.Type {
		case EventInfusionStart:
			starts = append(starts, ev)
		case EventInfusionStop:
			stops = append(stops, ev)
		case EventRateChange:
			changes = append(changes, ev)
		}
	}

	stopClaimed := make([]bool, len(stops))
	changeClaimed := make([]bool, len(changes))

	var sessions []Session
	for _, start := range starts {
		var end time.Time
		matched := false
		for i, stop := range stops {
			if stopClaimed[i] || stop.Timestamp.Before(start.Timestamp) {
				continue
			}
			stopClaimed[i] = true
			end = stop.Timestamp
			matched = true
			break
		}
		if !matched {
			if start.EndTimestamp == nil {
				// still running
				continue
			}
			end = *start.EndTimestamp
		}

		session := Session{Start: start, End: end}
		for i, rc := range changes {
			if changeClaimed[i] {
				continue
			}
			if rc.Timestamp.After(start.Timestamp) && rc.Timestamp.Before(end) {
				changeClaimed[i] = true
				session.RateChanges = append(session.RateChanges, rc)
			}
		}
		sessions = append(sessions, session)
	}
	return sessions
}
