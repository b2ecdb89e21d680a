package anesthesia

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/drmauij/Viali-sub010/internal/domain/inventory"
)

// Calculator converts a record's uncommitted medication events into one
// non-negative quantity per item, denominated in dispensable units
// (ampules/vials), never in raw dose or volume.
type Calculator struct{}

// Calculate groups events by item and dispatches on the item's dosing
// profile. Events must be in non-decreasing timestamp order. Items missing
// from the profile map contribute nothing.
func (Calculator) Calculate(events []*MedicationEvent, items map[uuid.UUID]*inventory.Item, weightKG *float64) map[uuid.UUID]decimal.Decimal {
	byItem := make(map[uuid.UUID][]*MedicationEvent)
	var order []uuid.UUID
	for _, ev := range events {
		if _, ok := byItem[ev.ItemID]; !ok {
			order = append(order, ev.ItemID)
		}
		byItem[ev.ItemID] = append(byItem[ev.ItemID], ev)
	}

	result := make(map[uuid.UUID]decimal.Decimal, len(order))
	for _, itemID := range order {
		item, ok := items[itemID]
		if !ok {
			continue
		}
		var qty decimal.Decimal
		switch {
		case item.RateUnit == nil:
			qty = bolusQuantity(byItem[itemID], item)
		case *item.RateUnit == "free":
			qty = freeFlowQuantity(byItem[itemID])
		default:
			qty = rateControlledQuantity(byItem[itemID], item, weightKG)
		}
		if qty.IsPositive() {
			result[itemID] = qty
		}
	}
	return result
}

// bolusQuantity sums the parsed dose of every bolus event first, then
// divides the total by the ampule content and rounds up. Rounding each
// bolus individually would overstate consumption.
func bolusQuantity(events []*MedicationEvent, item *inventory.Item) decimal.Decimal {
	total := decimal.Zero
	for _, ev := range events {
		if ev.Type != EventBolus || ev.Dose == nil {
			continue
		}
		total = total.Add(ParseMagnitude(*ev.Dose))
	}
	return ampuleCount(total, item)
}

// freeFlowQuantity counts started infusions; rate/time integration is not
// meaningful for free-flow items.
func freeFlowQuantity(events []*MedicationEvent) decimal.Decimal {
	var count int64
	for _, ev := range events {
		if ev.Type == EventInfusionStart {
			count++
		}
	}
	return decimal.NewFromInt(count)
}

// rateControlledQuantity integrates rate x duration across every segment
// of every closed session, keeping the running volume unrounded. Only the
// final total is converted to ampules.
func rateControlledQuantity(events []*MedicationEvent, item *inventory.Item, weightKG *float64) decimal.Decimal {
	ru := ParseRateUnit(*item.RateUnit)
	factor := ru.HourlyFactor(weightKG)

	volume := decimal.Zero
	for _, session := range AssembleSessions(events) {
		for _, seg := range session.Segments() {
			rate := ParseMagnitude(seg.Rate)
			if rate.IsZero() {
				continue
			}
			hours := decimal.NewFromFloat(seg.End.Sub(seg.Start).Hours())
			volume = volume.Add(rate.Mul(factor).Mul(hours))
		}
	}
	return ampuleCount(volume, item)
}

// ampuleCount converts a raw dose/volume total into dispensable units:
// ceil(total / ampule content). An unparseable or zero ampule content
// makes the item contribute nothing rather than erroring.
func ampuleCount(total decimal.Decimal, item *inventory.Item) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	ampule := ParseMagnitude(item.AmpuleTotalContent)
	if !ampule.IsPositive() {
		return decimal.Zero
	}
	return total.Div(ampule).Ceil()
}
