package anesthesia

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseMagnitude extracts the leading numeric magnitude from a free-text
// dose or rate string: the first contiguous run of digits with at most one
// decimal point, after optional leading whitespace. It returns zero when no
// numeric prefix exists: malformed clinical free text is expected input
// and contributes nothing, it is never an error.
//
//	"200 mg"          -> 200
//	"0.05 mcg/kg/min" -> 0.05
//	"2.5.1 ml"        -> 2.5
//	"bolus"           -> 0
func ParseMagnitude(s string) decimal.Decimal {
	s = strings.TrimLeft(s, " \t")

	end := 0
	seenDot := false
	for end < len(s) {
		ch := s[end]
		if ch >= '0' && ch <= '9' {
			end++
			continue
		}
		if ch == '.' && !seenDot {
			seenDot = true
			end++
			continue
		}
		break
	}

	num := strings.TrimSuffix(s[:end], ".")
	if num == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RateUnit describes how a rate-controlled item's rate string is
// denominated, parsed from the dosing profile's configured unit
// ("ml/h", "mcg/kg/min", ...).
type RateUnit struct {
	PerKG     bool
	PerMinute bool
}

// ParseRateUnit interprets a dosing profile rate unit of the shape
// <amount-unit>[/kg]/(min|h). Unknown or missing time bases fall back to
// per-hour, matching how rates without an explicit base are charted.
func ParseRateUnit(unit string) RateUnit {
	var ru RateUnit
	parts := strings.Split(strings.ToLower(strings.TrimSpace(unit)), "/")
	for _, p := range parts[1:] {
		switch strings.TrimSpace(p) {
		case "kg":
			ru.PerKG = true
		case "min", "minute":
			ru.PerMinute = true
		}
	}
	return ru
}

// HourlyFactor returns the multiplier converting a rate magnitude into an
// hourly volume for the given patient weight. A weight-normalized unit
// with no recorded weight yields zero: the segment contributes nothing
// rather than failing the calculation.
func (ru RateUnit) HourlyFactor(weightKG *float64) decimal.Decimal {
	factor := decimal.NewFromInt(1)
	if ru.PerMinute {
		factor = decimal.NewFromInt(60)
	}
	if ru.PerKG {
		if weightKG == nil {
			return decimal.Zero
		}
		factor = factor.Mul(decimal.NewFromFloat(*weightKG))
	}
	return factor
}
