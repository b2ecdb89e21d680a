package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Item is a stocked medication in a hospital unit's anesthesia inventory.
//
// AmpuleTotalContent is the human-entered content of one ampule (e.g.
// "50 mg", "2.5 ml"); its leading numeric magnitude drives ampule math.
// Items with a RateUnit are administered as rate-controlled infusions;
// items without one count free-flow infusions per started session.
type Item struct {
	ID                 uuid.UUID `json:"id"`
	UnitID             uuid.UUID `json:"unit_id"`
	Name               string    `json:"name"`
	Controlled         bool      `json:"controlled"`
	RateUnit           *string   `json:"rate_unit,omitempty"`
	AmpuleTotalContent string    `json:"ampule_total_content"`
	CurrentUnits       int       `json:"current_units"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
