package models

import (
	"time"

	"github.com/google/uuid"
)

// Session phases touched by the outreach flow. Other phases belong to the
// intake and search subsystems.
const (
	SessionPhaseCalling   = "calling"
	SessionPhaseDashboard = "dashboard"
)

// Session is one buyer's car search. Preferences are captured upstream during
// requirement intake and only read here.
type Session struct {
	ID          uuid.UUID   `db:"id"          json:"id"`
	AccountID   uuid.UUID   `db:"account_id"  json:"account_id"`
	Phase       string      `db:"phase"       json:"phase"`
	Preferences Preferences `db:"preferences" json:"preferences"`
	CreatedAt   time.Time   `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"  json:"updated_at"`
}

// Preferences is the subset of buyer requirements the call script uses.
type Preferences struct {
	UserName string   `json:"user_name,omitempty"`
	PriceMax float64  `json:"price_max,omitempty"`
	ZipCode  string   `json:"zip_code,omitempty"`
	Finance  string   `json:"finance,omitempty"` // "cash", "finance" or "undecided"
	TradeIn  string   `json:"trade_in,omitempty"`
	Features []string `json:"features,omitempty"`
}

// WantsFinancing reports whether the buyer is open to dealer financing.
func (p Preferences) WantsFinancing() bool {
	return p.Finance != "cash"
}
