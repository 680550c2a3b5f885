package models

import (
	"time"

	"github.com/google/uuid"
)

// Vehicle is a listing produced by the search subsystem. PreCallScore is
// computed upstream on a 0-100 scale and is never recomputed by outreach.
type Vehicle struct {
	ID            uuid.UUID `db:"id"             json:"-"`
	SessionID     uuid.UUID `db:"session_id"     json:"-"`
	VehicleID     string    `db:"vehicle_id"     json:"vehicle_id"`
	Title         string    `db:"title"          json:"title"`
	Year          int       `db:"year"           json:"year,omitempty"`
	Make          string    `db:"make"           json:"make,omitempty"`
	Model         string    `db:"model"          json:"model,omitempty"`
	Price         float64   `db:"price"          json:"price"`
	Mileage       *int      `db:"mileage"        json:"mileage,omitempty"`
	Condition     string    `db:"condition"      json:"condition,omitempty"`
	DealerName    string    `db:"dealer_name"    json:"dealer_name"`
	DealerPhone   string    `db:"dealer_phone"   json:"dealer_phone"`
	DistanceMiles *float64  `db:"distance_miles" json:"distance_miles,omitempty"`
	ListingURL    string    `db:"listing_url"    json:"listing_url,omitempty"`
	ImageURLs     []string  `db:"image_urls"     json:"image_urls"`
	Features      []string  `db:"features"       json:"features"`
	PreCallScore  float64   `db:"pre_call_score" json:"pre_call_score"`
	Shortlisted   bool      `db:"shortlisted"    json:"-"`
	CreatedAt     time.Time `db:"created_at"     json:"-"`
}
