package models

// RankedVehicle is one entry of the final recommendation list.
type RankedVehicle struct {
	Rank          int          `json:"rank"`
	VehicleID     string       `json:"vehicle_id"`
	Title         string       `json:"title"`
	Year          int          `json:"year,omitempty"`
	Make          string       `json:"make,omitempty"`
	Model         string       `json:"model,omitempty"`
	Price         float64      `json:"price"`
	Mileage       *int         `json:"mileage,omitempty"`
	DealerName    string       `json:"dealer_name"`
	DealerPhone   string       `json:"dealer_phone"`
	DistanceMiles *float64     `json:"distance_miles,omitempty"`
	ListingURL    string       `json:"listing_url,omitempty"`
	ImageURLs     []string     `json:"image_urls"`
	Features      []string     `json:"features"`
	PreCallScore  float64      `json:"overall_score"`
	FinalScore    float64      `json:"final_score"`
	CallStatus    string       `json:"call_status"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CallSummary   *CallSummary `json:"call_summary,omitempty"`
}
