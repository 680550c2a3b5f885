package models

// Canonical recommendation values. Providers may produce other phrasings;
// ai.Normalize folds them onto these three.
const (
	RecommendationWorthVisiting = "worth visiting"
	RecommendationNeutral       = "neutral"
	RecommendationSkip          = "skip"
)

// CallSummary is the structured extraction of one dealer call transcript.
type CallSummary struct {
	IsAvailable      *bool            `json:"is_available"`
	Condition        Condition        `json:"condition"`
	Pricing          Pricing          `json:"pricing"`
	Financing        Financing        `json:"financing"`
	DealerImpression DealerImpression `json:"dealer_impression"`
	RedFlags         []string         `json:"red_flags"`
	KeyTakeaways     string           `json:"key_takeaways"`
	Recommendation   string           `json:"recommendation"`
}

// Condition is informational only; the ranker does not score it.
type Condition struct {
	AccidentHistory *string `json:"accident_history"`
	TitleStatus     *string `json:"title_status"`
	Notes           string  `json:"overall_notes"`
}

type Pricing struct {
	ListedPrice     float64  `json:"listed_price"`
	BestQuotedPrice *float64 `json:"best_quoted_price"`
	IsNegotiable    bool     `json:"is_negotiable"`
	OutTheDoorPrice *float64 `json:"out_the_door_price"`
}

type Financing struct {
	Available bool    `json:"available"`
	APRRange  *string `json:"apr_range"`
}

type DealerImpression struct {
	Responsiveness    string `json:"responsiveness"`
	WillingnessToDeal string `json:"willingness_to_deal"`
}

// Unavailable reports whether the dealer confirmed the vehicle is gone.
// An unknown availability is not treated as unavailable.
func (s *CallSummary) Unavailable() bool {
	return s != nil && s.IsAvailable != nil && !*s.IsAvailable
}
