package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// ErrMalformedJSON is returned when the model reply holds no JSON object.
var ErrMalformedJSON = errors.New("model reply is not a JSON object")

// wireSummary mirrors the prompt schema. Booleans are pointers because the
// model answers null for anything not discussed.
type wireSummary struct {
	IsAvailable *bool `json:"is_available"`
	Condition   struct {
		AccidentHistory *string `json:"accident_history"`
		TitleStatus     *string `json:"title_status"`
		Notes           string  `json:"overall_notes"`
	} `json:"condition"`
	Pricing struct {
		ListedPrice     *float64 `json:"listed_price"`
		BestQuotedPrice *float64 `json:"best_quoted_price"`
		IsNegotiable    *bool    `json:"is_negotiable"`
		OutTheDoorPrice *float64 `json:"out_the_door_price"`
	} `json:"pricing"`
	Financing struct {
		Available *bool   `json:"available"`
		APRRange  *string `json:"apr_range"`
	} `json:"financing"`
	DealerImpression struct {
		Responsiveness    string  `json:"responsiveness"`
		WillingnessToDeal *string `json:"willingness_to_deal"`
	} `json:"dealer_impression"`
	RedFlags       []string `json:"red_flags"`
	KeyTakeaways   string   `json:"key_takeaways"`
	Recommendation string   `json:"recommendation"`
}

// ParseSummary extracts a CallSummary from a model reply, tolerating
// markdown fences and prose around the JSON object.
func ParseSummary(reply string) (models.CallSummary, error) {
	body := stripFences(reply)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return models.CallSummary{}, ErrMalformedJSON
	}

	var w wireSummary
	if err := json.Unmarshal([]byte(body[start:end+1]), &w); err != nil {
		return models.CallSummary{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	s := models.CallSummary{
		IsAvailable: w.IsAvailable,
		Condition: models.Condition{
			AccidentHistory: w.Condition.AccidentHistory,
			TitleStatus:     w.Condition.TitleStatus,
			Notes:           w.Condition.Notes,
		},
		Pricing: models.Pricing{
			BestQuotedPrice: w.Pricing.BestQuotedPrice,
			IsNegotiable:    w.Pricing.IsNegotiable != nil && *w.Pricing.IsNegotiable,
			OutTheDoorPrice: w.Pricing.OutTheDoorPrice,
		},
		Financing: models.Financing{
			Available: w.Financing.Available != nil && *w.Financing.Available,
			APRRange:  w.Financing.APRRange,
		},
		DealerImpression: models.DealerImpression{
			Responsiveness: w.DealerImpression.Responsiveness,
		},
		RedFlags:       w.RedFlags,
		KeyTakeaways:   w.KeyTakeaways,
		Recommendation: w.Recommendation,
	}
	if w.Pricing.ListedPrice != nil {
		s.Pricing.ListedPrice = *w.Pricing.ListedPrice
	}
	if w.DealerImpression.WillingnessToDeal != nil {
		s.DealerImpression.WillingnessToDeal = *w.DealerImpression.WillingnessToDeal
	}
	return s, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
