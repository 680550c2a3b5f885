// Package heuristic summarizes dealer calls with keyword rules. It needs no
// model endpoint and is the fallback when the LLM provider is unavailable.
package heuristic

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

var (
	soldPhrases       = []string{"sold", "no longer available"}
	negotiablePhrases = []string{"could probably do", "flexibility", "work with you", "negotiate"}
	financingPhrases  = []string{"financing", "rates", "apr", "lender"}
	accidentPhrases   = []string{"accident", "fender", "collision", "body work"}
	offerPhrases      = []string{"could probably do", "we could do", "best price", "out the door"}

	dollarAmount = regexp.MustCompile(`\$[\d,]+`)
)

// outTheDoorMarkup approximates tax and fees on top of a quoted price.
const outTheDoorMarkup = 1200

// Provider implements models.SummaryProvider with keyword matching.
type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "heuristic" }

func (p *Provider) Summarize(ctx context.Context, req models.SummaryRequest) (models.CallSummary, error) {
	if err := ctx.Err(); err != nil {
		return models.CallSummary{}, err
	}
	return Parse(req.Vehicle, req.Transcript), nil
}

// Parse builds a summary from transcript text alone.
func Parse(v models.Vehicle, transcript string) models.CallSummary {
	title := v.Title
	if title == "" {
		title = "vehicle"
	}
	lower := strings.ToLower(transcript)

	available := !containsAny(lower, soldPhrases)
	negotiable := containsAny(lower, negotiablePhrases)
	financing := containsAny(lower, financingPhrases)
	accident := containsAny(lower, accidentPhrases)
	best := bestQuotedPrice(transcript)

	var takeaways []string
	if available {
		takeaways = append(takeaways, title+" is available.")
	} else {
		takeaways = append(takeaways, title+" appears sold or unavailable.")
	}
	if best != nil {
		takeaways = append(takeaways, fmt.Sprintf("Best quoted: $%s.", thousands(int64(*best))))
	}
	if financing {
		takeaways = append(takeaways, "Financing available.")
	}
	if negotiable {
		takeaways = append(takeaways, "Price negotiable.")
	} else {
		takeaways = append(takeaways, "Price seems firm.")
	}

	s := models.CallSummary{
		IsAvailable: &available,
		Condition: models.Condition{
			AccidentHistory: strPtr("none reported"),
			Notes:           "Parsed from transcript",
		},
		Pricing: models.Pricing{
			ListedPrice:     v.Price,
			BestQuotedPrice: best,
			IsNegotiable:    negotiable,
		},
		Financing: models.Financing{Available: financing},
		DealerImpression: models.DealerImpression{
			Responsiveness:    "unknown",
			WillingnessToDeal: "low",
		},
		RedFlags:       []string{},
		KeyTakeaways:   strings.Join(takeaways, " "),
		Recommendation: models.RecommendationSkip,
	}
	if available {
		s.Recommendation = models.RecommendationWorthVisiting
	}
	if negotiable {
		s.DealerImpression.WillingnessToDeal = "medium"
	}
	if accident {
		s.Condition.AccidentHistory = strPtr("mentioned in call")
		s.RedFlags = append(s.RedFlags, "Accident history mentioned")
	}
	if strings.Contains(lower, "clean title") {
		s.Condition.TitleStatus = strPtr("clean")
	}
	if best != nil {
		otd := *best + outTheDoorMarkup
		s.Pricing.OutTheDoorPrice = &otd
	}
	return s
}

// bestQuotedPrice returns the first dollar amount on the last line that
// reads like an offer.
func bestQuotedPrice(transcript string) *float64 {
	var best *float64
	for _, line := range strings.Split(transcript, "\n") {
		if !containsAny(strings.ToLower(line), offerPhrases) {
			continue
		}
		m := dollarAmount.FindString(line)
		if m == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.NewReplacer("$", "", ",", "").Replace(m), 64)
		if err != nil || n <= 0 {
			continue
		}
		best = &n
	}
	return best
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func thousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func strPtr(s string) *string { return &s }

var _ models.SummaryProvider = (*Provider)(nil)
