// Package ranking combines pre-call listing scores with post-call summary
// signals into the final ordered recommendation list.
package ranking

import (
	"math"
	"sort"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// Call status values as seen by the ranker.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	ReasonTimeout   = "timeout"
)

// DefaultTopN is the list length when the caller asks for zero or less.
const DefaultTopN = 3

// Outcome is the terminal view of one call task.
type Outcome struct {
	Vehicle       models.Vehicle
	Status        string
	FailureReason string
	Summary       *models.CallSummary
}

var recommendationSignal = map[string]float64{
	models.RecommendationWorthVisiting: 100,
	models.RecommendationNeutral:       50,
	models.RecommendationSkip:          0,
}

// Ranker scores call outcomes.
type Ranker struct {
	weights Weights
}

func New(w Weights) *Ranker {
	return &Ranker{weights: w}
}

// Rank scores every outcome, orders them and returns the first topN with
// dense 1-based ranks. Outcomes not in a terminal status are ranked as
// failed timeouts.
func (r *Ranker) Rank(outcomes []Outcome, topN int) []models.RankedVehicle {
	if topN <= 0 {
		topN = DefaultTopN
	}

	ranked := make([]models.RankedVehicle, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status != StatusCompleted && o.Status != StatusFailed {
			o.Status = StatusFailed
			o.FailureReason = ReasonTimeout
			o.Summary = nil
		}
		ranked = append(ranked, r.rankedVehicle(o))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		switch {
		case a.DistanceMiles != nil && b.DistanceMiles != nil:
			if *a.DistanceMiles != *b.DistanceMiles {
				return *a.DistanceMiles < *b.DistanceMiles
			}
		case a.DistanceMiles != nil:
			return true
		case b.DistanceMiles != nil:
			return false
		}
		return a.VehicleID < b.VehicleID
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Score computes the final score of one outcome.
func (r *Ranker) Score(o Outcome) float64 {
	w := r.weights
	base := o.Vehicle.PreCallScore

	s := o.Summary
	if o.Status != StatusCompleted {
		s = nil
	}
	if s == nil {
		return round2(clamp(base * w.FailedFactor))
	}
	if s.Unavailable() {
		return 0
	}

	score := w.Base*base + w.Price*r.priceSignal(s) + w.Dealer*r.dealerSignal(s)
	return round2(clamp(score))
}

func (r *Ranker) priceSignal(s *models.CallSummary) float64 {
	w := r.weights
	listed := s.Pricing.ListedPrice
	best := s.Pricing.BestQuotedPrice
	if best == nil || listed <= 0 || *best >= listed {
		return w.NeutralPrice
	}
	discount := (listed - *best) / listed
	return math.Min(100, w.NeutralPrice+discount*w.DiscountScale)
}

func (r *Ranker) dealerSignal(s *models.CallSummary) float64 {
	w := r.weights
	signal, ok := recommendationSignal[s.Recommendation]
	if !ok {
		signal = recommendationSignal[models.RecommendationNeutral]
	}
	penalty := math.Min(w.RedFlagCap, w.RedFlagStep*float64(len(s.RedFlags)))
	return math.Max(0, signal-penalty)
}

func (r *Ranker) rankedVehicle(o Outcome) models.RankedVehicle {
	v := o.Vehicle
	rv := models.RankedVehicle{
		VehicleID:     v.VehicleID,
		Title:         v.Title,
		Year:          v.Year,
		Make:          v.Make,
		Model:         v.Model,
		Price:         v.Price,
		Mileage:       v.Mileage,
		DealerName:    v.DealerName,
		DealerPhone:   v.DealerPhone,
		DistanceMiles: v.DistanceMiles,
		ListingURL:    v.ListingURL,
		ImageURLs:     nonNil(v.ImageURLs),
		Features:      nonNil(v.Features),
		PreCallScore:  v.PreCallScore,
		FinalScore:    r.Score(o),
		CallStatus:    o.Status,
		FailureReason: o.FailureReason,
	}
	if o.Status == StatusCompleted {
		rv.CallSummary = o.Summary
	}
	return rv
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
