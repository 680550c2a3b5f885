package ai

import (
	"strings"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

var recommendationAliases = map[string]string{
	"worth visiting":       models.RecommendationWorthVisiting,
	"worth a visit":        models.RecommendationWorthVisiting,
	"visit":                models.RecommendationWorthVisiting,
	"skip":                 models.RecommendationSkip,
	"avoid":                models.RecommendationSkip,
	"neutral":              models.RecommendationNeutral,
	"proceed with caution": models.RecommendationNeutral,
	"needs more info":      models.RecommendationNeutral,
}

// Normalize coerces provider output onto the values the ranker understands.
// Unknown recommendations become neutral. A best quoted price outside
// (0, listed] is dropped.
func Normalize(s *models.CallSummary, v models.Vehicle) {
	rec := strings.ToLower(strings.TrimSpace(s.Recommendation))
	if canonical, ok := recommendationAliases[rec]; ok {
		s.Recommendation = canonical
	} else {
		s.Recommendation = models.RecommendationNeutral
	}

	if s.Pricing.ListedPrice <= 0 {
		s.Pricing.ListedPrice = v.Price
	}
	if bq := s.Pricing.BestQuotedPrice; bq != nil {
		if *bq <= 0 || (s.Pricing.ListedPrice > 0 && *bq > s.Pricing.ListedPrice) {
			s.Pricing.BestQuotedPrice = nil
		}
	}
	if otd := s.Pricing.OutTheDoorPrice; otd != nil && *otd <= 0 {
		s.Pricing.OutTheDoorPrice = nil
	}

	flags := make([]string, 0, len(s.RedFlags))
	for _, f := range s.RedFlags {
		if f = strings.TrimSpace(f); f != "" {
			flags = append(flags, f)
		}
	}
	s.RedFlags = flags
	s.KeyTakeaways = truncateString(strings.TrimSpace(s.KeyTakeaways), 2000)
}
