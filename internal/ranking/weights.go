package ranking

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights parameterizes the final score.
type Weights struct {
	Base   float64 `yaml:"base"`
	Price  float64 `yaml:"price"`
	Dealer float64 `yaml:"dealer"`

	// FailedFactor scales the pre-call score when no summary exists.
	FailedFactor float64 `yaml:"failed_factor"`
	RedFlagStep  float64 `yaml:"red_flag_step"`
	RedFlagCap   float64 `yaml:"red_flag_cap"`
	// NeutralPrice is the price signal when no discount was quoted.
	NeutralPrice float64 `yaml:"neutral_price"`
	// DiscountScale converts a discount fraction into signal points.
	DiscountScale float64 `yaml:"discount_scale"`
}

// DefaultWeights returns the stock scoring parameters.
func DefaultWeights() Weights {
	return Weights{
		Base:          0.5,
		Price:         0.25,
		Dealer:        0.25,
		FailedFactor:  0.8,
		RedFlagStep:   10,
		RedFlagCap:    30,
		NeutralPrice:  50,
		DiscountScale: 500,
	}
}

// LoadWeights reads weights from a YAML file. Keys absent from the file keep
// their default values.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("reading ranking weights: %w", err)
	}
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return Weights{}, fmt.Errorf("parsing ranking weights: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// Validate checks that the weights are non-negative and form a convex blend.
func (w Weights) Validate() error {
	fields := map[string]float64{
		"base":           w.Base,
		"price":          w.Price,
		"dealer":         w.Dealer,
		"failed_factor":  w.FailedFactor,
		"red_flag_step":  w.RedFlagStep,
		"red_flag_cap":   w.RedFlagCap,
		"neutral_price":  w.NeutralPrice,
		"discount_scale": w.DiscountScale,
	}
	for name, v := range fields {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("ranking weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Base + w.Price + w.Dealer; math.Abs(sum-1) > 0.001 {
		return fmt.Errorf("ranking weights base+price+dealer must sum to 1, got %.3f", sum)
	}
	if w.FailedFactor > 1 {
		return fmt.Errorf("ranking weight failed_factor must be at most 1, got %v", w.FailedFactor)
	}
	return nil
}
