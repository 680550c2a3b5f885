package ai

import (
	"fmt"

	"github.com/kiranshivaraju/dealerdial/internal/ai/heuristic"
	"github.com/kiranshivaraju/dealerdial/internal/ai/openai"
	"github.com/kiranshivaraju/dealerdial/internal/config"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// NewProvider constructs the summary provider selected by config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.SummaryProvider, error) {
	switch cfg.Provider {
	case "openai":
		var p models.SummaryProvider = openai.NewProvider(cfg.OpenAI)
		if cfg.FallbackHeuristic {
			p = NewFallback(p, heuristic.New())
		}
		return p, nil
	case "heuristic":
		return heuristic.New(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, heuristic", cfg.Provider)
	}
}
