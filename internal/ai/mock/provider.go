package mock

import (
	"context"

	"github.com/kiranshivaraju/dealerdial/internal/ai"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// MockProvider satisfies models.SummaryProvider for testing.
type MockProvider struct {
	Name_         string
	SummarizeFunc func(ctx context.Context, req models.SummaryRequest) (models.CallSummary, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Summarize(ctx context.Context, req models.SummaryRequest) (models.CallSummary, error) {
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, req)
	}
	return models.CallSummary{}, nil
}

// NewMockProvider returns a MockProvider that reports every vehicle as
// available with a modest discount.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		SummarizeFunc: func(_ context.Context, req models.SummaryRequest) (models.CallSummary, error) {
			available := true
			best := req.Vehicle.Price * 0.95
			return models.CallSummary{
				IsAvailable: &available,
				Pricing: models.Pricing{
					ListedPrice:     req.Vehicle.Price,
					BestQuotedPrice: &best,
					IsNegotiable:    true,
				},
				Financing:        models.Financing{Available: true},
				DealerImpression: models.DealerImpression{Responsiveness: "helpful", WillingnessToDeal: "high"},
				RedFlags:         []string{},
				KeyTakeaways:     "Mock summary for testing",
				Recommendation:   models.RecommendationWorthVisiting,
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		SummarizeFunc: func(_ context.Context, _ models.SummaryRequest) (models.CallSummary, error) {
			return models.CallSummary{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		SummarizeFunc: func(ctx context.Context, _ models.SummaryRequest) (models.CallSummary, error) {
			<-ctx.Done()
			return models.CallSummary{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements SummaryProvider.
var _ models.SummaryProvider = (*MockProvider)(nil)
