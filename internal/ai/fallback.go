package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// FallbackProvider tries primary and, when it fails for any reason other
// than the caller giving up, asks secondary instead.
type FallbackProvider struct {
	primary   models.SummaryProvider
	secondary models.SummaryProvider

	primaryTimeout time.Duration
}

func NewFallback(primary, secondary models.SummaryProvider) *FallbackProvider {
	return &FallbackProvider{primary: primary, secondary: secondary}
}

func (f *FallbackProvider) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *FallbackProvider) Summarize(ctx context.Context, req models.SummaryRequest) (models.CallSummary, error) {
	pctx := ctx
	if f.primaryTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, f.primaryTimeout)
		defer cancel()
	}

	s, err := f.primary.Summarize(pctx, req)
	if err == nil {
		return s, nil
	}
	if ctx.Err() != nil {
		return models.CallSummary{}, err
	}

	slog.Warn("summary provider failed, falling back",
		"provider", f.primary.Name(),
		"fallback", f.secondary.Name(),
		"vehicle_id", req.Vehicle.VehicleID,
		"error", err,
	)
	return f.secondary.Summarize(ctx, req)
}

var _ models.SummaryProvider = (*FallbackProvider)(nil)
