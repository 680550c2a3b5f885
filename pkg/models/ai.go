// Package models contains shared data models used across the dealerdial codebase.
package models

import "context"

// SummaryProvider is the core interface that every transcript summarizer implements.
// The outreach dispatcher only ever talks to this interface.
type SummaryProvider interface {
	// Summarize extracts the negotiation-relevant facts from one dealer call.
	Summarize(ctx context.Context, req SummaryRequest) (CallSummary, error)
	// Name returns the provider identifier (e.g., "openai", "heuristic").
	Name() string
}

// SummaryRequest is the input to a summarization call.
type SummaryRequest struct {
	Vehicle    Vehicle
	Transcript string
}
