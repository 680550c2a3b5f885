package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/dealerdial/internal/ai/openai"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

const maxTranscriptBytes = 16000

// Summarizer turns call transcripts into normalized summaries using the
// configured provider under a per-call timeout.
type Summarizer struct {
	provider models.SummaryProvider
	timeout  time.Duration
}

// NewSummarizer creates a Summarizer. For a FallbackProvider the timeout
// bounds the primary attempt only, so the fallback still runs after it.
func NewSummarizer(provider models.SummaryProvider, timeout time.Duration) *Summarizer {
	if fb, ok := provider.(*FallbackProvider); ok && timeout > 0 {
		bounded := *fb
		bounded.primaryTimeout = timeout
		return &Summarizer{provider: &bounded}
	}
	return &Summarizer{provider: provider, timeout: timeout}
}

func (s *Summarizer) Name() string { return s.provider.Name() }

// Summarize extracts a summary for one completed call.
func (s *Summarizer) Summarize(ctx context.Context, transcript string, vehicle models.Vehicle) (*models.CallSummary, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}
	transcript = truncateString(transcript, maxTranscriptBytes)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	summary, err := s.provider.Summarize(ctx, models.SummaryRequest{
		Vehicle:    vehicle,
		Transcript: transcript,
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		case errors.Is(err, openai.ErrMalformedJSON), errors.Is(err, openai.ErrEmptyReply):
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
	}

	Normalize(&summary, vehicle)
	return &summary, nil
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
