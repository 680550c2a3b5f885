// Package openai summarizes dealer calls with any OpenAI-compatible chat
// completions endpoint (OpenAI itself, Ollama, vLLM) selected by base URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kiranshivaraju/dealerdial/internal/config"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// Errors returned by Summarize, classified so callers can tell outages from
// bad replies.
var (
	ErrUnavailable = errors.New("openai endpoint unavailable")
	ErrEmptyReply  = errors.New("openai returned no choices")
)

// Provider implements models.SummaryProvider using chat completions.
type Provider struct {
	client sdk.Client
	model  string
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &Provider{
		client: sdk.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Summarize(ctx context.Context, req models.SummaryRequest) (models.CallSummary, error) {
	resp, err := p.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(p.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(BuildPrompt(req.Vehicle, req.Transcript)),
		},
		Temperature: sdk.Float(0.1),
	})
	if err != nil {
		return models.CallSummary{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return models.CallSummary{}, ErrEmptyReply
	}
	return ParseSummary(resp.Choices[0].Message.Content)
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: status %d", ErrUnavailable, apiErr.StatusCode)
		}
		return fmt.Errorf("openai request rejected: status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

var _ models.SummaryProvider = (*Provider)(nil)
