package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to the voice bridge service that fronts the carrier and
// speech stack.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	callbackURL string
	client      *http.Client
}

// NewHTTPClient creates a voice bridge client. callbackURL is where the bridge
// posts notifications; it is sent with every call.
func NewHTTPClient(baseURL, apiKey, callbackURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Name() string { return "http" }

func (c *HTTPClient) PlaceCall(ctx context.Context, req PlaceCallRequest) (Handle, error) {
	callback := req.CallbackURL
	if callback == "" {
		callback = c.callbackURL
	}
	body, err := json.Marshal(bridgeCallRequest{
		CallID:       req.CallID,
		ToNumber:     req.To,
		Prompt:       req.Prompt,
		StartMessage: req.Greeting,
		CallbackURL:  callback,
		Metadata:     map[string]string{"vehicle_id": req.VehicleID},
	})
	if err != nil {
		return Handle{}, fmt.Errorf("encoding call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/voice/call", bytes.NewReader(body))
	if err != nil {
		return Handle{}, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Handle{}, classifyError(err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return Handle{}, err
	}

	var out bridgeCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Handle{}, fmt.Errorf("%w: decoding call response: %v", ErrProviderRejected, err)
	}
	if out.Status == "failed" {
		return Handle{}, fmt.Errorf("%w: %s", ErrProviderRejected, out.Error)
	}

	return Handle{CallID: req.CallID, ProviderCallID: out.CallID}, nil
}

func (c *HTTPClient) Hangup(ctx context.Context, callID string) error {
	u := fmt.Sprintf("%s/api/voice/call/%s/hangup", c.baseURL, url.PathEscape(callID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return statusError(resp)
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: bridge not ready (status %d)", ErrProviderUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnreachable, resp.StatusCode, bytes.TrimSpace(msg))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrProviderRejected, resp.StatusCode, bytes.TrimSpace(msg))
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
}

// --- bridge wire types ---

type bridgeCallRequest struct {
	CallID       string            `json:"call_id"`
	ToNumber     string            `json:"to_number"`
	Prompt       string            `json:"prompt"`
	StartMessage string            `json:"start_message"`
	CallbackURL  string            `json:"callback_url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type bridgeCallResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
