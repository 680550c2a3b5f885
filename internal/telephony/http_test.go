package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- helpers ---

func bridgeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	return NewHTTPClient(baseURL, "secret", "https://dealerdial.test/api/v1/telephony/events", 5*time.Second)
}

// --- PlaceCall tests ---

func TestPlaceCall_Accepted(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/voice/call" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header: %q", got)
		}

		var body bridgeCallRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body.CallID != "call-1" || body.ToNumber != "+16502530000" {
			t.Errorf("unexpected body: %+v", body)
		}
		if body.CallbackURL != "https://dealerdial.test/api/v1/telephony/events" {
			t.Errorf("callback url not defaulted: %q", body.CallbackURL)
		}
		if body.Metadata["vehicle_id"] != "v1" {
			t.Errorf("missing vehicle metadata: %+v", body.Metadata)
		}

		json.NewEncoder(w).Encode(bridgeCallResponse{CallID: "CA123", Status: "initiating"})
	})
	defer ts.Close()

	h, err := newTestClient(t, ts.URL).PlaceCall(context.Background(), PlaceCallRequest{
		CallID:    "call-1",
		VehicleID: "v1",
		To:        "+16502530000",
		Prompt:    "be polite",
		Greeting:  "Hi there!",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.CallID != "call-1" || h.ProviderCallID != "CA123" {
		t.Errorf("unexpected handle: %+v", h)
	}
}

func TestPlaceCall_ClientErrorIsRejected(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad number", http.StatusUnprocessableEntity)
	})
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).PlaceCall(context.Background(), PlaceCallRequest{CallID: "c"})
	if !errors.Is(err, ErrProviderRejected) {
		t.Errorf("expected ErrProviderRejected, got %v", err)
	}
}

func TestPlaceCall_ServerErrorIsUnreachable(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "twilio not configured", http.StatusServiceUnavailable)
	})
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).PlaceCall(context.Background(), PlaceCallRequest{CallID: "c"})
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Errorf("expected ErrProviderUnreachable, got %v", err)
	}
}

func TestPlaceCall_FailedStatusInBody(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bridgeCallResponse{Status: "failed", Error: "carrier refused"})
	})
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).PlaceCall(context.Background(), PlaceCallRequest{CallID: "c"})
	if !errors.Is(err, ErrProviderRejected) {
		t.Errorf("expected ErrProviderRejected, got %v", err)
	}
}

func TestPlaceCall_Timeout(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "", "", 20*time.Millisecond)
	_, err := c.PlaceCall(context.Background(), PlaceCallRequest{CallID: "c"})
	if !errors.Is(err, ErrProviderTimeout) {
		t.Errorf("expected ErrProviderTimeout, got %v", err)
	}
}

func TestPlaceCall_Unreachable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "", "", time.Second)
	_, err := c.PlaceCall(context.Background(), PlaceCallRequest{CallID: "c"})
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Errorf("expected ErrProviderUnreachable, got %v", err)
	}
}

// --- Hangup tests ---

func TestHangup_PathAndNotFound(t *testing.T) {
	var gotPath string
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNotFound)
	})
	defer ts.Close()

	if err := newTestClient(t, ts.URL).Hangup(context.Background(), "call-1"); err != nil {
		t.Errorf("hangup of a finished call should succeed, got %v", err)
	}
	if gotPath != "/api/voice/call/call-1/hangup" {
		t.Errorf("unexpected path: %s", gotPath)
	}
}

// --- Ready tests ---

func TestReady(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ready" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	defer ts.Close()

	if err := newTestClient(t, ts.URL).Ready(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReady_NotReady(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer ts.Close()

	err := newTestClient(t, ts.URL).Ready(context.Background())
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Errorf("expected ErrProviderUnreachable, got %v", err)
	}
}

// --- classifyError ---

func TestClassifyError_ContextErrors(t *testing.T) {
	if err := classifyError(context.DeadlineExceeded); !errors.Is(err, ErrProviderTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
	if err := classifyError(errors.New("other")); !errors.Is(err, ErrProviderUnreachable) {
		t.Errorf("expected unreachable, got %v", err)
	}
}

func TestDollars(t *testing.T) {
	cases := map[float64]string{0: "$0", 999: "$999", 1000: "$1,000", 20240: "$20,240", 1234567: "$1,234,567"}
	for in, want := range cases {
		if got := dollars(in); got != want {
			t.Errorf("dollars(%v) = %q, want %q", in, got, want)
		}
	}
}
