package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/dealerdial/internal/ai"
	"github.com/kiranshivaraju/dealerdial/internal/ai/heuristic"
	"github.com/kiranshivaraju/dealerdial/internal/api/handler"
	mw "github.com/kiranshivaraju/dealerdial/internal/api/middleware"
	"github.com/kiranshivaraju/dealerdial/internal/outreach"
	"github.com/kiranshivaraju/dealerdial/internal/ranking"
	"github.com/kiranshivaraju/dealerdial/internal/store"
	"github.com/kiranshivaraju/dealerdial/internal/telephony"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// --- run store fake ---

type runStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	vehicles map[uuid.UUID][]models.Vehicle
	runs     map[uuid.UUID]*models.AnalysisRunRecord
	records  map[uuid.UUID][]models.CallRecord
}

func newRunStore() *runStore {
	return &runStore{
		sessions: map[uuid.UUID]*models.Session{},
		vehicles: map[uuid.UUID][]models.Vehicle{},
		runs:     map[uuid.UUID]*models.AnalysisRunRecord{},
		records:  map[uuid.UUID][]models.CallRecord{},
	}
}

func (s *runStore) addSession(accountID uuid.UUID, vs []models.Vehicle) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.sessions[id] = &models.Session{ID: id, AccountID: accountID, Phase: "shortlist"}
	s.vehicles[id] = vs
	return id
}

func (s *runStore) latestStatus(sessionID uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.SessionID == sessionID {
			return r.Status
		}
	}
	return ""
}

func (s *runStore) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *runStore) ListShortlistedVehicles(_ context.Context, id uuid.UUID) ([]models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vehicles[id], nil
}

func (s *runStore) UpdateSessionPhase(_ context.Context, id uuid.UUID, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Phase = phase
	}
	return nil
}

func (s *runStore) CreateAnalysisRun(_ context.Context, run *models.AnalysisRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *runStore) FinishAnalysisRun(_ context.Context, id uuid.UUID, status string, opts ...store.RunUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	u := store.NewRunUpdate(opts...)
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.ErrorMessage = u.ErrorMessage
	run.TopN = u.TopN
	return nil
}

func (s *runStore) GetLatestAnalysisRun(_ context.Context, sessionID uuid.UUID) (*models.AnalysisRunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.SessionID == sessionID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *runStore) SaveCallRecords(_ context.Context, records []models.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.RunID] = append(s.records[r.RunID], r)
	}
	return nil
}

func (s *runStore) ListCallRecords(_ context.Context, runID uuid.UUID) ([]models.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[runID], nil
}

// --- service harness ---

type analyzeEnv struct {
	svc     *outreach.Service
	store   *runStore
	account uuid.UUID
	handler http.Handler
}

func quickDealer(req telephony.PlaceCallRequest) telephony.Outcome {
	return telephony.Outcome{
		Transcript: fmt.Sprintf("Dealer: Yes, the %s is still available. Best price is $19,500. Clean title, no accidents. We offer financing.", req.Title),
		Duration:   75,
	}
}

func silentDealer(telephony.PlaceCallRequest) telephony.Outcome {
	return telephony.Outcome{Silent: true}
}

func newAnalyzeEnv(t *testing.T, script telephony.ScriptFunc, opts ...func(*outreach.ServiceConfig)) *analyzeEnv {
	t.Helper()
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(script))
	d := outreach.NewDispatcher(client, router, ai.NewSummarizer(heuristic.New(), time.Second), nil,
		outreach.DispatcherConfig{Concurrency: 2, TaskTimeout: 5 * time.Second, CancelGrace: time.Second, Region: "US"})

	env := &analyzeEnv{store: newRunStore(), account: uuid.New()}
	cfg := outreach.ServiceConfig{
		RunDeadline:    10 * time.Second,
		CancelGrace:    time.Second,
		PublishTimeout: time.Second,
		StreamBuffer:   64,
		TopN:           3,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	env.svc = outreach.NewService(env.store, client, d, ranking.New(ranking.DefaultWeights()), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.svc.Shutdown(ctx)
	})

	env.handler = withAccount(env.account, analyzeRoutes(handler.NewAnalyzeHandler(env.svc, 50*time.Millisecond)))
	return env
}

// brokenPipeWriter accepts headers and flushes but fails every body write,
// like a client that has gone away.
type brokenPipeWriter struct {
	header http.Header
}

func (w *brokenPipeWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *brokenPipeWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func (w *brokenPipeWriter) WriteHeader(int) {}

func (w *brokenPipeWriter) Flush() {}

func analyzeRoutes(h *handler.AnalyzeHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/sessions/{sessionID}/analyze", h.Trigger)
	r.Get("/sessions/{sessionID}/analyze", h.Status)
	r.Delete("/sessions/{sessionID}/analyze", h.Cancel)
	return r
}

// withAccount stands in for the auth middleware.
func withAccount(accountID uuid.UUID, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(mw.SetAccountID(r.Context(), accountID)))
	})
}

func analyzePath(sessionID uuid.UUID) string {
	return "/sessions/" + sessionID.String() + "/analyze"
}

func shortlist(n int) []models.Vehicle {
	out := make([]models.Vehicle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Vehicle{
			VehicleID:    fmt.Sprintf("v%d", i+1),
			Title:        fmt.Sprintf("2019 Honda Civic #%d", i+1),
			Price:        21000 + float64(i)*500,
			DealerName:   fmt.Sprintf("Dealer %d", i+1),
			DealerPhone:  fmt.Sprintf("(650) 253-%04d", i),
			PreCallScore: 70 - float64(i),
			Shortlisted:  true,
		})
	}
	return out
}

// --- response helpers ---

type sseEvent struct {
	Name string
	Data map[string]any
}

// parseEvents splits an event-stream body into frames, skipping comments.
func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.Name != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &cur.Data))
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func names(events []sseEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Name)
	}
	return out
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", w.Body.String())
	return errObj["code"].(string)
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "expected data envelope, got %s", w.Body.String())
	return data
}
