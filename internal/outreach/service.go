package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/dealerdial/internal/archive"
	"github.com/kiranshivaraju/dealerdial/internal/progress"
	"github.com/kiranshivaraju/dealerdial/internal/ranking"
	"github.com/kiranshivaraju/dealerdial/internal/store"
	"github.com/kiranshivaraju/dealerdial/internal/telephony"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyShortlist  = errors.New("session has no shortlisted vehicles")
	ErrRunActive       = errors.New("analysis already running for session")
	ErrNoActiveRun     = errors.New("no active analysis run")
	ErrNoRun           = errors.New("no analysis run for session")
)

const (
	persistTimeout     = 15 * time.Second
	defaultSnapshotTTL = 24 * time.Hour
	defaultRunDeadline = 30 * time.Minute
)

// RunStore is the persistence the service needs.
type RunStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListShortlistedVehicles(ctx context.Context, sessionID uuid.UUID) ([]models.Vehicle, error)
	UpdateSessionPhase(ctx context.Context, id uuid.UUID, phase string) error
	CreateAnalysisRun(ctx context.Context, run *models.AnalysisRunRecord) error
	FinishAnalysisRun(ctx context.Context, id uuid.UUID, status string, opts ...store.RunUpdateOption) error
	GetLatestAnalysisRun(ctx context.Context, sessionID uuid.UUID) (*models.AnalysisRunRecord, error)
	SaveCallRecords(ctx context.Context, records []models.CallRecord) error
	ListCallRecords(ctx context.Context, runID uuid.UUID) ([]models.CallRecord, error)
}

// RunLocker guards the one-run-per-session rule across server instances and
// caches finished run views.
type RunLocker interface {
	AcquireRunLock(ctx context.Context, sessionID uuid.UUID, owner string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, sessionID uuid.UUID, owner string) error
	SetRunSnapshot(ctx context.Context, sessionID uuid.UUID, snapshot []byte, ttl time.Duration) error
	GetRunSnapshot(ctx context.Context, sessionID uuid.UUID) ([]byte, bool, error)
}

// TranscriptArchive keeps a durable copy of each transcript.
type TranscriptArchive interface {
	Archive(ctx context.Context, key, text string) (string, error)
}

// ServiceConfig bounds a run.
type ServiceConfig struct {
	RunDeadline    time.Duration
	CancelGrace    time.Duration
	PublishTimeout time.Duration
	StreamBuffer   int
	TopN           int
	SnapshotTTL    time.Duration
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLocker enables the cross-instance run lock and the snapshot cache.
func WithLocker(l RunLocker) Option {
	return func(s *Service) { s.locker = l }
}

// WithArchive enables transcript archiving.
func WithArchive(a TranscriptArchive) Option {
	return func(s *Service) { s.archive = a }
}

// Service starts, tracks and finishes analysis runs.
type Service struct {
	store      RunStore
	phone      telephony.Client
	dispatcher *Dispatcher
	ranker     *ranking.Ranker
	locker     RunLocker
	archive    TranscriptArchive
	cfg        ServiceConfig

	runs registry
	wg   sync.WaitGroup
}

// NewService creates a Service.
func NewService(st RunStore, client telephony.Client, dispatcher *Dispatcher, ranker *ranking.Ranker, cfg ServiceConfig, opts ...Option) *Service {
	if cfg.TopN <= 0 {
		cfg.TopN = ranking.DefaultTopN
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = defaultSnapshotTTL
	}
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = defaultRunDeadline
	}
	s := &Service{
		store:      st,
		phone:      client,
		dispatcher: dispatcher,
		ranker:     ranker,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the session, claims its run slot and launches a run. The
// returned subscription is attached before the first event is published.
func (s *Service) Start(ctx context.Context, sessionID, accountID uuid.UUID) (*Run, *progress.Subscription, error) {
	sess, err := s.session(ctx, sessionID, accountID)
	if err != nil {
		return nil, nil, err
	}

	vehicles, err := s.store.ListShortlistedVehicles(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load shortlist: %w", err)
	}
	if len(vehicles) == 0 {
		return nil, nil, ErrEmptyShortlist
	}

	tasks := make([]*CallTask, 0, len(vehicles))
	for i, v := range vehicles {
		tasks = append(tasks, NewCallTask(v, BuildScript(v, sess.Preferences), i+1))
	}

	stream := progress.NewStream(
		progress.WithPublishTimeout(s.cfg.PublishTimeout),
		progress.WithBuffer(s.cfg.StreamBuffer),
	)
	run := newRun(sessionID, accountID, tasks, stream)
	runCtx, cancel := context.WithCancel(context.Background())
	run.cancel = cancel

	if err := s.runs.acquire(run); err != nil {
		cancel()
		return nil, nil, err
	}
	if err := s.lock(ctx, run); err != nil {
		s.runs.release(run)
		cancel()
		return nil, nil, err
	}

	now := time.Now().UTC()
	record := &models.AnalysisRunRecord{
		ID:         run.ID,
		SessionID:  sessionID,
		AccountID:  accountID,
		Status:     models.RunStatusRunning,
		TotalTasks: len(tasks),
		StartedAt:  run.StartedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateAnalysisRun(ctx, record); err != nil {
		s.release(run)
		cancel()
		return nil, nil, fmt.Errorf("create analysis run: %w", err)
	}
	if err := s.store.UpdateSessionPhase(ctx, sessionID, models.SessionPhaseCalling); err != nil {
		slog.Warn("failed to update session phase", "session_id", sessionID, "error", err)
	}

	sub, err := stream.Subscribe()
	if err != nil {
		s.release(run)
		cancel()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	slog.Info("analysis run started",
		"run_id", run.ID,
		"session_id", sessionID,
		"vehicles", len(tasks),
	)

	s.wg.Add(1)
	go s.execute(runCtx, run)

	return run, sub, nil
}

// Attach re-subscribes to the session's active run. Any previous subscriber
// is detached.
func (s *Service) Attach(sessionID, accountID uuid.UUID) (*Run, *progress.Subscription, error) {
	run := s.runs.active(sessionID)
	if run == nil || run.AccountID != accountID {
		return nil, nil, ErrNoActiveRun
	}
	sub, err := run.Stream.Subscribe()
	if errors.Is(err, progress.ErrClosed) {
		return nil, nil, ErrNoActiveRun
	}
	if err != nil {
		return nil, nil, err
	}
	return run, sub, nil
}

// Cancel stops the session's active run.
func (s *Service) Cancel(sessionID, accountID uuid.UUID) (*Run, error) {
	run := s.runs.active(sessionID)
	if run == nil || run.AccountID != accountID {
		return nil, ErrNoActiveRun
	}
	slog.Info("analysis run cancelled", "run_id", run.ID, "session_id", sessionID)
	run.Cancel()
	return run, nil
}

// Latest returns the active run's view, or the most recent finished run.
func (s *Service) Latest(ctx context.Context, sessionID, accountID uuid.UUID) (*RunView, error) {
	if _, err := s.session(ctx, sessionID, accountID); err != nil {
		return nil, err
	}

	if run := s.runs.active(sessionID); run != nil {
		v := run.View()
		return &v, nil
	}

	if s.locker != nil {
		b, ok, err := s.locker.GetRunSnapshot(ctx, sessionID)
		if err != nil {
			slog.Warn("run snapshot lookup failed", "session_id", sessionID, "error", err)
		}
		if ok {
			var v RunView
			if err := json.Unmarshal(b, &v); err == nil {
				return &v, nil
			}
			slog.Warn("discarding unreadable run snapshot", "session_id", sessionID, "error", err)
		}
	}

	rec, err := s.store.GetLatestAnalysisRun(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	calls, err := s.store.ListCallRecords(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	return viewFromRecords(rec, calls), nil
}

// Shutdown cancels every active run and waits for them to persist.
func (s *Service) Shutdown(ctx context.Context) error {
	for _, run := range s.runs.all() {
		run.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) session(ctx context.Context, sessionID, accountID uuid.UUID) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.AccountID != accountID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) execute(ctx context.Context, run *Run) {
	defer s.wg.Done()
	defer close(run.done)
	defer s.release(run)

	log := slog.With("run_id", run.ID, "session_id", run.SessionID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in analysis run", "error", r, "stack", string(debug.Stack()))
			run.cancel()
			s.failRun(run, "Analysis failed unexpectedly.")
		}
	}()

	if err := s.phone.Ready(ctx); err != nil {
		if ctx.Err() != nil {
			s.finishCancelled(run)
			return
		}
		log.Error("telephony provider not ready", "provider", s.phone.Name(), "error", err)
		s.failRun(run, fmt.Sprintf("Telephony provider unavailable: %v", err))
		return
	}

	s.publish(run, progress.EventStart, progress.Start{
		TotalVehicles: len(run.Tasks),
		AllVehicles:   run.vehicles(),
		Message:       fmt.Sprintf("Starting calls to %d dealers...", len(run.Tasks)),
	})

	dctx, cancel := context.WithTimeout(ctx, s.cfg.RunDeadline)
	s.dispatcher.Run(dctx, run.Tasks, run.Stream)
	deadlineHit := errors.Is(dctx.Err(), context.DeadlineExceeded)
	cancel()

	if ctx.Err() != nil {
		s.finishCancelled(run)
		return
	}
	if deadlineHit {
		log.Warn("run deadline reached, ranking partial results")
	}

	for _, t := range run.Tasks {
		t.Seal(ReasonTimeout)
	}

	s.publish(run, progress.EventRanking, progress.Ranking{Message: "Analyzing results and ranking vehicles..."})
	top := s.ranker.Rank(run.outcomes(), s.cfg.TopN)

	err := run.Stream.Finish(progress.Event{
		Type: progress.EventComplete,
		Data: progress.Complete{
			Top:          top,
			AllSummaries: run.summaries(),
			Message:      fmt.Sprintf("Analysis complete! Here are your top %d picks.", len(top)),
		},
	})
	// Only Cancel closes the stream early, and it may not have cancelled ctx yet.
	if errors.Is(err, progress.ErrClosed) || (err != nil && ctx.Err() != nil) {
		s.finishCancelled(run)
		return
	}

	run.finish(models.RunStatusCompleted, top, "")
	log.Info("analysis run completed", "top", len(top))
	s.persist(run)
}

func (s *Service) finishCancelled(run *Run) {
	for _, t := range run.Tasks {
		t.Seal(ReasonCancelled)
	}
	run.finish(models.RunStatusCancelled, nil, "")
	s.persist(run)
}

// failRun reports a run-level error and closes the stream without complete.
func (s *Service) failRun(run *Run, msg string) {
	err := run.Stream.Finish(progress.Event{Type: progress.EventError, Data: progress.Error{Message: msg}})
	if err != nil && !errors.Is(err, progress.ErrClosed) {
		slog.Warn("failed to publish run error", "run_id", run.ID, "error", err)
	}
	for _, t := range run.Tasks {
		t.Seal(ReasonProviderError)
	}
	run.finish(models.RunStatusFailed, nil, msg)
	s.persist(run)
}

// persist writes call records, the run row and the snapshot. Failures are
// logged; the run outcome has already been delivered.
func (s *Service) persist(run *Run) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	log := slog.With("run_id", run.ID, "session_id", run.SessionID)
	view := run.View()
	now := time.Now().UTC()

	records := make([]models.CallRecord, 0, len(view.Tasks))
	for _, snap := range view.Tasks {
		rec := models.CallRecord{
			ID:              uuid.New(),
			RunID:           run.ID,
			SessionID:       run.SessionID,
			VehicleID:       snap.VehicleID,
			CallID:          snap.CallID,
			DealerPhone:     snap.DealerPhone,
			Status:          string(snap.Status),
			Transcript:      snap.Transcript,
			DurationSeconds: snap.DurationSeconds,
			Summary:         snap.Summary,
			CreatedAt:       now,
		}
		if snap.FailureReason != "" {
			reason := snap.FailureReason
			rec.FailureReason = &reason
		}
		if s.archive != nil && snap.Transcript != "" {
			key, err := s.archive.Archive(ctx, archive.TranscriptKey(run.ID.String(), snap.VehicleID), snap.Transcript)
			if err != nil {
				log.Warn("transcript archive failed", "vehicle_id", snap.VehicleID, "error", err)
			} else {
				rec.TranscriptKey = &key
			}
		}
		records = append(records, rec)
	}
	if err := s.store.SaveCallRecords(ctx, records); err != nil {
		log.Error("failed to save call records", "error", err)
	}

	var opts []store.RunUpdateOption
	if view.TopN != nil {
		opts = append(opts, store.WithTopN(view.TopN))
	}
	if view.Error != "" {
		opts = append(opts, store.WithErrorMessage(view.Error))
	}
	if err := s.store.FinishAnalysisRun(ctx, run.ID, view.Status, opts...); err != nil {
		log.Error("failed to finish analysis run", "status", view.Status, "error", err)
	}

	if view.Status == models.RunStatusCompleted {
		if err := s.store.UpdateSessionPhase(ctx, run.SessionID, models.SessionPhaseDashboard); err != nil {
			log.Warn("failed to update session phase", "error", err)
		}
	}

	if s.locker != nil {
		b, err := json.Marshal(view)
		if err == nil {
			err = s.locker.SetRunSnapshot(ctx, run.SessionID, b, s.cfg.SnapshotTTL)
		}
		if err != nil {
			log.Warn("failed to cache run snapshot", "error", err)
		}
	}
}

func (s *Service) lock(ctx context.Context, run *Run) error {
	if s.locker == nil {
		return nil
	}
	ok, err := s.locker.AcquireRunLock(ctx, run.SessionID, run.ID.String(), s.lockTTL())
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrRunActive
	}
	return nil
}

func (s *Service) release(run *Run) {
	s.runs.release(run)
	if s.locker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.locker.ReleaseRunLock(ctx, run.SessionID, run.ID.String()); err != nil {
		slog.Warn("failed to release run lock", "run_id", run.ID, "session_id", run.SessionID, "error", err)
	}
}

// lockTTL outlives the longest possible run so a crashed instance's lock
// still expires.
func (s *Service) lockTTL() time.Duration {
	return s.cfg.RunDeadline + s.cfg.CancelGrace + time.Minute
}

func (s *Service) publish(run *Run, typ progress.EventType, data any) {
	err := run.Stream.Publish(progress.Event{Type: typ, Data: data})
	if err != nil && !errors.Is(err, progress.ErrClosed) {
		slog.Warn("progress publish failed", "run_id", run.ID, "event", typ, "error", err)
	}
}

func viewFromRecords(rec *models.AnalysisRunRecord, calls []models.CallRecord) *RunView {
	tasks := make([]TaskSnapshot, 0, len(calls))
	for _, c := range calls {
		snap := TaskSnapshot{
			VehicleID:       c.VehicleID,
			DealerPhone:     c.DealerPhone,
			Status:          Status(c.Status),
			CallID:          c.CallID,
			Transcript:      c.Transcript,
			DurationSeconds: c.DurationSeconds,
			Summary:         c.Summary,
			UpdatedAt:       c.CreatedAt,
		}
		if c.FailureReason != nil {
			snap.FailureReason = *c.FailureReason
		}
		tasks = append(tasks, snap)
	}

	v := &RunView{
		RunID:       rec.ID,
		SessionID:   rec.SessionID,
		Status:      rec.Status,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		Tasks:       tasks,
		TopN:        rec.TopN,
	}
	if rec.ErrorMessage != nil {
		v.Error = *rec.ErrorMessage
	}
	return v
}
