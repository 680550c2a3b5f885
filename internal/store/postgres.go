package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Accounts ---

func (s *PostgresStore) GetDefaultAccount(ctx context.Context) (*models.Account, error) {
	var a models.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM accounts WHERE name = 'default' LIMIT 1`,
	).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default account: %w", err)
	}
	return &a, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, account_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.AccountID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE account_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, accountID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND account_id = $2 AND deleted_at IS NULL`, id, accountID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	prefs, err := json.Marshal(session.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, account_id, phase, preferences, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.AccountID, session.Phase, prefs, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var (
		sess  models.Session
		prefs []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, phase, preferences, created_at, updated_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.AccountID, &sess.Phase, &prefs, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &sess.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return &sess, nil
}

func (s *PostgresStore) UpdateSessionPhase(ctx context.Context, id uuid.UUID, phase string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET phase = $2, updated_at = NOW() WHERE id = $1`, id, phase)
	if err != nil {
		return fmt.Errorf("update session phase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Vehicles ---

// SaveVehicles upserts listings by (session_id, vehicle_id) in one batch.
func (s *PostgresStore) SaveVehicles(ctx context.Context, vehicles []models.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, v := range vehicles {
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO vehicles (id, session_id, vehicle_id, title, year, make, model, price, mileage, condition,
			   dealer_name, dealer_phone, distance_miles, listing_url, image_urls, features, pre_call_score, shortlisted, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			 ON CONFLICT (session_id, vehicle_id) DO UPDATE SET
			   title = EXCLUDED.title, year = EXCLUDED.year, make = EXCLUDED.make, model = EXCLUDED.model,
			   price = EXCLUDED.price, mileage = EXCLUDED.mileage, condition = EXCLUDED.condition,
			   dealer_name = EXCLUDED.dealer_name, dealer_phone = EXCLUDED.dealer_phone,
			   distance_miles = EXCLUDED.distance_miles, listing_url = EXCLUDED.listing_url,
			   image_urls = EXCLUDED.image_urls, features = EXCLUDED.features,
			   pre_call_score = EXCLUDED.pre_call_score, shortlisted = EXCLUDED.shortlisted`,
			v.ID, v.SessionID, v.VehicleID, v.Title, v.Year, v.Make, v.Model, v.Price, v.Mileage, v.Condition,
			v.DealerName, v.DealerPhone, v.DistanceMiles, v.ListingURL, nonNil(v.ImageURLs), nonNil(v.Features),
			v.PreCallScore, v.Shortlisted, v.CreatedAt)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save vehicles: %w", err)
	}
	return nil
}

// ListShortlistedVehicles returns the session's shortlist in dispatch order:
// highest pre-call score first.
func (s *PostgresStore) ListShortlistedVehicles(ctx context.Context, sessionID uuid.UUID) ([]models.Vehicle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, vehicle_id, title, year, make, model, price, mileage, condition,
		   dealer_name, dealer_phone, distance_miles, listing_url, image_urls, features, pre_call_score, shortlisted, created_at
		 FROM vehicles WHERE session_id = $1 AND shortlisted
		 ORDER BY pre_call_score DESC, created_at, vehicle_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list shortlisted vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.ID, &v.SessionID, &v.VehicleID, &v.Title, &v.Year, &v.Make, &v.Model,
			&v.Price, &v.Mileage, &v.Condition, &v.DealerName, &v.DealerPhone, &v.DistanceMiles,
			&v.ListingURL, &v.ImageURLs, &v.Features, &v.PreCallScore, &v.Shortlisted, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// --- Analysis Runs ---

func (s *PostgresStore) CreateAnalysisRun(ctx context.Context, run *models.AnalysisRunRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, session_id, account_id, status, total_tasks, started_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.SessionID, run.AccountID, run.Status, run.TotalTasks, run.StartedAt, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create analysis run: %w", err)
	}
	return nil
}

var validTransitions = map[string][]string{
	models.RunStatusRunning: {models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled},
}

func (s *PostgresStore) FinishAnalysisRun(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error {
	params := NewRunUpdate(opts...)

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM analysis_runs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get run status: %w", err)
	}

	allowed := validTransitions[currentStatus]
	valid := false
	for _, a := range allowed {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE analysis_runs SET status = $2, updated_at = $3, completed_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.TopN != nil {
		top, err := json.Marshal(params.TopN)
		if err != nil {
			return fmt.Errorf("encode top n: %w", err)
		}
		query += fmt.Sprintf(", top_n = $%d", argIdx)
		args = append(args, top)
		argIdx++
	}

	query += " WHERE id = $1"

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("finish analysis run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatestAnalysisRun(ctx context.Context, sessionID uuid.UUID) (*models.AnalysisRunRecord, error) {
	var (
		r   models.AnalysisRunRecord
		top []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, account_id, status, total_tasks, top_n, error_message, started_at, completed_at, created_at, updated_at
		 FROM analysis_runs WHERE session_id = $1 ORDER BY started_at DESC LIMIT 1`, sessionID,
	).Scan(&r.ID, &r.SessionID, &r.AccountID, &r.Status, &r.TotalTasks, &top, &r.ErrorMessage,
		&r.StartedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest analysis run: %w", err)
	}
	if len(top) > 0 {
		if err := json.Unmarshal(top, &r.TopN); err != nil {
			return nil, fmt.Errorf("decode top n: %w", err)
		}
	}
	return &r, nil
}

// --- Call Records ---

// SaveCallRecords writes one row per call in a single batch.
func (s *PostgresStore) SaveCallRecords(ctx context.Context, records []models.CallRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		var summary []byte
		if rec.Summary != nil {
			b, err := json.Marshal(rec.Summary)
			if err != nil {
				return fmt.Errorf("encode summary for %s: %w", rec.VehicleID, err)
			}
			summary = b
		}
		batch.Queue(
			`INSERT INTO call_records (id, run_id, session_id, vehicle_id, call_id, dealer_phone, status,
			   failure_reason, transcript, transcript_key, duration_seconds, summary, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			rec.ID, rec.RunID, rec.SessionID, rec.VehicleID, rec.CallID, rec.DealerPhone, rec.Status,
			rec.FailureReason, rec.Transcript, rec.TranscriptKey, rec.DurationSeconds, summary, rec.CreatedAt)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("save call records: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCallRecords(ctx context.Context, runID uuid.UUID) ([]models.CallRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, session_id, vehicle_id, call_id, dealer_phone, status, failure_reason,
		   transcript, transcript_key, duration_seconds, summary, created_at
		 FROM call_records WHERE run_id = $1 ORDER BY created_at, vehicle_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	defer rows.Close()

	var records []models.CallRecord
	for rows.Next() {
		var (
			rec     models.CallRecord
			summary []byte
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.SessionID, &rec.VehicleID, &rec.CallID,
			&rec.DealerPhone, &rec.Status, &rec.FailureReason, &rec.Transcript, &rec.TranscriptKey,
			&rec.DurationSeconds, &summary, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		if len(summary) > 0 {
			rec.Summary = &models.CallSummary{}
			if err := json.Unmarshal(summary, rec.Summary); err != nil {
				return nil, fmt.Errorf("decode summary for %s: %w", rec.VehicleID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Store = (*PostgresStore)(nil)
