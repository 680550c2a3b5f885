package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid run status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultAccount(ctx context.Context) (*models.Account, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, accountID uuid.UUID) error

	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateSessionPhase(ctx context.Context, id uuid.UUID, phase string) error

	SaveVehicles(ctx context.Context, vehicles []models.Vehicle) error
	ListShortlistedVehicles(ctx context.Context, sessionID uuid.UUID) ([]models.Vehicle, error)

	CreateAnalysisRun(ctx context.Context, run *models.AnalysisRunRecord) error
	FinishAnalysisRun(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error
	GetLatestAnalysisRun(ctx context.Context, sessionID uuid.UUID) (*models.AnalysisRunRecord, error)

	SaveCallRecords(ctx context.Context, records []models.CallRecord) error
	ListCallRecords(ctx context.Context, runID uuid.UUID) ([]models.CallRecord, error)
}

// RunUpdate holds the optional fields written when a run finishes.
type RunUpdate struct {
	ErrorMessage *string
	TopN         []models.RankedVehicle
}

type RunUpdateOption func(*RunUpdate)

// NewRunUpdate applies opts to an empty RunUpdate.
func NewRunUpdate(opts ...RunUpdateOption) RunUpdate {
	var u RunUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithErrorMessage(msg string) RunUpdateOption {
	return func(u *RunUpdate) {
		u.ErrorMessage = &msg
	}
}

// WithTopN stores the final ranking alongside the run.
func WithTopN(top []models.RankedVehicle) RunUpdateOption {
	return func(u *RunUpdate) {
		u.TopN = top
	}
}
