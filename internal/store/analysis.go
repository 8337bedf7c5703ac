package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pathwise/pathwise-api/internal/domain"
)

// AnalysisStore defines the interface for match-analysis persistence.
type AnalysisStore interface {
	// Create saves a new match analysis, including the baseline fields
	// captured at first scoring. Baselines are written once here and
	// never updated afterwards.
	Create(ctx context.Context, analysis *domain.MatchAnalysis) error

	// GetByID retrieves an analysis by its unique ID.
	// Returns ErrAnalysisNotFound if the analysis does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MatchAnalysis, error)

	// Update saves the mutable portions of an analysis: the three skill
	// sets, the current score, and the optimized resume text. Baseline
	// columns are deliberately excluded from the update.
	// Returns ErrAnalysisNotFound if the analysis does not exist.
	Update(ctx context.Context, analysis *domain.MatchAnalysis) error

	// WithTx returns a new AnalysisStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) AnalysisStore
}
