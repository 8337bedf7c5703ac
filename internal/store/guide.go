package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pathwise/pathwise-api/internal/domain"
)

// GuideStore defines the interface for prep-guide persistence.
//
// Sections are independently settable fields: each pipeline stage writes
// its section as soon as it finishes, so partially generated guides are
// observable by design. Terminal status writes follow the same
// no-overwrite rule as tracked tasks.
type GuideStore interface {
	// Create saves a new prep guide.
	Create(ctx context.Context, guide *domain.PrepGuide) error

	// GetByID retrieves a guide by its unique ID.
	// Returns ErrGuideNotFound if the guide does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PrepGuide, error)

	// GetStatus retrieves only the guide's current status. Pipeline
	// cancellation checkpoints use this between stages.
	// Returns ErrGuideNotFound if the guide does not exist.
	GetStatus(ctx context.Context, id uuid.UUID) (domain.GuideStatus, error)

	// SetSection writes one section's content onto the guide document,
	// leaving all other sections untouched.
	// Returns ErrGuideNotFound if the guide does not exist.
	SetSection(ctx context.Context, id uuid.UUID, name, content string) error

	// UpdateProgress writes (progress, currentStep, updatedAt).
	// Returns ErrGuideNotFound if the guide does not exist.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, currentStep string) error

	// UpdateStatus transitions a non-terminal guide to the given status,
	// recording errMsg for failures. Already-written sections remain.
	// Returns ErrTaskFinalized if the guide is already terminal,
	// ErrGuideNotFound if it is gone.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.GuideStatus, errMsg string) error

	// WithTx returns a new GuideStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) GuideStore
}
