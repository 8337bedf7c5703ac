package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/platform/logger"
	"github.com/pathwise/pathwise-api/internal/store"
)

// PostgresGuideStore implements the store.GuideStore interface
// using a PostgreSQL database as the storage backend. Sections are a
// jsonb column written one key at a time so each pipeline stage's output
// becomes visible the moment it lands.
type PostgresGuideStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresGuideStore creates a new PostgreSQL implementation of the
// GuideStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresGuideStore(db store.DBTX, logger *slog.Logger) *PostgresGuideStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresGuideStore{
		db:     db,
		logger: logger.With(slog.String("component", "guide_store")),
	}
}

// Ensure PostgresGuideStore implements store.GuideStore interface
var _ store.GuideStore = (*PostgresGuideStore)(nil)

// WithTx returns a new PostgresGuideStore that uses the provided transaction.
func (s *PostgresGuideStore) WithTx(tx *sql.Tx) store.GuideStore {
	return &PostgresGuideStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.GuideStore.Create
func (s *PostgresGuideStore) Create(ctx context.Context, guide *domain.PrepGuide) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := guide.Validate(); err != nil {
		log.Warn("guide validation failed during create",
			slog.String("error", err.Error()),
			slog.String("guide_id", guide.ID.String()))
		return err
	}

	sections, err := json.Marshal(guide.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal guide sections: %w", err)
	}

	query := `
		INSERT INTO prep_guides (id, user_id, application_id, company_name, role_title, job_description,
			status, progress, current_step, sections, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		guide.ID,
		guide.UserID,
		guide.ApplicationID,
		guide.CompanyName,
		guide.RoleTitle,
		guide.JobDescription,
		guide.Status,
		guide.Progress,
		guide.CurrentStep,
		sections,
		guide.CreatedAt,
		guide.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create guide",
			slog.String("error", err.Error()),
			slog.String("guide_id", guide.ID.String()))
		return MapError(err)
	}

	return nil
}

// GetByID implements store.GuideStore.GetByID
func (s *PostgresGuideStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.PrepGuide, error) {
	query := `
		SELECT id, user_id, application_id, company_name, role_title, job_description,
			status, progress, current_step, sections, error_message, created_at, updated_at
		FROM prep_guides
		WHERE id = $1
	`

	var (
		guide        domain.PrepGuide
		sections     []byte
		currentStep  sql.NullString
		errorMessage sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&guide.ID,
		&guide.UserID,
		&guide.ApplicationID,
		&guide.CompanyName,
		&guide.RoleTitle,
		&guide.JobDescription,
		&guide.Status,
		&guide.Progress,
		&currentStep,
		&sections,
		&errorMessage,
		&guide.CreatedAt,
		&guide.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrGuideNotFound
		}
		return nil, MapError(err)
	}

	guide.CurrentStep = currentStep.String
	guide.Error = errorMessage.String
	guide.Sections = make(map[string]string)
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &guide.Sections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal guide sections: %w", err)
		}
	}

	return &guide, nil
}

// GetStatus implements store.GuideStore.GetStatus
func (s *PostgresGuideStore) GetStatus(ctx context.Context, id uuid.UUID) (domain.GuideStatus, error) {
	var status domain.GuideStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM prep_guides WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrGuideNotFound
		}
		return "", MapError(err)
	}

	return status, nil
}

// SetSection implements store.GuideStore.SetSection
func (s *PostgresGuideStore) SetSection(ctx context.Context, id uuid.UUID, name, content string) error {
	query := `
		UPDATE prep_guides
		SET sections = jsonb_set(COALESCE(sections, '{}'::jsonb), ARRAY[$2], to_jsonb($3::text)),
			updated_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, name, content, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return store.ErrGuideNotFound
	}

	return nil
}

// UpdateProgress implements store.GuideStore.UpdateProgress
func (s *PostgresGuideStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, currentStep string) error {
	query := `
		UPDATE prep_guides
		SET progress = $2, current_step = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, progress, currentStep, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return store.ErrGuideNotFound
	}

	return nil
}

// UpdateStatus implements store.GuideStore.UpdateStatus. Terminal guide
// states are never overwritten; already-written sections always remain.
func (s *PostgresGuideStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.GuideStatus, errMsg string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE prep_guides
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1 AND status NOT IN ` + terminalStatuses
	result, err := s.db.ExecContext(ctx, query, id, status, errMsg, time.Now().UTC())
	if err != nil {
		log.Error("failed to update guide status",
			slog.String("error", err.Error()),
			slog.String("guide_id", id.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		var current string
		scanErr := s.db.QueryRowContext(ctx, `SELECT status FROM prep_guides WHERE id = $1`, id).Scan(&current)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return store.ErrGuideNotFound
		}
		if scanErr != nil {
			return MapError(scanErr)
		}
		return store.ErrTaskFinalized
	}

	return nil
}
