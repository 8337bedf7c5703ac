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

// PostgresAnalysisStore implements the store.AnalysisStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAnalysisStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAnalysisStore creates a new PostgreSQL implementation of the
// AnalysisStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresAnalysisStore(db store.DBTX, logger *slog.Logger) *PostgresAnalysisStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresAnalysisStore{
		db:     db,
		logger: logger.With(slog.String("component", "analysis_store")),
	}
}

// Ensure PostgresAnalysisStore implements store.AnalysisStore interface
var _ store.AnalysisStore = (*PostgresAnalysisStore)(nil)

// WithTx returns a new PostgresAnalysisStore that uses the provided transaction.
func (s *PostgresAnalysisStore) WithTx(tx *sql.Tx) store.AnalysisStore {
	return &PostgresAnalysisStore{
		db:     tx,
		logger: s.logger,
	}
}

// skillSets is the jsonb representation of the three mutable skill sets.
type skillSets struct {
	Matched []domain.SkillMatch `json:"matched"`
	Partial []domain.SkillMatch `json:"partial"`
	Missing []domain.SkillMatch `json:"missing"`
}

// Create implements store.AnalysisStore.Create. The baseline columns are
// written here, once, and no other method touches them.
func (s *PostgresAnalysisStore) Create(ctx context.Context, analysis *domain.MatchAnalysis) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := analysis.Validate(); err != nil {
		log.Warn("analysis validation failed during create",
			slog.String("error", err.Error()),
			slog.String("analysis_id", analysis.ID.String()))
		return err
	}

	skills, err := json.Marshal(skillSets{
		Matched: analysis.MatchedSkills,
		Partial: analysis.PartialMatches,
		Missing: analysis.MissingSkills,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal skill sets: %w", err)
	}

	experience, err := json.Marshal(analysis.Experience)
	if err != nil {
		return fmt.Errorf("failed to marshal experience match: %w", err)
	}

	query := `
		INSERT INTO match_analyses (id, user_id, resume_id, company_name, job_title,
			score, baseline_score, baseline_total_needed, skills, keyword_density,
			experience_match, optimized_resume, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		analysis.ID,
		analysis.UserID,
		analysis.ResumeID,
		analysis.CompanyName,
		analysis.JobTitle,
		analysis.Score,
		analysis.BaselineScore,
		analysis.BaselineTotalNeeded,
		skills,
		analysis.KeywordDensity,
		experience,
		analysis.OptimizedResume,
		analysis.CreatedAt,
		analysis.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create analysis",
			slog.String("error", err.Error()),
			slog.String("analysis_id", analysis.ID.String()))
		return MapError(err)
	}

	return nil
}

// GetByID implements store.AnalysisStore.GetByID
func (s *PostgresAnalysisStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.MatchAnalysis, error) {
	query := `
		SELECT id, user_id, resume_id, company_name, job_title,
			score, baseline_score, baseline_total_needed, skills, keyword_density,
			experience_match, optimized_resume, created_at, updated_at
		FROM match_analyses
		WHERE id = $1
	`

	var (
		analysis   domain.MatchAnalysis
		skills     []byte
		experience []byte
		optimized  sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&analysis.ID,
		&analysis.UserID,
		&analysis.ResumeID,
		&analysis.CompanyName,
		&analysis.JobTitle,
		&analysis.Score,
		&analysis.BaselineScore,
		&analysis.BaselineTotalNeeded,
		&skills,
		&analysis.KeywordDensity,
		&experience,
		&optimized,
		&analysis.CreatedAt,
		&analysis.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAnalysisNotFound
		}
		return nil, MapError(err)
	}

	analysis.OptimizedResume = optimized.String

	if len(skills) > 0 {
		var sets skillSets
		if err := json.Unmarshal(skills, &sets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skill sets: %w", err)
		}
		analysis.MatchedSkills = sets.Matched
		analysis.PartialMatches = sets.Partial
		analysis.MissingSkills = sets.Missing
	}

	if len(experience) > 0 {
		if err := json.Unmarshal(experience, &analysis.Experience); err != nil {
			return nil, fmt.Errorf("failed to unmarshal experience match: %w", err)
		}
	}

	return &analysis, nil
}

// Update implements store.AnalysisStore.Update. Baseline columns are
// deliberately absent from the statement.
func (s *PostgresAnalysisStore) Update(ctx context.Context, analysis *domain.MatchAnalysis) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	skills, err := json.Marshal(skillSets{
		Matched: analysis.MatchedSkills,
		Partial: analysis.PartialMatches,
		Missing: analysis.MissingSkills,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal skill sets: %w", err)
	}

	query := `
		UPDATE match_analyses
		SET score = $2, skills = $3, optimized_resume = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		analysis.ID,
		analysis.Score,
		skills,
		analysis.OptimizedResume,
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to update analysis",
			slog.String("error", err.Error()),
			slog.String("analysis_id", analysis.ID.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return store.ErrAnalysisNotFound
	}

	return nil
}
