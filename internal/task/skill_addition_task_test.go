package task

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/store"
)

func seedAnalysis(t *testing.T, analyses *MockAnalysisStore, score, baseline, baselineTotal int) *domain.MatchAnalysis {
	t.Helper()

	analysis, err := domain.NewMatchAnalysis(uuid.New(), uuid.New(), "Acme", "Backend Engineer")
	require.NoError(t, err)

	analysis.Score = score
	analysis.BaselineScore = baseline
	analysis.BaselineTotalNeeded = baselineTotal
	analysis.MissingSkills = []domain.SkillMatch{
		{Name: "Terraform", Importance: domain.SkillImportanceCritical, Confidence: 0.8},
		{Name: "gRPC", Importance: domain.SkillImportanceHigh, Confidence: 0.7},
	}
	analysis.PartialMatches = []domain.SkillMatch{
		{Name: "Kubernetes", Importance: domain.SkillImportanceHigh, Confidence: 0.6},
	}

	require.NoError(t, analyses.Create(context.Background(), analysis))
	return analysis
}

func TestSkillAdditionTask_CalibratedIncrease(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()

	// Baseline 60 across 3 needed skills: per-skill gain 13.33.
	// floor(65 + 13.33) = 78.
	analysis := seedAnalysis(t, analyses, 65, 60, 3)

	task, err := NewSkillAdditionTask(
		seedProcessingTask(t, tasks, analysis.UserID, domain.TaskTypeAddSkill), analysis.UserID,
		skillAdditionPayload{AnalysisID: analysis.ID, SkillName: "Terraform"},
		tasks, analyses, testLogger(),
	)
	require.NoError(t, err)

	resultID, err := task.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resultID)
	assert.Equal(t, analysis.ID, *resultID)

	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, 78, stored.Score)

	// Baselines are read-only to skill additions.
	assert.Equal(t, 60, stored.BaselineScore)
	assert.Equal(t, 3, stored.BaselineTotalNeeded)

	// The skill moved from missing to matched.
	require.Len(t, stored.MatchedSkills, 1)
	assert.Equal(t, "Terraform", stored.MatchedSkills[0].Name)
	assert.Len(t, stored.MissingSkills, 1)
}

func TestSkillAdditionTask_MovesPartialMatch(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()
	analysis := seedAnalysis(t, analyses, 50, 50, 4)

	task, err := NewSkillAdditionTask(
		seedProcessingTask(t, tasks, analysis.UserID, domain.TaskTypeAddSkill), analysis.UserID,
		skillAdditionPayload{AnalysisID: analysis.ID, SkillName: "Kubernetes"},
		tasks, analyses, testLogger(),
	)
	require.NoError(t, err)

	_, err = task.Execute(context.Background())
	require.NoError(t, err)

	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PartialMatches)
	require.Len(t, stored.MatchedSkills, 1)
	assert.Equal(t, "Kubernetes", stored.MatchedSkills[0].Name)
	assert.Greater(t, stored.Score, 50)
}

func TestSkillAdditionTask_UnknownSkill(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()
	analysis := seedAnalysis(t, analyses, 65, 60, 3)

	task, err := NewSkillAdditionTask(
		seedProcessingTask(t, tasks, analysis.UserID, domain.TaskTypeAddSkill), analysis.UserID,
		skillAdditionPayload{AnalysisID: analysis.ID, SkillName: "COBOL"},
		tasks, analyses, testLogger(),
	)
	require.NoError(t, err)

	_, err = task.Execute(context.Background())
	assert.ErrorIs(t, err, domain.ErrSkillNotFound)

	// Nothing persisted.
	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, 65, stored.Score)
}

func TestSkillAdditionTask_StrictIncreaseNearCeiling(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()

	// Tiny per-skill gain that floors to no increase still moves the
	// score up by one.
	analysis := seedAnalysis(t, analyses, 99, 20, 100)

	task, err := NewSkillAdditionTask(
		seedProcessingTask(t, tasks, analysis.UserID, domain.TaskTypeAddSkill), analysis.UserID,
		skillAdditionPayload{AnalysisID: analysis.ID, SkillName: "gRPC"},
		tasks, analyses, testLogger(),
	)
	require.NoError(t, err)

	_, err = task.Execute(context.Background())
	require.NoError(t, err)

	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.Score)
}

func TestSkillAdditionTask_DeletedTaskRowCancels(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()
	analysis := seedAnalysis(t, analyses, 65, 60, 3)

	task, err := NewSkillAdditionTask(
		seedProcessingTask(t, tasks, analysis.UserID, domain.TaskTypeAddSkill), analysis.UserID,
		skillAdditionPayload{AnalysisID: analysis.ID, SkillName: "Terraform"},
		tasks, analyses, testLogger(),
	)
	require.NoError(t, err)

	require.NoError(t, tasks.Delete(context.Background(), task.ID()))

	resultID, err := task.Execute(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, resultID)

	// The cancelled run leaves the analysis untouched.
	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, 65, stored.Score)
	assert.Len(t, stored.MissingSkills, 2)
}

func TestSkillAdditionTask_ForeignAnalysisReadsAsMissing(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()
	analysis := seedAnalysis(t, analyses, 65, 60, 3)

	// A different user submits the victim's analysis ID.
	attacker := uuid.New()
	task, err := NewSkillAdditionTask(
		seedProcessingTask(t, tasks, attacker, domain.TaskTypeAddSkill), attacker,
		skillAdditionPayload{AnalysisID: analysis.ID, SkillName: "Terraform"},
		tasks, analyses, testLogger(),
	)
	require.NoError(t, err)

	_, err = task.Execute(context.Background())
	assert.ErrorIs(t, err, store.ErrAnalysisNotFound)

	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, 65, stored.Score)
	assert.Len(t, stored.MissingSkills, 2)
}
