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

func TestOptimizeResumeTask_PersistsOptimizedText(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()
	analysis := seedAnalysis(t, analyses, 47, 47, 4)

	invoker := &stubInvoker{response: "A much better resume."}

	task, err := NewOptimizeResumeTask(
		seedProcessingTask(t, tasks, analysis.UserID, domain.TaskTypeOptimizeResume), analysis.UserID,
		optimizePayload{
			AnalysisID:     analysis.ID,
			ResumeText:     "original resume",
			JobDescription: "job description",
		},
		tasks, analyses, invoker, testLogger(),
	)
	require.NoError(t, err)

	resultID, err := task.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resultID)
	assert.Equal(t, analysis.ID, *resultID)

	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, "A much better resume.", stored.OptimizedResume)

	// Score and baselines untouched by optimization.
	assert.Equal(t, 47, stored.Score)
	assert.Equal(t, 47, stored.BaselineScore)
}

func TestOptimizeResumeTask_MissingAnalysis(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()

	userID := uuid.New()
	task, err := NewOptimizeResumeTask(
		seedProcessingTask(t, tasks, userID, domain.TaskTypeOptimizeResume), userID,
		optimizePayload{
			AnalysisID:     uuid.New(),
			ResumeText:     "resume",
			JobDescription: "jd",
		},
		tasks, analyses, &stubInvoker{response: "x"}, testLogger(),
	)
	require.NoError(t, err)

	_, err = task.Execute(context.Background())
	assert.ErrorIs(t, err, store.ErrAnalysisNotFound)
}

func TestOptimizeResumeTask_DeletedTaskRowCancels(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()
	analysis := seedAnalysis(t, analyses, 47, 47, 4)

	invoker := &stubInvoker{response: "A much better resume."}
	task, err := NewOptimizeResumeTask(
		seedProcessingTask(t, tasks, analysis.UserID, domain.TaskTypeOptimizeResume), analysis.UserID,
		optimizePayload{
			AnalysisID:     analysis.ID,
			ResumeText:     "original resume",
			JobDescription: "job description",
		},
		tasks, analyses, invoker, testLogger(),
	)
	require.NoError(t, err)

	require.NoError(t, tasks.Delete(context.Background(), task.ID()))

	resultID, err := task.Execute(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, resultID)
	assert.Equal(t, 0, invoker.callCount())

	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.OptimizedResume)
}

func TestOptimizeResumeTask_ForeignAnalysisReadsAsMissing(t *testing.T) {
	tasks := NewMockTaskStore()
	analyses := NewMockAnalysisStore()
	analysis := seedAnalysis(t, analyses, 47, 47, 4)

	// A different user submits the victim's analysis ID.
	attacker := uuid.New()
	invoker := &stubInvoker{response: "overwritten"}
	task, err := NewOptimizeResumeTask(
		seedProcessingTask(t, tasks, attacker, domain.TaskTypeOptimizeResume), attacker,
		optimizePayload{
			AnalysisID:     analysis.ID,
			ResumeText:     "resume",
			JobDescription: "jd",
		},
		tasks, analyses, invoker, testLogger(),
	)
	require.NoError(t, err)

	_, err = task.Execute(context.Background())
	assert.ErrorIs(t, err, store.ErrAnalysisNotFound)
	assert.Equal(t, 0, invoker.callCount())

	stored, err := analyses.GetByID(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.OptimizedResume)
}

func TestCoverLetterTask_CreatesDocument(t *testing.T) {
	tasks := NewMockTaskStore()
	guides := NewMockGuideStore()
	invoker := &stubInvoker{response: "Dear hiring team, ..."}

	userID := uuid.New()
	task, err := NewCoverLetterTask(
		seedProcessingTask(t, tasks, userID, domain.TaskTypeCoverLetter), userID,
		coverLetterPayload{
			ApplicationID:  uuid.New(),
			CompanyName:    "Acme",
			RoleTitle:      "Backend Engineer",
			JobDescription: "build services",
			ResumeText:     "resume text",
		},
		tasks, guides, invoker, testLogger(),
	)
	require.NoError(t, err)

	resultID, err := task.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resultID)

	doc, err := guides.GetByID(context.Background(), *resultID)
	require.NoError(t, err)
	assert.Equal(t, domain.GuideStatusCompleted, doc.Status)
	assert.Equal(t, 100, doc.Progress)
	assert.Equal(t, "Dear hiring team, ...", doc.Sections[SectionCoverLetter])
	assert.Len(t, doc.Sections, 1)
}

func TestCoverLetterTask_GenerationFailure(t *testing.T) {
	tasks := NewMockTaskStore()
	guides := NewMockGuideStore()
	invoker := &stubInvoker{err: errStub}

	userID := uuid.New()
	task, err := NewCoverLetterTask(
		seedProcessingTask(t, tasks, userID, domain.TaskTypeCoverLetter), userID,
		coverLetterPayload{
			ApplicationID: uuid.New(),
			CompanyName:   "Acme",
			ResumeText:    "resume",
		},
		tasks, guides, invoker, testLogger(),
	)
	require.NoError(t, err)

	_, err = task.Execute(context.Background())
	assert.ErrorIs(t, err, errStub)
}
