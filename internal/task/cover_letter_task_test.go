package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise-api/internal/domain"
)

func coverLetterTestPayload() coverLetterPayload {
	return coverLetterPayload{
		ApplicationID:  uuid.New(),
		CompanyName:    "Acme",
		RoleTitle:      "Backend Engineer",
		JobDescription: "Go services at scale",
		ResumeText:     "ten years of Go",
	}
}

func TestCoverLetterTask_GeneratesAndStoresDocument(t *testing.T) {
	tasks := NewMockTaskStore()
	guides := NewMockGuideStore()
	invoker := &stubInvoker{response: "Dear hiring team,"}

	userID := uuid.New()
	task, err := NewCoverLetterTask(
		seedProcessingTask(t, tasks, userID, domain.TaskTypeCoverLetter), userID,
		coverLetterTestPayload(),
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
	assert.Equal(t, SectionCoverLetter, doc.CurrentStep)
	assert.Equal(t, "Dear hiring team,", doc.Sections[SectionCoverLetter])
	assert.Equal(t, 1, invoker.callCount())
}

func TestCoverLetterTask_InvokerFailureStoresNothing(t *testing.T) {
	tasks := NewMockTaskStore()
	guides := NewMockGuideStore()
	invoker := &stubInvoker{err: errors.New("provider down")}

	userID := uuid.New()
	task, err := NewCoverLetterTask(
		seedProcessingTask(t, tasks, userID, domain.TaskTypeCoverLetter), userID,
		coverLetterTestPayload(),
		tasks, guides, invoker, testLogger(),
	)
	require.NoError(t, err)

	resultID, err := task.Execute(context.Background())
	require.Error(t, err)
	assert.Nil(t, resultID)
}

func TestCoverLetterTask_DeletedTaskRowCancels(t *testing.T) {
	tasks := NewMockTaskStore()
	guides := NewMockGuideStore()
	invoker := &stubInvoker{response: "Dear hiring team,"}

	userID := uuid.New()
	task, err := NewCoverLetterTask(
		seedProcessingTask(t, tasks, userID, domain.TaskTypeCoverLetter), userID,
		coverLetterTestPayload(),
		tasks, guides, invoker, testLogger(),
	)
	require.NoError(t, err)

	require.NoError(t, tasks.Delete(context.Background(), task.ID()))

	resultID, err := task.Execute(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, resultID)
	assert.Equal(t, 0, invoker.callCount())
}

func TestCoverLetterTask_RejectsIncompletePayload(t *testing.T) {
	tasks := NewMockTaskStore()
	guides := NewMockGuideStore()
	invoker := &stubInvoker{}

	missingApplication := coverLetterTestPayload()
	missingApplication.ApplicationID = uuid.Nil
	_, err := NewCoverLetterTask(uuid.New(), uuid.New(), missingApplication, tasks, guides, invoker, testLogger())
	require.Error(t, err)

	missingResume := coverLetterTestPayload()
	missingResume.ResumeText = ""
	_, err = NewCoverLetterTask(uuid.New(), uuid.New(), missingResume, tasks, guides, invoker, testLogger())
	require.Error(t, err)
}
