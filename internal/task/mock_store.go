package task

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/store"
)

// MockTaskStore implements store.TaskStore in memory for testing. It
// enforces the same conditional-update semantics as the postgres store:
// claims only from queued, terminal states never overwritten.
type MockTaskStore struct {
	mutex sync.RWMutex
	tasks map[uuid.UUID]*domain.TrackedTask

	// Overridable hooks. When nil, the in-memory default runs.
	ClaimFn func(ctx context.Context, id uuid.UUID) error
	FailFn  func(ctx context.Context, id uuid.UUID, errMsg string) error
}

// NewMockTaskStore creates an empty MockTaskStore.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks: make(map[uuid.UUID]*domain.TrackedTask),
	}
}

// Create implements store.TaskStore.
func (m *MockTaskStore) Create(ctx context.Context, task *domain.TrackedTask) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

// GetByID implements store.TaskStore.
func (m *MockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.TrackedTask, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	task, exists := m.tasks[id]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

// Claim implements store.TaskStore.
func (m *MockTaskStore) Claim(ctx context.Context, id uuid.UUID) error {
	if m.ClaimFn != nil {
		return m.ClaimFn(ctx, id)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, exists := m.tasks[id]
	if !exists || task.Status != domain.TaskStatusQueued {
		return store.ErrTaskNotClaimable
	}
	task.Status = domain.TaskStatusProcessing
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateProgress implements store.TaskStore.
func (m *MockTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, stage string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return store.ErrTaskNotFound
	}
	if task.Status == domain.TaskStatusProcessing {
		task.Progress = progress
		task.Stage = stage
		task.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Complete implements store.TaskStore.
func (m *MockTaskStore) Complete(ctx context.Context, id uuid.UUID, resultID *uuid.UUID) error {
	return m.finalize(id, domain.TaskStatusCompleted, "", resultID)
}

// Fail implements store.TaskStore.
func (m *MockTaskStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	if m.FailFn != nil {
		return m.FailFn(ctx, id, errMsg)
	}
	return m.finalize(id, domain.TaskStatusFailed, errMsg, nil)
}

// Cancel implements store.TaskStore.
func (m *MockTaskStore) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.finalize(id, domain.TaskStatusCancelled, "", nil)
}

// Delete implements store.TaskStore.
func (m *MockTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.tasks[id]; !exists {
		return store.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

// FindByUserAndStatus implements store.TaskStore.
func (m *MockTaskStore) FindByUserAndStatus(ctx context.Context, userID uuid.UUID, statuses ...domain.TaskStatus) ([]*domain.TrackedTask, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	wanted := make(map[domain.TaskStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []*domain.TrackedTask
	for _, task := range m.tasks {
		if task.UserID == userID && wanted[task.Status] {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

// FindStale implements store.TaskStore.
func (m *MockTaskStore) FindStale(ctx context.Context, userID uuid.UUID, olderThan time.Duration) ([]*domain.TrackedTask, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	cutoff := time.Now().UTC().Add(-olderThan)

	var out []*domain.TrackedTask
	for _, task := range m.tasks {
		if task.Status.IsTerminal() {
			continue
		}
		if userID != uuid.Nil && task.UserID != userID {
			continue
		}
		if task.CreatedAt.Before(cutoff) {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

// WithTx implements store.TaskStore. The mock has no transactions.
func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return m
}

func (m *MockTaskStore) finalize(id uuid.UUID, status domain.TaskStatus, errMsg string, resultID *uuid.UUID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return store.ErrTaskNotFound
	}
	if task.Status.IsTerminal() {
		return store.ErrTaskFinalized
	}
	task.Status = status
	task.Error = errMsg
	task.ResultID = resultID
	task.UpdatedAt = time.Now().UTC()
	return nil
}

var _ store.TaskStore = (*MockTaskStore)(nil)

// MockGuideStore implements store.GuideStore in memory for testing.
type MockGuideStore struct {
	mutex  sync.RWMutex
	guides map[uuid.UUID]*domain.PrepGuide

	// SetSectionFn, when non-nil, intercepts SetSection calls.
	SetSectionFn func(ctx context.Context, id uuid.UUID, name, content string) error
}

// NewMockGuideStore creates an empty MockGuideStore.
func NewMockGuideStore() *MockGuideStore {
	return &MockGuideStore{
		guides: make(map[uuid.UUID]*domain.PrepGuide),
	}
}

// Create implements store.GuideStore.
func (m *MockGuideStore) Create(ctx context.Context, guide *domain.PrepGuide) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.guides[guide.ID]; exists {
		return store.ErrDuplicate
	}
	cp := *guide
	cp.Sections = make(map[string]string, len(guide.Sections))
	for k, v := range guide.Sections {
		cp.Sections[k] = v
	}
	m.guides[guide.ID] = &cp
	return nil
}

// GetByID implements store.GuideStore.
func (m *MockGuideStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.PrepGuide, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	guide, exists := m.guides[id]
	if !exists {
		return nil, store.ErrGuideNotFound
	}
	cp := *guide
	cp.Sections = make(map[string]string, len(guide.Sections))
	for k, v := range guide.Sections {
		cp.Sections[k] = v
	}
	return &cp, nil
}

// GetStatus implements store.GuideStore.
func (m *MockGuideStore) GetStatus(ctx context.Context, id uuid.UUID) (domain.GuideStatus, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	guide, exists := m.guides[id]
	if !exists {
		return "", store.ErrGuideNotFound
	}
	return guide.Status, nil
}

// SetSection implements store.GuideStore.
func (m *MockGuideStore) SetSection(ctx context.Context, id uuid.UUID, name, content string) error {
	if m.SetSectionFn != nil {
		return m.SetSectionFn(ctx, id, name, content)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	guide, exists := m.guides[id]
	if !exists {
		return store.ErrGuideNotFound
	}
	if guide.Sections == nil {
		guide.Sections = make(map[string]string)
	}
	guide.Sections[name] = content
	guide.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateProgress implements store.GuideStore.
func (m *MockGuideStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, currentStep string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	guide, exists := m.guides[id]
	if !exists {
		return store.ErrGuideNotFound
	}
	guide.Progress = progress
	guide.CurrentStep = currentStep
	guide.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateStatus implements store.GuideStore.
func (m *MockGuideStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.GuideStatus, errMsg string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	guide, exists := m.guides[id]
	if !exists {
		return store.ErrGuideNotFound
	}
	if guide.Status.IsTerminal() {
		return store.ErrTaskFinalized
	}
	guide.Status = status
	guide.Error = errMsg
	guide.UpdatedAt = time.Now().UTC()
	return nil
}

// WithTx implements store.GuideStore. The mock has no transactions.
func (m *MockGuideStore) WithTx(tx *sql.Tx) store.GuideStore {
	return m
}

var _ store.GuideStore = (*MockGuideStore)(nil)

// MockAnalysisStore implements store.AnalysisStore in memory for testing.
type MockAnalysisStore struct {
	mutex    sync.RWMutex
	analyses map[uuid.UUID]*domain.MatchAnalysis
}

// NewMockAnalysisStore creates an empty MockAnalysisStore.
func NewMockAnalysisStore() *MockAnalysisStore {
	return &MockAnalysisStore{
		analyses: make(map[uuid.UUID]*domain.MatchAnalysis),
	}
}

// Create implements store.AnalysisStore.
func (m *MockAnalysisStore) Create(ctx context.Context, analysis *domain.MatchAnalysis) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.analyses[analysis.ID]; exists {
		return store.ErrDuplicate
	}
	cp := *analysis
	m.analyses[analysis.ID] = &cp
	return nil
}

// GetByID implements store.AnalysisStore.
func (m *MockAnalysisStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.MatchAnalysis, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	analysis, exists := m.analyses[id]
	if !exists {
		return nil, store.ErrAnalysisNotFound
	}
	cp := *analysis
	return &cp, nil
}

// Update implements store.AnalysisStore. Baseline fields are preserved
// from the stored row, mirroring the postgres store's column list.
func (m *MockAnalysisStore) Update(ctx context.Context, analysis *domain.MatchAnalysis) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored, exists := m.analyses[analysis.ID]
	if !exists {
		return store.ErrAnalysisNotFound
	}
	cp := *analysis
	cp.BaselineScore = stored.BaselineScore
	cp.BaselineTotalNeeded = stored.BaselineTotalNeeded
	m.analyses[analysis.ID] = &cp
	return nil
}

// WithTx implements store.AnalysisStore. The mock has no transactions.
func (m *MockAnalysisStore) WithTx(tx *sql.Tx) store.AnalysisStore {
	return m
}

var _ store.AnalysisStore = (*MockAnalysisStore)(nil)

// MockTask implements the Task interface for testing the runner and
// queue without real generation work.
type MockTask struct {
	TaskID     uuid.UUID
	TaskUserID uuid.UUID
	TaskType   domain.TaskType

	// ExecuteFn, when non-nil, replaces the default no-op execution.
	ExecuteFn func(ctx context.Context) (*uuid.UUID, error)

	mutex    sync.Mutex
	executed int
}

// NewMockTask creates a MockTask with fresh identifiers.
func NewMockTask(taskType domain.TaskType) *MockTask {
	return &MockTask{
		TaskID:     uuid.New(),
		TaskUserID: uuid.New(),
		TaskType:   taskType,
	}
}

// ID implements the Task interface.
func (t *MockTask) ID() uuid.UUID { return t.TaskID }

// UserID implements the Task interface.
func (t *MockTask) UserID() uuid.UUID { return t.TaskUserID }

// Type implements the Task interface.
func (t *MockTask) Type() domain.TaskType { return t.TaskType }

// Execute implements the Task interface.
func (t *MockTask) Execute(ctx context.Context) (*uuid.UUID, error) {
	t.mutex.Lock()
	t.executed++
	t.mutex.Unlock()

	if t.ExecuteFn != nil {
		return t.ExecuteFn(ctx)
	}
	return nil, nil
}

// ExecuteCount returns how many times Execute has run.
func (t *MockTask) ExecuteCount() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.executed
}

// TrackedRow builds the persisted row matching this mock task.
func (t *MockTask) TrackedRow() *domain.TrackedTask {
	now := time.Now().UTC()
	return &domain.TrackedTask{
		ID:        t.TaskID,
		UserID:    t.TaskUserID,
		Type:      t.TaskType,
		Status:    domain.TaskStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// String implements fmt.Stringer for readable test failures.
func (t *MockTask) String() string {
	return fmt.Sprintf("MockTask(%s, %s)", t.TaskType, t.TaskID)
}
