package task

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
)

// ErrUnknownTaskType is returned when no factory is registered for an
// event's task type.
var ErrUnknownTaskType = errors.New("unknown task type")

// Factory builds an executable Task from a task request event.
type Factory interface {
	Build(event *events.TaskRequestEvent) (Task, error)
}

// FactoryRegistry maps task types to their factories. Registration
// happens once at wiring time; lookups happen on every event.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[domain.TaskType]Factory
}

// NewFactoryRegistry creates an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{
		factories: make(map[domain.TaskType]Factory),
	}
}

// Register associates a factory with a task type, replacing any
// previous registration.
func (r *FactoryRegistry) Register(taskType domain.TaskType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = factory
}

// Build dispatches the event to the factory registered for its type.
func (r *FactoryRegistry) Build(event *events.TaskRequestEvent) (Task, error) {
	r.mu.RLock()
	factory, ok := r.factories[event.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, event.Type)
	}
	return factory.Build(event)
}
