// Package events decouples task submission from task execution.
//
// The API layer emits TaskRequestEvent values after persisting a tracked
// task; the task runner's event handler receives them and schedules
// execution. Services can emit events without knowing which handlers
// will process them, which avoids a circular dependency between the API
// and task packages.
package events
