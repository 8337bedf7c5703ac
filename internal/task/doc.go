// Package task manages background job queuing, processing, and lifecycle.
// It provides asynchronous execution for generation jobs (resume analysis,
// optimization, prep guides, cover letters) so they don't block HTTP
// request handling. Two executors compete for queued tasks through the
// store's claim semantics: the server-side TaskRunner and the
// opportunistic QueuePicker. A Reaper fails tasks whose executor
// disappeared, and the Notifier streams task snapshots to subscribers.
package task
