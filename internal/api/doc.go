// Package api contains the HTTP handlers for the public REST surface:
// authentication, tracked-task management (create, inspect, cancel, and
// SSE progress streaming), and the token ledger. Handlers decode and
// validate requests, delegate to stores and services, and map internal
// errors to sanitized HTTP responses.
package api
