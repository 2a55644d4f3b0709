// Package inference coordinates generation requests against a single backend
// capability. It is structured into small files by concern:
//
//   - oracle.go: availability reads and the reason-to-message mapping.
//   - coordinator.go: Coordinator, the per-request lifecycle (check, session,
//     invoke, release) and panic recovery around the backend.
//   - admission.go: the single in-flight generation slot and the optional
//     queue bound.
//   - config.go: Config and defaults.
//   - errors.go: typed errors carrying an HTTP status, plus Is* helpers.
//   - events.go, eventpub_memory.go: lifecycle events and an in-memory sink.
//   - metrics.go: prometheus collectors for generations and the queue.
//
// Callers construct a Coordinator with New and use Generate and Status only.
package inference
