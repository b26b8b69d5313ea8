// Package saga coordinates one payment across the authorization, processing,
// and settlement aggregates.
//
// The transition logic is a pure reducer: given an instance and an event it
// returns the next instance and the commands to issue. The Orchestrator owns
// the side effects. It persists the instance together with its pending
// commands under a revision check, submits them, and clears them once
// delivered, so a restarted process resumes from storage alone.
//
// An instance is keyed by its correlation id, the authorization id. Once it
// reaches COMPLETED, DECLINED, or FAILED it is read-only; later events for the
// same correlation id are logged and dropped.
package saga
