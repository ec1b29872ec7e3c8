// Package session houses concrete implementations of core.SessionStore.
// The Session type itself lives in core so the orchestrator and the
// capability host depend on the contract, not on storage.
package session
