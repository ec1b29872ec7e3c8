// Package engine implements the match orchestrator.
//
// The Engine drives every session one ply at a time. When the side to move
// is seated by an agent it captures the session token, asks the Decider for
// a decision and resolves the result against the token:
//
//	Idle -> AwaitingDecision -> Applying -> Idle
//	                         \-> Failed  -> Idle (match paused)
//
// A token that no longer matches the session (reset, undo, reconfiguration
// or a human move happened meanwhile) discards the result. Automated play is
// paced by a Scheduler with a single pending step per session; pausing
// cancels that step and a paused flag is checked when it fires.
//
// Events are published through a core.Notifier after the session lock is
// released. Broadcaster fans them out to subscribers such as websocket
// streams, LoggingNotifier writes them to a logger and MultiNotifier
// combines several notifiers.
package engine
