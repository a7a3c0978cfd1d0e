// Package statemachine provides a small, generic finite-state-machine.
//
// A Definition is an immutable transition table built once with a Builder and
// shared by any number of Machine instances. Machines are cheap to create, which
// makes the package suitable both for long-lived entities (a tenant's lifecycle
// status loaded from storage with NewAt) and for short-lived per-request state
// (a database binding that lives for one HTTP request).
//
// # Usage
//
//	type State string
//	type Event string
//
//	def := statemachine.NewBuilder[State, Event]("draft").
//		Permit("draft", "submit", "in_review").
//		Permit("in_review", "approve", "approved").
//		MustBuild()
//
//	m := def.New()
//	if err := m.Fire(ctx, "submit", nil); err != nil {
//		// statemachine.IsNoTransitionAvailableError(err) or
//		// statemachine.IsTransitionRejectedError(err)
//	}
//
// Guards decide between several transitions registered for the same
// from/event pair: the first transition whose guards all pass is taken.
// Actions run before the state changes and abort the transition on error.
package statemachine
