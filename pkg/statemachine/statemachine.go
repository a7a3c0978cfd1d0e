package statemachine

import (
	"context"
)

// Action executes side effects during a transition. Returning an error prevents the transition.
type Action[S, E comparable] func(ctx context.Context, from, to S, event E, data any) error

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S, E comparable] func(ctx context.Context, from S, event E, data any) bool

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition[S, E comparable] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // All must pass for transition to proceed
	Actions []Action[S, E] // Executed in order before state change
}

// Definition is an immutable transition table. Build it once and spawn
// lightweight machines from it with New or NewAt.
type Definition[S, E comparable] struct {
	initial     S
	transitions map[S]map[E][]Transition[S, E]
}

// Initial returns the state new machines start in.
func (d *Definition[S, E]) Initial() S {
	return d.initial
}

// New creates a machine positioned at the definition's initial state.
func (d *Definition[S, E]) New() *Machine[S, E] {
	return d.NewAt(d.initial)
}

// NewAt creates a machine positioned at the given state.
// Useful when the current state is loaded from storage.
func (d *Definition[S, E]) NewAt(state S) *Machine[S, E] {
	return &Machine[S, E]{def: d, current: state}
}

// Allowed reports whether any transition exists for event from state,
// ignoring guards.
func (d *Definition[S, E]) Allowed(from S, event E) bool {
	return len(d.transitions[from][event]) > 0
}

// Builder collects transitions for a Definition.
type Builder[S, E comparable] struct {
	initial     S
	transitions map[S]map[E][]Transition[S, E]
}

// NewBuilder starts a definition with the given initial state.
func NewBuilder[S, E comparable](initial S) *Builder[S, E] {
	return &Builder[S, E]{
		initial:     initial,
		transitions: make(map[S]map[E][]Transition[S, E]),
	}
}

// Add registers a transition. Multiple transitions for the same from/event pair
// are evaluated in registration order; the first one whose guards pass wins.
func (b *Builder[S, E]) Add(t Transition[S, E]) *Builder[S, E] {
	if _, ok := b.transitions[t.From]; !ok {
		b.transitions[t.From] = make(map[E][]Transition[S, E])
	}
	b.transitions[t.From][t.Event] = append(b.transitions[t.From][t.Event], t)
	return b
}

// Permit is a shorthand for an unguarded transition without actions.
func (b *Builder[S, E]) Permit(from S, event E, to S) *Builder[S, E] {
	return b.Add(Transition[S, E]{From: from, To: to, Event: event})
}

// Build freezes the collected transitions into a Definition.
// The builder must not be reused afterwards.
func (b *Builder[S, E]) Build() (*Definition[S, E], error) {
	if len(b.transitions) == 0 {
		return nil, ErrNoTransitions
	}
	return &Definition[S, E]{
		initial:     b.initial,
		transitions: b.transitions,
	}, nil
}

// MustBuild is like Build but panics on error. Intended for package-level definitions.
func (b *Builder[S, E]) MustBuild() *Definition[S, E] {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
