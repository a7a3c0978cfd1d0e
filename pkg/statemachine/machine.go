package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Machine is a thread-safe state holder driven by a shared Definition.
type Machine[S, E comparable] struct {
	def     *Definition[S, E]
	mu      sync.RWMutex
	current S
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire applies event to the machine. Actions run before the state changes;
// any action failure aborts the transition and leaves the state untouched.
func (m *Machine[S, E]) Fire(ctx context.Context, event E, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.find(ctx, event, data)
	if err != nil {
		return err
	}

	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, m.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.current = t.To
	return nil
}

// CanFire reports whether event would currently be accepted.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E, data any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.find(ctx, event, data)
	return err == nil
}

// Reset moves the machine back to the definition's initial state.
func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.def.initial
}

// Must be called with lock held.
func (m *Machine[S, E]) find(ctx context.Context, event E, data any) (*Transition[S, E], error) {
	candidates := m.def.transitions[m.current][event]
	if len(candidates) == 0 {
		return nil, &ErrNoTransitionAvailable{State: fmt.Sprint(m.current), Event: fmt.Sprint(event)}
	}

	// First transition with passing guards wins (enables priority ordering)
	for i := range candidates {
		if guardsPass(ctx, candidates[i].Guards, m.current, event, data) {
			return &candidates[i], nil
		}
	}

	return nil, &ErrTransitionRejected{State: fmt.Sprint(m.current), Event: fmt.Sprint(event)}
}

func guardsPass[S, E comparable](ctx context.Context, guards []Guard[S, E], from S, event E, data any) bool {
	for _, guard := range guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
