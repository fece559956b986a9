package statemachine

import "testing"

type counter struct {
	ticks int
}

func tick(c *counter, _ func(string, StateEvent)) StateFn[counter] {
	c.ticks++
	if c.ticks >= 3 {
		return nil
	}
	return tick
}

// TestDispatchRunsToTerminalState verifies that dispatching advances through
// state functions and that a nil return ends the machine.
func TestDispatchRunsToTerminalState(t *testing.T) {
	c := &counter{}
	sm := NewStateMachine(c, tick)

	for i := 0; i < 5 && !sm.Done(); i++ {
		sm.Dispatch(nil)
	}

	if c.ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", c.ticks)
	}
	if !sm.Done() {
		t.Fatal("machine should be done after terminal state")
	}

	// Dispatching a done machine must be a no-op.
	sm.Dispatch(nil)
	if c.ticks != 3 {
		t.Fatalf("dispatch after done ran the state function, ticks=%d", c.ticks)
	}
}

func TestSetStateReplacesState(t *testing.T) {
	c := &counter{}
	sm := NewStateMachine(c, nil)
	if !sm.Done() {
		t.Fatal("nil initial state should be terminal")
	}

	sm.SetState(tick)
	sm.Dispatch(nil)
	if c.ticks != 1 {
		t.Fatalf("expected 1 tick after SetState, got %d", c.ticks)
	}
}
