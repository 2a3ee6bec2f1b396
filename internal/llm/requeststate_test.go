package llm

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jorge-barreto/coursegen/internal/logger"
)

func TestRequestState_RetryIsNotTerminal(t *testing.T) {
	sm := newRequestState("req", logger.Nop())
	sm.to(statePreflight)
	sm.to(stateConnecting)
	sm.retry(&StreamTimeoutError{})
	if sm.current.terminal() {
		t.Fatalf("after a retried attempt state = %s, want non-terminal", sm.current)
	}
	sm.to(stateConnecting)
	sm.to(stateStreaming)
	sm.to(stateParsed)
	sm.to(stateSuccess)

	want := []requestStatus{stateQueued, statePreflight, stateConnecting, stateRetrying, stateConnecting, stateStreaming, stateParsed, stateSuccess}
	if !reflect.DeepEqual(sm.history, want) {
		t.Errorf("history = %v, want %v", sm.history, want)
	}
	if !reflect.DeepEqual(sm.outcomes, []requestStatus{stateTimedOut}) {
		t.Errorf("outcomes = %v", sm.outcomes)
	}
}

func TestRequestState_TerminalIsFinal(t *testing.T) {
	sm := newRequestState("req", logger.Nop())
	sm.to(stateConnecting)
	sm.fail(&ConnectionError{Err: errors.New("refused")})
	if sm.current != stateConnectionFailed {
		t.Fatalf("current = %s, want %s", sm.current, stateConnectionFailed)
	}
	if sm.to(stateConnecting) {
		t.Error("left a terminal state")
	}
	if sm.current != stateConnectionFailed {
		t.Errorf("current = %s after refused transition", sm.current)
	}
	if n := len(sm.history); n != 3 {
		t.Errorf("history has %d entries, want 3: %v", n, sm.history)
	}
}
