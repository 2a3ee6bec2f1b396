package llm

import (
	"errors"
	"fmt"

	"github.com/jorge-barreto/coursegen/internal/logger"
)

type requestStatus string

const (
	stateQueued           requestStatus = "queued"
	statePreflight        requestStatus = "preflight"
	stateConnecting       requestStatus = "connecting"
	stateStreaming        requestStatus = "streaming"
	stateParsed           requestStatus = "parsed"
	stateRetrying         requestStatus = "retrying"
	stateTimedOut         requestStatus = "timed_out"
	stateConnectionFailed requestStatus = "connection_failed"
	stateStreamStuck      requestStatus = "stream_stuck"
	stateEmptyResponse    requestStatus = "empty_response"
	stateFailed           requestStatus = "failed"
	stateSuccess          requestStatus = "success"
)

func (s requestStatus) terminal() bool {
	switch s {
	case stateTimedOut, stateConnectionFailed, stateStreamStuck, stateEmptyResponse, stateFailed, stateSuccess:
		return true
	}
	return false
}

// requestState tracks one request's lifecycle across all of its transport
// attempts and logs every transition exactly once. A failed attempt that
// will be retried moves to retrying and keeps its outcome in outcomes; the
// request reaches a terminal state only once, after its last attempt.
type requestState struct {
	id       string
	log      *logger.Logger
	current  requestStatus
	history  []requestStatus
	outcomes []requestStatus
}

func newRequestState(id string, log *logger.Logger) *requestState {
	return &requestState{id: id, log: log, current: stateQueued, history: []requestStatus{stateQueued}}
}

// to moves to next. Leaving a terminal state is refused.
func (r *requestState) to(next requestStatus) bool {
	if r.current == next {
		return true
	}
	if r.current.terminal() {
		r.log.Debug(fmt.Sprintf("[%s] ignoring state %s -> %s: request already finished", r.id, r.current, next))
		return false
	}
	r.log.Debug(fmt.Sprintf("[%s] state %s -> %s", r.id, r.current, next))
	r.current = next
	r.history = append(r.history, next)
	return true
}

// retry records a failed attempt that will be tried again.
func (r *requestState) retry(err error) {
	outcome := terminalFor(err)
	r.outcomes = append(r.outcomes, outcome)
	r.log.Debug(fmt.Sprintf("[%s] attempt %d ended in %s", r.id, len(r.outcomes), outcome))
	r.to(stateRetrying)
}

// fail moves to the terminal state matching err.
func (r *requestState) fail(err error) {
	outcome := terminalFor(err)
	r.outcomes = append(r.outcomes, outcome)
	r.to(outcome)
}

func terminalFor(err error) requestStatus {
	var (
		connTO  *ConnectTimeoutError
		readTO  *ReadTimeoutError
		streamT *StreamTimeoutError
		conn    *ConnectionError
		stuck   *StreamStuckError
		empty   *EmptyResponseError
	)
	switch {
	case errors.As(err, &connTO), errors.As(err, &readTO), errors.As(err, &streamT):
		return stateTimedOut
	case errors.As(err, &conn):
		return stateConnectionFailed
	case errors.As(err, &stuck):
		return stateStreamStuck
	case errors.As(err, &empty):
		return stateEmptyResponse
	}
	return stateFailed
}
