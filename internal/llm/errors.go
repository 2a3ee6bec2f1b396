package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// TemplateError reports placeholders the caller did not supply.
type TemplateError struct {
	Template string
	Missing  []string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("prompt template %q is missing variables: %s", e.Template, strings.Join(e.Missing, ", "))
}

// ConnectionError is a transport failure reaching the service.
type ConnectionError struct {
	RequestID string
	URL       string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("[%s] connection to LLM service at %s failed: %v. Check that the service is running (ollama serve) and llm.api_url is correct",
		e.RequestID, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type ConnectTimeoutError struct {
	RequestID string
	URL       string
	Elapsed   time.Duration
	Limit     time.Duration
	Err       error
}

func (e *ConnectTimeoutError) Error() string {
	return fmt.Sprintf("[%s] connect timeout after %.1fs (limit %.1fs) reaching %s. The service is not accepting connections; check that it is running and not overloaded",
		e.RequestID, e.Elapsed.Seconds(), e.Limit.Seconds(), e.URL)
}

func (e *ConnectTimeoutError) Unwrap() error { return e.Err }

// ReadTimeoutError means the connection opened but no response headers
// arrived within the operation timeout.
type ReadTimeoutError struct {
	RequestID string
	Operation Operation
	Elapsed   time.Duration
	Limit     time.Duration
	Err       error
}

func (e *ReadTimeoutError) Error() string {
	return fmt.Sprintf("[%s] read timeout after %.1fs (limit %.1fs) op=%s. The model did not start responding; it may still be loading. %s",
		e.RequestID, e.Elapsed.Seconds(), e.Limit.Seconds(), e.Operation, remediation(e.Operation))
}

func (e *ReadTimeoutError) Unwrap() error { return e.Err }

// StreamTimeoutError means the stream exceeded its adaptive limit.
type StreamTimeoutError struct {
	RequestID string
	Operation Operation
	Elapsed   time.Duration
	Limit     time.Duration
	Chunks    int
	Bytes     int
	Chars     int
}

// EstimatedTokens uses the chars/4 heuristic.
func (e *StreamTimeoutError) EstimatedTokens() int { return e.Chars / 4 }

func (e *StreamTimeoutError) Error() string {
	var cps, tps float64
	if s := e.Elapsed.Seconds(); s > 0 {
		cps = float64(e.Chars) / s
		tps = float64(e.EstimatedTokens()) / s
	}
	return fmt.Sprintf("[%s] stream timeout: elapsed=%.1fs limit=%.1fs op=%s chunks=%d bytes=%d chars=%d tokens≈%d rate=%.1f chars/s %.1f tokens/s. %s",
		e.RequestID, e.Elapsed.Seconds(), e.Limit.Seconds(), e.Operation,
		e.Chunks, e.Bytes, e.Chars, e.EstimatedTokens(), cps, tps, remediation(e.Operation))
}

// StreamStuckError means the stream stopped producing chunks before any
// text was generated. It is deliberately worded so message heuristics do
// not classify it as transient.
type StreamStuckError struct {
	RequestID string
	Operation Operation
	Idle      time.Duration
	Chunks    int
	Reason    string
}

func (e *StreamStuckError) Error() string {
	return fmt.Sprintf("[%s] stream stuck: %s (op=%s idle=%.1fs chunks=%d, no text produced). The model produced nothing usable; restart the model or switch to a different one",
		e.RequestID, e.Reason, e.Operation, e.Idle.Seconds(), e.Chunks)
}

// EmptyResponseError means the stream finished without any text.
type EmptyResponseError struct {
	RequestID string
	Operation Operation
	Chunks    int
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("[%s] empty response for op=%s after %d chunks. Check the prompt template and model parameters (num_predict)",
		e.RequestID, e.Operation, e.Chunks)
}

// HTTPStatusError is a non-200 reply from the generate endpoint.
type HTTPStatusError struct {
	RequestID  string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("[%s] LLM service returned HTTP %d", e.RequestID, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.StatusCode == 404 {
		msg += ". The model may not be pulled; run 'ollama pull <model>'"
	}
	return msg
}

// ServiceError is an error field reported inside the stream.
type ServiceError struct {
	RequestID string
	Message   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s] LLM service error: %s", e.RequestID, e.Message)
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection",
	"unreachable",
	"temporarily unavailable",
	"service unavailable",
}

// IsTransientMessage applies the substring heuristics to an error message.
func IsTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying. Typed errors are
// classified first; anything else falls back to message heuristics.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var (
		stuck   *StreamStuckError
		empty   *EmptyResponseError
		tmpl    *TemplateError
		status  *HTTPStatusError
		conn    *ConnectionError
		connTO  *ConnectTimeoutError
		readTO  *ReadTimeoutError
		streamT *StreamTimeoutError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &stuck), errors.As(err, &empty), errors.As(err, &tmpl):
		return false
	case errors.As(err, &status):
		return status.StatusCode >= 500
	case errors.As(err, &conn), errors.As(err, &connTO), errors.As(err, &readTO), errors.As(err, &streamT):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return IsTransientMessage(err.Error())
}

// ErrorCategory buckets an error for troubleshooting: "timeout",
// "connection", "validation" or "other".
func ErrorCategory(err error) string {
	if err == nil {
		return ""
	}
	var (
		connTO  *ConnectTimeoutError
		readTO  *ReadTimeoutError
		streamT *StreamTimeoutError
		stuck   *StreamStuckError
		conn    *ConnectionError
		tmpl    *TemplateError
		empty   *EmptyResponseError
	)
	switch {
	case errors.As(err, &connTO), errors.As(err, &readTO), errors.As(err, &streamT), errors.As(err, &stuck):
		return "timeout"
	case errors.As(err, &conn):
		return "connection"
	case errors.As(err, &tmpl), errors.As(err, &empty):
		return "validation"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return "timeout"
	case strings.Contains(lower, "connection"), strings.Contains(lower, "unreachable"), strings.Contains(lower, "unavailable"):
		return "connection"
	case strings.Contains(lower, "validation"), strings.Contains(lower, "invalid"):
		return "validation"
	}
	return "other"
}

func remediation(op Operation) string {
	switch op {
	case OpOutline:
		return "Outline generation produces one large JSON document; raise llm.operation_timeouts.outline or lower num_modules/total_sessions."
	case OpLecture:
		return "Lectures are the longest artifact; raise llm.operation_timeouts.lecture or use a faster model."
	case OpDiagram, OpVisualization:
		return "Diagrams should be short; lower num_predict or check the model is not rambling past the diagram."
	case OpQuestions:
		return "Question sets carry lecture and lab context; raise llm.operation_timeouts.questions or shorten the lab."
	default:
		return fmt.Sprintf("Raise llm.operation_timeouts.%s, use a faster model, or resume with --skip-existing.", op)
	}
}
