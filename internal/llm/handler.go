package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/logger"
)

// HealthWatcher is polled while a request is in flight.
type HealthWatcher interface {
	MonitorRequestHealth(ctx context.Context, id, model string, start time.Time, timeout time.Duration) *health.Issue
}

// Observed describes one request run under the handler.
type Observed struct {
	ID             string
	Model          string
	Operation      Operation
	URL            string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

type inflight struct {
	cancelled atomic.Bool
}

// RequestHandler executes requests with a health watcher and a heartbeat
// logger running beside each one.
type RequestHandler struct {
	watcher           HealthWatcher
	log               *logger.Logger
	healthInterval    time.Duration
	heartbeatInterval time.Duration
	now               func() time.Time

	mu     sync.Mutex
	active map[string]*inflight
}

func NewRequestHandler(watcher HealthWatcher, log *logger.Logger, healthInterval, heartbeatInterval time.Duration) *RequestHandler {
	return &RequestHandler{
		watcher:           watcher,
		log:               logger.OrNop(log),
		healthInterval:    healthInterval,
		heartbeatInterval: heartbeatInterval,
		now:               time.Now,
		active:            map[string]*inflight{},
	}
}

// CancelRequest marks id cancelled so its monitors stop. The transport is
// not interrupted. Reports whether id was in flight.
func (h *RequestHandler) CancelRequest(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.active[id]
	if ok {
		f.cancelled.Store(true)
	}
	return ok
}

// Active returns the number of in-flight requests.
func (h *RequestHandler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Run executes fn under observation. Transport errors from fn are
// classified into connect timeout, read timeout or connection errors.
func (h *RequestHandler) Run(ctx context.Context, req Observed, fn func(context.Context) error) error {
	f := &inflight{}
	h.mu.Lock()
	h.active[req.ID] = f
	h.mu.Unlock()

	start := h.now()
	done := make(chan struct{})
	var wg sync.WaitGroup
	log := h.log.With("request_id", req.ID)

	if h.watcher != nil && h.healthInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.watchHealth(ctx, req, f, start, done, log)
		}()
	}
	if h.heartbeatInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.heartbeat(req, f, start, done, log)
		}()
	}

	err := fn(ctx)

	f.cancelled.Store(true)
	close(done)
	wg.Wait()
	h.mu.Lock()
	delete(h.active, req.ID)
	h.mu.Unlock()

	if err == nil {
		return nil
	}
	return classifyTransportError(err, req, h.now().Sub(start))
}

func (h *RequestHandler) watchHealth(ctx context.Context, req Observed, f *inflight, start time.Time, done <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(h.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if f.cancelled.Load() {
				return
			}
			if issue := h.watcher.MonitorRequestHealth(ctx, req.ID, req.Model, start, req.Timeout); issue != nil && !f.cancelled.Load() {
				log.Warn(fmt.Sprintf("[%s] ⚠️ health: %s", req.ID, issue), "issue", string(issue.Kind))
			}
		}
	}
}

func (h *RequestHandler) heartbeat(req Observed, f *inflight, start time.Time, done <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if f.cancelled.Load() {
				return
			}
			log.Info(fmt.Sprintf("[%s] ⏳ op=%s still running, elapsed=%.0fs of %.0fs",
				req.ID, req.Operation, h.now().Sub(start).Seconds(), req.Timeout.Seconds()))
		}
	}
}

// classifyTransportError leaves typed errors alone and maps raw transport
// failures. A timeout within the connect limit is a connect timeout;
// later ones are read timeouts.
func classifyTransportError(err error, req Observed, elapsed time.Duration) error {
	if errors.Is(err, context.Canceled) || isTyped(err) {
		return err
	}
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	if timeout {
		if isDialError(err) || elapsed <= req.ConnectTimeout {
			return &ConnectTimeoutError{RequestID: req.ID, URL: req.URL, Elapsed: elapsed, Limit: req.ConnectTimeout, Err: err}
		}
		return &ReadTimeoutError{RequestID: req.ID, Operation: req.Operation, Elapsed: elapsed, Limit: req.Timeout, Err: err}
	}
	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) {
		return &ConnectionError{RequestID: req.ID, URL: req.URL, Err: err}
	}
	return err
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTyped(err error) bool {
	var (
		a *TemplateError
		b *ConnectionError
		c *ConnectTimeoutError
		d *ReadTimeoutError
		e *StreamTimeoutError
		f *StreamStuckError
		g *EmptyResponseError
		h *HTTPStatusError
		i *ServiceError
	)
	return errors.As(err, &a) || errors.As(err, &b) || errors.As(err, &c) ||
		errors.As(err, &d) || errors.As(err, &e) || errors.As(err, &f) ||
		errors.As(err, &g) || errors.As(err, &h) || errors.As(err, &i)
}
