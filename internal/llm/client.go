// Package llm is the request core: prompt templating, request ids, the
// streaming generate call with adaptive timeouts, and the transient-error
// retry loop.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/logger"
)

const preflightTimeout = 3 * time.Second

// Request is one generation call.
type Request struct {
	Operation Operation
	// Template names a prompt in llm.yaml; defaults to the operation name.
	// Ignored when Prompt is set.
	Template string
	Vars     map[string]any
	// Prompt is a pre-rendered prompt.
	Prompt string
	// System overrides the template's system prompt.
	System          string
	TimeoutOverride time.Duration
	Parameters      map[string]any
	// Feedback is appended to the rendered prompt on retries.
	Feedback string
}

type Response struct {
	Text      string
	RequestID string
	Elapsed   time.Duration
	Chunks    int
	Attempts  int
}

// ServiceProbe is the pre-flight liveness check.
type ServiceProbe interface {
	CheckService(ctx context.Context, timeout time.Duration) health.ServiceStatus
}

// Client is safe for concurrent use.
type Client struct {
	settings *config.Settings
	log      *logger.Logger
	handler  *RequestHandler
	probe    ServiceProbe
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	tick     time.Duration

	mu      sync.Mutex
	clients map[time.Duration]*http.Client
}

type Option func(*Client)

// WithHealth sets both the pre-flight probe and the in-flight watcher.
func WithHealth(m *health.Monitor) Option {
	return func(c *Client) {
		c.probe = m
		c.handler.watcher = m
	}
}

// WithProbe overrides the pre-flight probe; nil disables pre-flight.
func WithProbe(p ServiceProbe) Option {
	return func(c *Client) { c.probe = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithTick sets how often stream time rules are re-checked while idle.
func WithTick(d time.Duration) Option {
	return func(c *Client) { c.tick = d }
}

func NewClient(s *config.Settings, log *logger.Logger, opts ...Option) *Client {
	log = logger.OrNop(log)
	intervals := s.LoggingIntervals()
	c := &Client{
		settings: s,
		log:      log,
		handler:  NewRequestHandler(nil, log, s.HealthCheckInterval(), intervals.Heartbeat),
		now:      time.Now,
		sleep:    sleepCtx,
		tick:     time.Second,
		clients:  map[time.Duration]*http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Handler exposes the request handler, e.g. for CancelRequest.
func (c *Client) Handler() *RequestHandler { return c.handler }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FormatPrompt renders the named prompt template. The system prompt is
// rendered leniently with the same variables.
func (c *Client) FormatPrompt(name string, vars map[string]any) (string, string, TemplateReport, error) {
	p, ok := c.settings.PromptTemplate(name)
	if !ok {
		return "", "", TemplateReport{}, &TemplateError{Template: name, Missing: []string{"<template not configured in " + config.LLMFile + ">"}}
	}
	prompt, report, err := FormatTemplate(name, p.Template, vars)
	if err != nil {
		return "", "", report, err
	}
	if len(report.Extra) > 0 {
		c.log.Debug(fmt.Sprintf("template %s: unused variables %s", name, strings.Join(report.Extra, ", ")))
	}
	return prompt, render(p.System, vars, true), report, nil
}

func (c *Client) httpClient(connect, read time.Duration) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[read]; ok {
		return hc
	}
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	hc := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: read,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	c.clients[read] = hc
	return hc
}

// Generate renders the prompt, runs the pre-flight probe and performs the
// streaming request with retries on transient errors.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	op := req.Operation
	prompt, system := req.Prompt, req.System
	if prompt == "" {
		name := req.Template
		if name == "" {
			name = string(op)
		}
		p, sys, _, err := c.FormatPrompt(name, req.Vars)
		if err != nil {
			return nil, err
		}
		prompt = p
		if system == "" {
			system = sys
		}
	}
	if req.Feedback != "" {
		prompt = strings.TrimRight(prompt, "\n") + "\n\n" + req.Feedback
	}

	timeout := req.TimeoutOverride
	if timeout <= 0 {
		var warning string
		timeout, warning = c.settings.OperationTimeout(string(op))
		if warning != "" {
			c.log.Warn(warning)
		}
	}

	id := NewRequestID(op)
	log := c.log.With("request_id", id)
	sm := newRequestState(id, log)
	start := c.now()
	log.Info(fmt.Sprintf("[%s] op=%s model=%s prompt_chars=%d timeout=%.0fs",
		id, op, c.settings.LLM.Model, len(prompt), timeout.Seconds()))

	sm.to(statePreflight)
	if err := c.preflight(ctx, id); err != nil {
		sm.to(stateConnectionFailed)
		return nil, err
	}

	body, err := c.requestBody(prompt, system, req.Parameters)
	if err != nil {
		return nil, err
	}

	maxAttempts := c.settings.MaxRetries()
	delay := c.settings.RetryDelay()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		text, chunks, err := c.attempt(ctx, id, op, body, timeout, prompt == "", sm, log)
		if err == nil {
			sm.to(stateSuccess)
			return &Response{
				Text:      text,
				RequestID: id,
				Elapsed:   c.now().Sub(start),
				Chunks:    chunks,
				Attempts:  attempt + 1,
			}, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) || attempt == maxAttempts-1 {
			sm.fail(err)
			break
		}
		sm.retry(err)
		wait := delay << attempt
		log.Warn(fmt.Sprintf("[%s] 🔄 attempt %d/%d failed (%v); retrying in %.1fs", id, attempt+1, maxAttempts, err, wait.Seconds()))
		if err := c.sleep(ctx, wait); err != nil {
			sm.fail(err)
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) preflight(ctx context.Context, id string) error {
	if c.probe == nil {
		return nil
	}
	st := c.probe.CheckService(ctx, preflightTimeout)
	if st.Available {
		return nil
	}
	return &ConnectionError{
		RequestID: id,
		URL:       c.settings.LLM.APIURL,
		Err:       fmt.Errorf("pre-flight version check failed: %s", st.Error),
	}
}

func (c *Client) requestBody(prompt, system string, params map[string]any) ([]byte, error) {
	options := map[string]any{}
	for k, v := range c.settings.LLM.Parameters {
		options[k] = v
	}
	for k, v := range params {
		options[k] = v
	}
	payload := map[string]any{
		"model":  c.settings.LLM.Model,
		"prompt": prompt,
		"stream": true,
	}
	if system != "" {
		payload["system"] = system
	}
	if len(options) > 0 {
		payload["options"] = options
	}
	return json.Marshal(payload)
}

func (c *Client) attempt(ctx context.Context, id string, op Operation, body []byte, timeout time.Duration, allowEmpty bool, sm *requestState, log *logger.Logger) (string, int, error) {
	sm.to(stateConnecting)
	connect := c.settings.ConnectTimeout()
	obs := Observed{
		ID:             id,
		Model:          c.settings.LLM.Model,
		Operation:      op,
		URL:            c.settings.LLM.APIURL,
		Timeout:        timeout,
		ConnectTimeout: connect,
	}
	var text string
	var chunks int
	err := c.handler.Run(ctx, obs, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.LLM.APIURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient(connect, timeout).Do(httpReq)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return &HTTPStatusError{RequestID: id, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		sm.to(stateStreaming)
		mon := newStreamMonitor(id, op, timeout, c.settings.StreamTuning(), c.settings.LoggingIntervals().ProgressLog, allowEmpty, log, c.now())
		text, err = mon.consume(ctx, resp.Body, c.now, c.tick)
		chunks = mon.chunks
		return err
	})
	if err != nil {
		return "", chunks, err
	}
	sm.to(stateParsed)
	return text, chunks, nil
}
