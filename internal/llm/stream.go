package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/logger"
)

const (
	maxEmptyResponseChunks = 1000
	maxUnknownChunks       = 100
	maxParseFailures       = 100
	extendAtFraction       = 0.8
)

type streamPhase int

const (
	phaseWaitingFirstChunk streamPhase = iota
	phaseStreaming
	phaseStalled
	phaseDone
)

func (p streamPhase) String() string {
	switch p {
	case phaseWaitingFirstChunk:
		return "waiting-first-chunk"
	case phaseStreaming:
		return "streaming"
	case phaseStalled:
		return "stalled"
	case phaseDone:
		return "done"
	}
	return "unknown"
}

// chunk is one NDJSON object. Field presence matters, so text fields are
// pointers: an empty "response" is a keep-alive, a missing one is unknown.
type chunk struct {
	Response *string       `json:"response"`
	Thinking *string       `json:"thinking"`
	Content  *string       `json:"content"`
	Text     *string       `json:"text"`
	Message  *chunkMessage `json:"message"`
	Done     bool          `json:"done"`
	Error    string        `json:"error"`
}

type chunkMessage struct {
	Content  *string `json:"content"`
	Text     *string `json:"text"`
	Response *string `json:"response"`
}

// extract returns the first non-empty text field and whether any known
// text field was present at all.
func (c *chunk) extract() (string, bool) {
	fields := []*string{c.Response, c.Thinking, c.Content, c.Text}
	if c.Message != nil {
		fields = append(fields, c.Message.Content, c.Message.Text, c.Message.Response)
	}
	present := false
	for _, f := range fields {
		if f == nil {
			continue
		}
		present = true
		if *f != "" {
			return *f, true
		}
	}
	return "", present
}

type streamLimits struct {
	base        time.Duration
	ceiling     time.Duration
	extension   time.Duration
	stuck       time.Duration
	chunkWindow time.Duration
	textWindow  time.Duration
}

func newStreamLimits(opTimeout time.Duration, t config.StreamTuning) streamLimits {
	scale := func(m float64) time.Duration { return time.Duration(m * float64(opTimeout)) }
	secs := func(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }
	l := streamLimits{
		base:        scale(t.BaseMultiplier),
		ceiling:     scale(t.MaxMultiplier),
		extension:   scale(t.ExtensionMultiplier),
		stuck:       secs(t.StuckInterval),
		chunkWindow: secs(t.ChunkProgressWindow),
		textWindow:  secs(t.TextProgressWindow),
	}
	if l.ceiling < l.base {
		l.ceiling = l.base
	}
	return l
}

// streamMonitor is the parser state machine. It is driven by observe for
// every line and by checkTime on a ticker, both with explicit timestamps.
type streamMonitor struct {
	id          string
	op          Operation
	log         *logger.Logger
	limits      streamLimits
	progressLog time.Duration
	allowEmpty  bool

	phase          streamPhase
	limit          time.Duration
	start          time.Time
	lastChunk      time.Time
	lastTextGrowth time.Time
	lastProgress   time.Time
	text           strings.Builder

	chunks         int
	bytes          int
	emptyResponses int
	unknownRun     int
	parseFailures  int

	extensionLogged bool
	stallWarned     bool
}

func newStreamMonitor(id string, op Operation, opTimeout time.Duration, tuning config.StreamTuning, progressLog time.Duration, allowEmpty bool, log *logger.Logger, start time.Time) *streamMonitor {
	limits := newStreamLimits(opTimeout, tuning)
	return &streamMonitor{
		id:          id,
		op:          op,
		log:         logger.OrNop(log),
		limits:      limits,
		progressLog: progressLog,
		allowEmpty:  allowEmpty,
		phase:       phaseWaitingFirstChunk,
		limit:       limits.base,
		start:       start,
	}
}

// Limit returns the current adaptive limit.
func (m *streamMonitor) Limit() time.Duration { return m.limit }

func (m *streamMonitor) setPhase(p streamPhase) {
	if m.phase == p {
		return
	}
	m.log.Debug(fmt.Sprintf("[%s] stream %s -> %s", m.id, m.phase, p))
	m.phase = p
}

// observe consumes one raw line. It returns done when the terminal chunk
// arrives.
func (m *streamMonitor) observe(now time.Time, line []byte) (bool, error) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return false, m.checkTime(now)
	}
	m.chunks++
	m.bytes += len(line) + 1
	m.lastChunk = now
	if m.phase == phaseWaitingFirstChunk {
		m.log.Debug(fmt.Sprintf("[%s] first chunk after %.1fs", m.id, now.Sub(m.start).Seconds()))
	}
	if m.phase != phaseDone {
		m.setPhase(phaseStreaming)
		m.stallWarned = false
	}

	var c chunk
	if err := json.Unmarshal(line, &c); err != nil {
		m.parseFailures++
		if m.text.Len() == 0 && m.parseFailures >= maxParseFailures {
			return false, m.stuckError(now, fmt.Sprintf("%d chunks could not be parsed", m.parseFailures))
		}
		return false, m.checkTime(now)
	}
	if c.Error != "" {
		return false, &ServiceError{RequestID: m.id, Message: c.Error}
	}

	text, present := c.extract()
	switch {
	case text != "":
		m.text.WriteString(text)
		m.lastTextGrowth = now
		m.unknownRun = 0
	case present:
		m.emptyResponses++
		m.unknownRun = 0
		if m.text.Len() == 0 && m.emptyResponses >= maxEmptyResponseChunks {
			return false, m.stuckError(now, fmt.Sprintf("%d consecutive empty response chunks", m.emptyResponses))
		}
	case !c.Done:
		m.unknownRun++
		if m.text.Len() == 0 && m.unknownRun > maxUnknownChunks {
			return false, m.stuckError(now, fmt.Sprintf("%d chunks without any known text field", m.unknownRun))
		}
	}

	if c.Done {
		m.setPhase(phaseDone)
		return true, nil
	}
	return false, m.checkTime(now)
}

func (m *streamMonitor) progressing(now time.Time) bool {
	if !m.lastChunk.IsZero() && now.Sub(m.lastChunk) <= m.limits.chunkWindow {
		return true
	}
	return !m.lastTextGrowth.IsZero() && now.Sub(m.lastTextGrowth) <= m.limits.textWindow
}

// checkTime applies the time-based rules: extension, stall/stuck, hard
// limit and progress logging.
func (m *streamMonitor) checkTime(now time.Time) error {
	if m.phase == phaseDone {
		return nil
	}
	elapsed := now.Sub(m.start)

	if m.progressing(now) && float64(elapsed) > extendAtFraction*float64(m.limit) && m.limit < m.limits.ceiling {
		prev := m.limit
		m.limit += m.limits.extension
		if m.limit > m.limits.ceiling {
			m.limit = m.limits.ceiling
		}
		if !m.extensionLogged {
			m.extensionLogged = true
			m.log.Info(fmt.Sprintf("[%s] ⏱️ stream still progressing, extending limit %.1fs -> %.1fs (ceiling %.1fs)",
				m.id, prev.Seconds(), m.limit.Seconds(), m.limits.ceiling.Seconds()))
		}
	}

	ref := m.lastChunk
	if ref.IsZero() {
		ref = m.start
	}
	if idle := now.Sub(ref); idle > m.limits.stuck {
		if m.text.Len() == 0 {
			return m.stuckError(now, fmt.Sprintf("no chunk for %.0fs", idle.Seconds()))
		}
		m.setPhase(phaseStalled)
		if !m.stallWarned {
			m.stallWarned = true
			m.log.Warn(fmt.Sprintf("[%s] ⚠️ stream appears stalled: no chunk for %.0fs after %d chars; waiting until %.0fs limit",
				m.id, idle.Seconds(), m.text.Len(), m.limit.Seconds()))
		}
	}

	if elapsed > m.limit {
		return &StreamTimeoutError{
			RequestID: m.id,
			Operation: m.op,
			Elapsed:   elapsed,
			Limit:     m.limit,
			Chunks:    m.chunks,
			Bytes:     m.bytes,
			Chars:     m.text.Len(),
		}
	}

	if m.progressLog > 0 && m.chunks > 0 && now.Sub(m.lastProgress) >= m.progressLog {
		m.lastProgress = now
		m.log.Info(m.progressLine(now))
	}
	return nil
}

func (m *streamMonitor) progressLine(now time.Time) string {
	elapsed := now.Sub(m.start).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(m.text.Len()) / elapsed
	}
	return fmt.Sprintf("[%s] 📊 elapsed=%.1fs chars=%d rate=%.1fc/s chunks=%d tokens≈%d",
		m.id, elapsed, m.text.Len(), rate, m.chunks, m.text.Len()/4)
}

func (m *streamMonitor) stuckError(now time.Time, reason string) error {
	ref := m.lastChunk
	if ref.IsZero() {
		ref = m.start
	}
	return &StreamStuckError{
		RequestID: m.id,
		Operation: m.op,
		Idle:      now.Sub(ref),
		Chunks:    m.chunks,
		Reason:    reason,
	}
}

// finish validates the accumulated text at end of stream.
func (m *streamMonitor) finish(now time.Time) (string, error) {
	m.setPhase(phaseDone)
	if m.text.Len() == 0 && !m.allowEmpty {
		return "", &EmptyResponseError{RequestID: m.id, Operation: m.op, Chunks: m.chunks}
	}
	m.log.Debug(fmt.Sprintf("[%s] stream complete: %s", m.id, m.progressLine(now)))
	return m.text.String(), nil
}

type lineMsg struct {
	line []byte
	err  error
}

// consume reads body line by line. A ticker re-evaluates the time rules
// while no line arrives; on any exit the body is closed to unblock the
// reader goroutine.
func (m *streamMonitor) consume(ctx context.Context, body io.ReadCloser, now func() time.Time, tick time.Duration) (string, error) {
	lines := make(chan lineMsg)
	stop := make(chan struct{})
	defer func() {
		close(stop)
		body.Close()
	}()

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- lineMsg{line: line}:
			case <-stop:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- lineMsg{err: err}:
			case <-stop:
			}
		}
	}()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case msg, ok := <-lines:
			if !ok {
				if m.phase != phaseDone {
					m.log.Debug(fmt.Sprintf("[%s] stream ended without done chunk", m.id))
				}
				return m.finish(now())
			}
			if msg.err != nil {
				return "", &ConnectionError{RequestID: m.id, URL: "stream", Err: fmt.Errorf("reading stream: %w", msg.err)}
			}
			done, err := m.observe(now(), msg.line)
			if err != nil {
				return "", err
			}
			if done {
				return m.finish(now())
			}
		case <-ticker.C:
			if err := m.checkTime(now()); err != nil {
				return "", err
			}
		}
	}
}
