package health

import (
	"context"
	"fmt"
	"time"
)

type IssueKind string

const (
	IssueServiceUnavailable IssueKind = "service_unavailable"
	IssueModelNotLoaded     IssueKind = "model_not_loaded"
	IssueSlowResponse       IssueKind = "slow_response"
)

// Issue is a problem observed while a request is in flight.
type Issue struct {
	Kind   IssueKind
	Detail string
}

func (i *Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
}

const slowFraction = 0.75

// MonitorRequestHealth is polled by the request handler while a request
// runs. It returns nil when nothing looks wrong.
func (m *Monitor) MonitorRequestHealth(ctx context.Context, id, model string, start time.Time, timeout time.Duration) *Issue {
	svc := m.CheckService(ctx, 2*time.Second)
	if !svc.Available {
		return &Issue{Kind: IssueServiceUnavailable, Detail: fmt.Sprintf("[%s] service at %s not responding: %s", id, m.baseURL, svc.Error)}
	}
	ms := m.CheckModel(ctx, model)
	if ms.Error == "" && !ms.Loaded {
		return &Issue{Kind: IssueModelNotLoaded, Detail: fmt.Sprintf("[%s] model %s is not loaded (still loading or evicted)", id, model)}
	}
	elapsed := m.now().Sub(start)
	if timeout > 0 && float64(elapsed) > slowFraction*float64(timeout) {
		return &Issue{Kind: IssueSlowResponse, Detail: fmt.Sprintf("[%s] %.0fs elapsed of %.0fs timeout (processor: %s)", id, elapsed.Seconds(), timeout.Seconds(), orUnknown(ms.Processor))}
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
