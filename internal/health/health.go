// Package health queries the LLM service's auxiliary endpoints for liveness,
// loaded-model placement and catalog membership. Every check is
// non-blocking in the sense that failures are reported as data, never as
// errors.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultCheckTimeout = 5 * time.Second

type ServiceStatus struct {
	Available    bool          `json:"available"`
	ResponseTime time.Duration `json:"response_time"`
	Version      string        `json:"version,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type ModelStatus struct {
	Model     string `json:"model"`
	Loaded    bool   `json:"loaded"`
	Available bool   `json:"available"`
	Processor string `json:"processor,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LoadedModel is one entry of the process list.
type LoadedModel struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	SizeVRAM  int64  `json:"size_vram"`
	Processor string `json:"processor"`
}

type Diagnostics struct {
	Timestamp       time.Time     `json:"timestamp"`
	BaseURL         string        `json:"base_url"`
	Service         ServiceStatus `json:"service"`
	Model           ModelStatus   `json:"model"`
	LoadedModels    []LoadedModel `json:"loaded_models"`
	AvailableModels []string      `json:"available_models"`
	GPUInUse        bool          `json:"gpu_in_use"`
}

// Monitor talks to the service rooted at the scheme and host of api_url.
type Monitor struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// New derives the service root from the generate endpoint URL.
func New(apiURL string) (*Monitor, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api_url %q is not an absolute URL", apiURL)
	}
	return &Monitor{
		baseURL: u.Scheme + "://" + u.Host,
		client:  &http.Client{},
		now:     time.Now,
	}, nil
}

// BaseURL returns the service root, e.g. http://localhost:11434.
func (m *Monitor) BaseURL() string {
	return m.baseURL
}

func (m *Monitor) getJSON(ctx context.Context, path string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CheckService probes the version endpoint. A non-positive timeout uses 5s.
func (m *Monitor) CheckService(ctx context.Context, timeout time.Duration) ServiceStatus {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	start := m.now()
	var body struct {
		Version string `json:"version"`
	}
	err := m.getJSON(ctx, "/api/version", timeout, &body)
	st := ServiceStatus{ResponseTime: m.now().Sub(start)}
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Available = true
	st.Version = body.Version
	return st
}

type psResponse struct {
	Models []struct {
		Name     string `json:"name"`
		Model    string `json:"model"`
		Size     int64  `json:"size"`
		SizeVRAM int64  `json:"size_vram"`
	} `json:"models"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// LoadedModels queries the process list.
func (m *Monitor) LoadedModels(ctx context.Context) ([]LoadedModel, error) {
	var ps psResponse
	if err := m.getJSON(ctx, "/api/ps", defaultCheckTimeout, &ps); err != nil {
		return nil, err
	}
	out := make([]LoadedModel, 0, len(ps.Models))
	for _, pm := range ps.Models {
		name := pm.Name
		if name == "" {
			name = pm.Model
		}
		out = append(out, LoadedModel{
			Name:      name,
			Size:      pm.Size,
			SizeVRAM:  pm.SizeVRAM,
			Processor: processor(pm.Size, pm.SizeVRAM),
		})
	}
	return out, nil
}

// AvailableModels queries the model catalog.
func (m *Monitor) AvailableModels(ctx context.Context) ([]string, error) {
	var tags tagsResponse
	if err := m.getJSON(ctx, "/api/tags", defaultCheckTimeout, &tags); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tags.Models))
	for _, tm := range tags.Models {
		name := tm.Name
		if name == "" {
			name = tm.Model
		}
		out = append(out, name)
	}
	return out, nil
}

// CheckModel reports whether model is loaded (process list) and available
// (catalog), and where it runs.
func (m *Monitor) CheckModel(ctx context.Context, model string) ModelStatus {
	st := ModelStatus{Model: model}
	loaded, err := m.LoadedModels(ctx)
	if err != nil {
		st.Error = err.Error()
	}
	for _, lm := range loaded {
		if sameModel(lm.Name, model) {
			st.Loaded = true
			st.Processor = lm.Processor
			break
		}
	}
	available, err := m.AvailableModels(ctx)
	if err != nil && st.Error == "" {
		st.Error = err.Error()
	}
	for _, name := range available {
		if sameModel(name, model) {
			st.Available = true
			break
		}
	}
	return st
}

// Diagnostics aggregates service, placement and catalog state.
func (m *Monitor) Diagnostics(ctx context.Context, model string) Diagnostics {
	d := Diagnostics{Timestamp: m.now().UTC(), BaseURL: m.baseURL}
	d.Service = m.CheckService(ctx, defaultCheckTimeout)
	if !d.Service.Available {
		d.Model = ModelStatus{Model: model}
		return d
	}
	d.Model = m.CheckModel(ctx, model)
	if loaded, err := m.LoadedModels(ctx); err == nil {
		d.LoadedModels = loaded
		for _, lm := range loaded {
			if lm.SizeVRAM > 0 {
				d.GPUInUse = true
			}
		}
	}
	if avail, err := m.AvailableModels(ctx); err == nil {
		d.AvailableModels = avail
	}
	return d
}

func processor(size, vram int64) string {
	switch {
	case vram <= 0:
		return "100% CPU"
	case size <= 0 || vram >= size:
		return "100% GPU"
	default:
		gpu := int(float64(vram) / float64(size) * 100)
		return fmt.Sprintf("%d%%/%d%% CPU/GPU", 100-gpu, gpu)
	}
}

func normalizeModel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" && !strings.Contains(name, ":") {
		name += ":latest"
	}
	return name
}

func sameModel(a, b string) bool {
	return normalizeModel(a) == normalizeModel(b)
}
