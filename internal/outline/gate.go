package outline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/quality"
)

// QualityGateError reports an outline whose quality report rules it out
// for content generation.
type QualityGateError struct {
	Path    string
	Score   int
	Label   string
	Reasons []string
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("outline %s is below the quality bar for content generation (score %d/100, %s): %s; "+
		"regenerate it with 'coursegen outline', or pass --force to generate from it anyway",
		e.Path, e.Score, e.Label, strings.Join(e.Reasons, "; "))
}

// MetadataPathFor returns the metadata sidecar path of an outline JSON file.
func MetadataPathFor(outlinePath string) string {
	return strings.TrimSuffix(outlinePath, ".json") + "_metadata.json"
}

// LoadMetadata reads the sidecar written next to outlinePath.
func LoadMetadata(outlinePath string) (*Metadata, error) {
	data, err := os.ReadFile(MetadataPathFor(outlinePath))
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", MetadataPathFor(outlinePath), err)
	}
	return &m, nil
}

// gateError builds the gate failure for a report, or nil when it passes.
func gateError(path string, r quality.Report) error {
	if r.ValidForDownstream() {
		return nil
	}
	var reasons []string
	if r.Score < quality.DownstreamMinScore {
		reasons = append(reasons, fmt.Sprintf("score below %d", quality.DownstreamMinScore))
	}
	for _, is := range r.Progression {
		if is.Kind == quality.KindAdvancedEarly {
			reasons = append(reasons, is.Message)
		}
	}
	return &QualityGateError{Path: path, Score: r.Score, Label: r.Label, Reasons: reasons}
}

// GateError returns a *QualityGateError when the generated outline fails
// the downstream quality bar.
func (r *Result) GateError() error {
	return gateError(r.JSONPath, r.Report)
}

// CheckGate applies the quality bar recorded in the outline's metadata
// sidecar. Outlines without a sidecar were not produced by stage 1 and
// pass unchecked.
func CheckGate(outlinePath string) error {
	m, err := LoadMetadata(outlinePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	v := m.Validation
	if v.ValidForDownstream {
		return nil
	}
	reasons := v.Issues
	if len(reasons) == 0 {
		reasons = []string{fmt.Sprintf("score below %d", quality.DownstreamMinScore)}
	}
	return &QualityGateError{Path: outlinePath, Score: v.QualityScore, Label: v.QualityLevel, Reasons: reasons}
}
