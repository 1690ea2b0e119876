package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Steps           []FixtureStep           `json:"steps"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig mirrors ReplayConfig with JSON tags.
type FixtureConfig struct {
	MaxDenials      int               `json:"max_denials"`
	NotifyTimeoutMS int               `json:"notify_timeout_ms,omitempty"`
	MaxWords        int               `json:"max_words,omitempty"`
	FailNotifier    bool              `json:"fail_notifier,omitempty"`
	Lexicon         *analyzer.Lexicon `json:"lexicon,omitempty"`
}

// FixtureStep mirrors Step with JSON tags.
type FixtureStep struct {
	StepID string         `json:"step_id"`
	Hook   string         `json:"hook"`
	Input  map[string]any `json:"input"`
	Parts  []string       `json:"parts,omitempty"`
}

// FixtureExpectedResult is the expected outcome of one step. Empty fields
// are not checked; Parts is the expected number of output parts when set.
type FixtureExpectedResult struct {
	StepID   string `json:"step_id"`
	Decision string `json:"decision,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
	Injected *int   `json:"injected,omitempty"`
	Parts    *int   `json:"parts,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToStep converts a FixtureStep to a Step.
func (fs *FixtureStep) ToStep() Step {
	return Step{StepID: fs.StepID, Hook: fs.Hook, Input: fs.Input, Parts: fs.Parts}
}

// ToSteps converts every fixture step.
func (f *Fixture) ToSteps() []Step {
	steps := make([]Step, len(f.Steps))
	for i := range f.Steps {
		steps[i] = f.Steps[i].ToStep()
	}
	return steps
}

// ToReplayConfig converts a FixtureConfig to a ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	if fc.MaxDenials > 0 {
		cfg.Gate.MaxDenials = fc.MaxDenials
	}
	if fc.NotifyTimeoutMS > 0 {
		cfg.Gate.NotifyTimeout = time.Duration(fc.NotifyTimeoutMS) * time.Millisecond
	}
	cfg.MaxWords = fc.MaxWords
	cfg.FailNotifier = fc.FailNotifier
	cfg.Lexicon = fc.Lexicon
	return cfg
}

// #endregion fixture-loader

// #region fixture-check

// Mismatch describes one expected result that did not hold.
type Mismatch struct {
	StepID string
	Field  string
	Want   string
	Got    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s want %s, got %s", m.StepID, m.Field, m.Want, m.Got)
}

// Check compares results against the fixture's expectations. Expected
// entries are matched by step id.
func (f *Fixture) Check(results []ReplayResult) []Mismatch {
	byID := make(map[string]ReplayResult, len(results))
	for _, r := range results {
		byID[r.StepID] = r
	}
	var out []Mismatch
	for _, exp := range f.ExpectedResults {
		got, ok := byID[exp.StepID]
		if !ok {
			out = append(out, Mismatch{StepID: exp.StepID, Field: "step", Want: "present", Got: "missing"})
			continue
		}
		if exp.Decision != "" && exp.Decision != got.Decision {
			out = append(out, Mismatch{StepID: exp.StepID, Field: "decision", Want: exp.Decision, Got: got.Decision})
		}
		if exp.Attempt != 0 && exp.Attempt != got.Attempt {
			out = append(out, Mismatch{StepID: exp.StepID, Field: "attempt", Want: fmt.Sprint(exp.Attempt), Got: fmt.Sprint(got.Attempt)})
		}
		if exp.Injected != nil && *exp.Injected != got.Injected {
			out = append(out, Mismatch{StepID: exp.StepID, Field: "injected", Want: fmt.Sprint(*exp.Injected), Got: fmt.Sprint(got.Injected)})
		}
		if exp.Parts != nil && *exp.Parts != len(got.Parts) {
			out = append(out, Mismatch{StepID: exp.StepID, Field: "parts", Want: fmt.Sprint(*exp.Parts), Got: fmt.Sprint(len(got.Parts))})
		}
	}
	return out
}

// #endregion fixture-check
