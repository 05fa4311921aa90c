package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bootlatch/internal/embedded"
)

// Scenario is one boot scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// ActivationID fixes the journal activation id. Defaults to
	// testutil.DefaultActivationID.
	ActivationID string `yaml:"activation_id,omitempty"`

	// Environment is registered under config:environment as a raw map.
	Environment map[string]any `yaml:"environment,omitempty"`

	// EnvironmentFile is loaded with envconfig and registered as a typed
	// snapshot instead. Relative paths resolve against the scenario file.
	EnvironmentFile string `yaml:"environment_file,omitempty"`

	// Resume lists the resume calls made after the initializers ran.
	Resume []ResumeStep `yaml:"resume,omitempty"`

	// Expect is checked against the host once the resume calls are done.
	Expect ExpectClause `yaml:"expect"`
}

// ResumeStep is one call of the attached resume function.
type ResumeStep struct {
	// Overrides is passed to the resume function. Omitted means no argument.
	Overrides map[string]any `yaml:"overrides,omitempty"`
}

// ExpectClause lists the expected end state. Unset fields are not checked.
type ExpectClause struct {
	State            string         `yaml:"state,omitempty"`
	Booted           *bool          `yaml:"booted,omitempty"`
	Deferrals        *int           `yaml:"deferrals,omitempty"`
	Resumable        *bool          `yaml:"resumable,omitempty"`
	ConfigRegistered *bool          `yaml:"config_registered,omitempty"`
	Config           map[string]any `yaml:"config,omitempty"`

	// Trace is the exact sequence of event kinds the journal must hold.
	Trace []string `yaml:"trace,omitempty"`
}

var validStates = []embedded.State{
	embedded.StateInit,
	embedded.StateImmediate,
	embedded.StateDeferred,
	embedded.StateResumed,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos like "resumes:" fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.EnvironmentFile != "" && !filepath.IsAbs(scenario.EnvironmentFile) {
		scenario.EnvironmentFile = filepath.Join(filepath.Dir(path), scenario.EnvironmentFile)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Environment == nil && s.EnvironmentFile == "":
		return fmt.Errorf("environment or environment_file is required (use {} for an empty environment)")
	case s.Environment != nil && s.EnvironmentFile != "":
		return fmt.Errorf("environment and environment_file are mutually exclusive")
	}

	if s.EnvironmentFile != "" {
		if _, err := os.Stat(s.EnvironmentFile); os.IsNotExist(err) {
			return fmt.Errorf("environment file not found: %s", s.EnvironmentFile)
		}
	}

	if s.Expect.State != "" && !slices.Contains(validStates, embedded.State(s.Expect.State)) {
		return fmt.Errorf("expect.state: unknown state %q", s.Expect.State)
	}

	return nil
}
