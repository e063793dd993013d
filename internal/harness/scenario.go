package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: enrollments, a flow of
// session operations and assertions on the resulting audit log.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides verifier settings for this scenario.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Setup enrolls identities before the flow. Setup steps must succeed.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Flow drives verification sessions.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final audit log and enrollment state.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig holds the verifier settings a scenario may override.
// Zero values keep the defaults.
type ScenarioConfig struct {
	Tolerance     float64       `yaml:"tolerance,omitempty"`
	MaxFrames     int           `yaml:"max_frames,omitempty"`
	FrameTimeout  time.Duration `yaml:"frame_timeout,omitempty"`
	SessionTTL    time.Duration `yaml:"session_ttl,omitempty"`
	MaxEmbeddings int           `yaml:"max_embeddings,omitempty"`
}

// SetupStep enrolls one identity.
type SetupStep struct {
	// Enroll is one of fingerprint, face or register.
	Enroll    string    `yaml:"enroll"`
	Identity  string    `yaml:"identity"`
	Sample    []float64 `yaml:"sample,omitempty"`
	Embedding []float64 `yaml:"embedding,omitempty"`
}

// FlowStep is one session operation.
type FlowStep struct {
	// Do is the step kind: start, fingerprint, face, abandon, advance or sweep.
	Do string `yaml:"do"`

	// Identity is the identity to verify (start).
	Identity string `yaml:"identity,omitempty"`

	// Sample is the live fingerprint sample (fingerprint).
	Sample []float64 `yaml:"sample,omitempty"`

	// Faces lists the embeddings detected in the frame (face).
	Faces [][]float64 `yaml:"faces,omitempty"`

	// Repeat submits the same frame this many times (face). Defaults to 1;
	// stops early once the session is terminal.
	Repeat int `yaml:"repeat,omitempty"`

	// Duration is how far to move the clock (advance).
	Duration time.Duration `yaml:"duration,omitempty"`

	// Expect validates the session after the step.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected session after a step. Only the
// fields that are set are checked.
type ExpectClause struct {
	State       string `yaml:"state,omitempty"`
	Reason      string `yaml:"reason,omitempty"`
	Fingerprint string `yaml:"fingerprint,omitempty"`
	Face        string `yaml:"face,omitempty"`
	Frames      *int   `yaml:"frames,omitempty"`

	// Error is the expected operation error code, e.g. INVALID_STATE.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final audit log or enrollment state.
type Assertion struct {
	// Type is one of audit_count, audit_entry, chain_valid or identity.
	Type string `yaml:"type"`

	// Identity filters audit_count and selects the identity summary.
	Identity string `yaml:"identity,omitempty"`

	// Count is the expected number of records (audit_count).
	Count int `yaml:"count,omitempty"`

	// Seq selects the record (audit_entry).
	Seq int64 `yaml:"seq,omitempty"`

	// Expect contains expected field values (audit_entry, identity).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Setup step kinds.
const (
	EnrollFingerprint = "fingerprint"
	EnrollFace        = "face"
	EnrollRegister    = "register"
)

// Flow step kinds.
const (
	DoStart       = "start"
	DoFingerprint = "fingerprint"
	DoFace        = "face"
	DoAbandon     = "abandon"
	DoAdvance     = "advance"
	DoSweep       = "sweep"
)

// Assertion type constants.
const (
	AssertAuditCount = "audit_count"
	AssertAuditEntry = "audit_entry"
	AssertChainValid = "chain_valid"
	AssertIdentity   = "identity"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if step.Identity == "" {
			return fmt.Errorf("setup[%d]: identity is required", i)
		}
		switch step.Enroll {
		case EnrollFingerprint:
			if len(step.Sample) == 0 {
				return fmt.Errorf("setup[%d]: sample is required", i)
			}
		case EnrollFace:
			if len(step.Embedding) == 0 {
				return fmt.Errorf("setup[%d]: embedding is required", i)
			}
		case EnrollRegister:
			if len(step.Sample) == 0 || len(step.Embedding) == 0 {
				return fmt.Errorf("setup[%d]: sample and embedding are required", i)
			}
		default:
			return fmt.Errorf("setup[%d]: unknown enroll kind %q", i, step.Enroll)
		}
	}

	started := false
	for i, step := range s.Flow {
		switch step.Do {
		case DoStart:
			if step.Identity == "" {
				return fmt.Errorf("flow[%d]: identity is required for start", i)
			}
			started = true
		case DoFingerprint, DoFace, DoAbandon:
			if !started {
				return fmt.Errorf("flow[%d]: %s before any start", i, step.Do)
			}
			if step.Repeat < 0 {
				return fmt.Errorf("flow[%d]: repeat must be non-negative", i)
			}
		case DoAdvance:
			if step.Duration <= 0 {
				return fmt.Errorf("flow[%d]: duration must be positive for advance", i)
			}
		case DoSweep:
		default:
			return fmt.Errorf("flow[%d]: unknown step %q", i, step.Do)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertAuditCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for audit_count", index)
		}
	case AssertAuditEntry:
		if a.Seq <= 0 {
			return fmt.Errorf("assertions[%d]: seq is required for audit_entry", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for audit_entry", index)
		}
	case AssertChainValid:
	case AssertIdentity:
		if a.Identity == "" {
			return fmt.Errorf("assertions[%d]: identity is required for identity", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for identity", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
