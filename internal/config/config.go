package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models bidline.yml.
type Config struct {
	Company       CompanyProfile `yaml:"company"`
	Gates         GateConfig     `yaml:"gates"`
	Scoring       ScoringWeights `yaml:"scoring"`
	Signals       SignalConfig   `yaml:"signals"`
	Workflow      WorkflowConfig `yaml:"workflow"`
	Collaborators Collaborators  `yaml:"collaborators"`
}

// CompanyProfile captures the certifications and targeting the scorers need.
type CompanyProfile struct {
	Name               string   `yaml:"name"`
	SetAsideCerts      []string `yaml:"set_aside_certs"`
	AllowedNAICS       []string `yaml:"allowed_naics"`
	AllowedPSC         []string `yaml:"allowed_psc"`
	TargetAgencies     []string `yaml:"target_agencies"`
	CapabilityKeywords []string `yaml:"capability_keywords"`
}

// GateConfig controls which approval gates block the pipeline.
type GateConfig struct {
	RequireFirstGate  bool `yaml:"require_first_gate"`
	RequireSecondGate bool `yaml:"require_second_gate"`
}

// ScoringWeights are integer percentages; they must sum to exactly 100.
type ScoringWeights struct {
	SetAside    int `yaml:"set_aside"`
	Scope       int `yaml:"scope"`
	Timeline    int `yaml:"timeline"`
	Competition int `yaml:"competition"`
	Staffing    int `yaml:"staffing"`
	Pricing     int `yaml:"pricing"`
	Strategic   int `yaml:"strategic"`
}

// Sum returns the total of all seven weights.
func (w ScoringWeights) Sum() int {
	return w.SetAside + w.Scope + w.Timeline + w.Competition + w.Staffing + w.Pricing + w.Strategic
}

// SignalConfig tunes early-signal triage.
type SignalConfig struct {
	SweetSpotMin float64 `yaml:"sweet_spot_min"`
	SweetSpotMax float64 `yaml:"sweet_spot_max"`
}

// Duration wraps time.Duration so YAML values like "500ms" parse.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON renders the duration as a string for DB-stored config.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Duration(d).String())), nil
}

// UnmarshalJSON parses a quoted Go duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// WorkflowConfig tunes retry, backoff and stage timeouts.
type WorkflowConfig struct {
	RetryBound           int                 `yaml:"retry_bound"`
	BackoffBase          Duration            `yaml:"backoff_base"`
	BackoffMax           Duration            `yaml:"backoff_max"`
	StageTimeout         Duration            `yaml:"stage_timeout"`
	StageTimeouts        map[string]Duration `yaml:"stage_timeouts"`
	ParallelDraftPricing bool                `yaml:"parallel_draft_pricing"`
}

// TimeoutFor returns the timeout for a stage, falling back to the default.
func (w WorkflowConfig) TimeoutFor(stage string) time.Duration {
	if d, ok := w.StageTimeouts[stage]; ok && d > 0 {
		return time.Duration(d)
	}
	if w.StageTimeout > 0 {
		return time.Duration(w.StageTimeout)
	}
	return 2 * time.Minute
}

// Collaborators holds the endpoints of the external services the stage
// executors call. All are optional; absent services disable their stages'
// live behavior (tests use fakes).
type Collaborators struct {
	NoticeFeed ServiceEndpoint `yaml:"notice_feed"`
	Retrieval  ServiceEndpoint `yaml:"retrieval"`
	Generation ServiceEndpoint `yaml:"generation"`
}

// ServiceEndpoint is a base URL plus credential for one collaborator.
type ServiceEndpoint struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Load reads and validates config from a workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with bl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure. A weight set that
// does not sum to 100 is rejected here, at load time.
func (c *Config) Validate() error {
	if c.Company.Name == "" {
		return fmt.Errorf("config.company.name is required")
	}
	weights := []struct {
		name  string
		value int
	}{
		{"set_aside", c.Scoring.SetAside},
		{"scope", c.Scoring.Scope},
		{"timeline", c.Scoring.Timeline},
		{"competition", c.Scoring.Competition},
		{"staffing", c.Scoring.Staffing},
		{"pricing", c.Scoring.Pricing},
		{"strategic", c.Scoring.Strategic},
	}
	for _, w := range weights {
		if w.value < 0 {
			return fmt.Errorf("config.scoring.%s must not be negative", w.name)
		}
	}
	if sum := c.Scoring.Sum(); sum != 100 {
		return fmt.Errorf("config.scoring weights must sum to 100, got %d", sum)
	}
	if c.Signals.SweetSpotMin < 0 || c.Signals.SweetSpotMax < 0 {
		return fmt.Errorf("config.signals sweet spot bounds must not be negative")
	}
	if c.Signals.SweetSpotMax > 0 && c.Signals.SweetSpotMin > c.Signals.SweetSpotMax {
		return fmt.Errorf("config.signals.sweet_spot_min exceeds sweet_spot_max")
	}
	if c.Workflow.RetryBound < 0 {
		return fmt.Errorf("config.workflow.retry_bound must not be negative")
	}
	for stage := range c.Workflow.StageTimeouts {
		switch stage {
		case "discovery", "screening", "solicitation_review", "drafting", "pricing", "communications", "submission":
		default:
			return fmt.Errorf("config.workflow.stage_timeouts references unknown stage %s", stage)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bidline.yml")
}

// Default returns the default Config for a company.
func Default(companyName string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, companyName)), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(companyName string) string {
	return fmt.Sprintf(defaultTemplate, companyName)
}

const defaultTemplate = `company:
  name: %s
  set_aside_certs: [SDVOSB, VOSB, SB]
  allowed_naics: ["541511", "541512", "541513", "541519", "541611", "541690", "518210"]
  allowed_psc: [D301, D302, D307, D308, D310, D318, R408, R410, R499]
  target_agencies: [VA, DoD, DHS, HHS, DOJ, USDA]
  capability_keywords:
    - zero trust
    - cybersecurity
    - information security
    - data management
    - it services
    - help desk
    - program management

gates:
  require_first_gate: true
  require_second_gate: true

scoring:
  set_aside: 25
  scope: 25
  timeline: 15
  competition: 10
  staffing: 10
  pricing: 10
  strategic: 5

signals:
  sweet_spot_min: 100000
  sweet_spot_max: 10000000

workflow:
  retry_bound: 3
  backoff_base: 500ms
  backoff_max: 30s
  stage_timeout: 2m
  stage_timeouts:
    submission: 5m
  parallel_draft_pricing: false

collaborators:
  notice_feed:
    base_url: https://api.sam.gov
  retrieval:
    base_url: ""
  generation:
    base_url: ""
`
