package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default("Acme Federal LLC")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Company.Name != "Acme Federal LLC" {
		t.Fatalf("company name = %q", cfg.Company.Name)
	}
	if got := cfg.Scoring.Sum(); got != 100 {
		t.Fatalf("default weights sum = %d", got)
	}
	if cfg.Workflow.RetryBound != 3 {
		t.Fatalf("retry bound = %d", cfg.Workflow.RetryBound)
	}
	if cfg.Collaborators.NoticeFeed.BaseURL == "" {
		t.Fatal("default notice feed base URL empty")
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("Roundtrip Inc")))
	if err != nil {
		t.Fatalf("generated default rejected: %v", err)
	}
	if cfg.Company.Name != "Roundtrip Inc" {
		t.Fatalf("company name = %q", cfg.Company.Name)
	}
}

func TestWeightSumMustBeExact(t *testing.T) {
	cfg := Default("Acme")
	cfg.Scoring.Strategic = 6
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sum to 100") {
		t.Fatalf("want weight sum error, got %v", err)
	}
}

func TestNegativeWeightRejected(t *testing.T) {
	cfg := Default("Acme")
	cfg.Scoring.SetAside = -5
	cfg.Scoring.Strategic = 35
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative weight accepted")
	}
}

func TestCompanyNameRequired(t *testing.T) {
	cfg := Default("Acme")
	cfg.Company.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty company name accepted")
	}
}

func TestUnknownStageTimeoutRejected(t *testing.T) {
	cfg := Default("Acme")
	cfg.Workflow.StageTimeouts["negotiation"] = Duration(time.Minute)
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("want unknown stage error, got %v", err)
	}
}

func TestSweetSpotBounds(t *testing.T) {
	cfg := Default("Acme")
	cfg.Signals.SweetSpotMin = 5000000
	cfg.Signals.SweetSpotMax = 100000
	if err := cfg.Validate(); err == nil {
		t.Fatal("inverted sweet spot accepted")
	}
}

func TestDurationYAML(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("750ms"), &d); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if time.Duration(d) != 750*time.Millisecond {
		t.Fatalf("got %v", time.Duration(d))
	}
	out, err := yaml.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.TrimSpace(string(out)) != "750ms" {
		t.Fatalf("marshaled %q", out)
	}
	if err := yaml.Unmarshal([]byte("not-a-duration"), &d); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestDurationJSON(t *testing.T) {
	d := Duration(30 * time.Second)
	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Duration
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != d {
		t.Fatalf("round trip %v != %v", back, d)
	}
}

func TestTimeoutFor(t *testing.T) {
	w := WorkflowConfig{
		StageTimeout:  Duration(2 * time.Minute),
		StageTimeouts: map[string]Duration{"submission": Duration(5 * time.Minute)},
	}
	if got := w.TimeoutFor("submission"); got != 5*time.Minute {
		t.Fatalf("submission timeout = %v", got)
	}
	if got := w.TimeoutFor("drafting"); got != 2*time.Minute {
		t.Fatalf("drafting timeout = %v", got)
	}
	if got := (WorkflowConfig{}).TimeoutFor("drafting"); got != 2*time.Minute {
		t.Fatalf("fallback timeout = %v", got)
	}
}

func TestLoadOptionalMissing(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil config for empty workspace")
	}
}

func TestLoadMissingMentionsImport(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "config import") {
		t.Fatalf("want import hint, got %v", err)
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bidline.yml"), []byte(GenerateDefault("Disk Co")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Company.Name != "Disk Co" {
		t.Fatalf("company name = %q", cfg.Company.Name)
	}
}
