package signals_test

import (
	"testing"
	"time"

	"bidline/internal/config"
	"bidline/internal/domain"
	"bidline/internal/signals"
)

func testTriager() signals.Triager {
	cfg := config.Default("Test Federal LLC")
	tr := signals.New(cfg.Company, cfg.Signals)
	tr.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return tr
}

func ptr[T any](v T) *T { return &v }

func TestHotLeadComposite(t *testing.T) {
	tr := testTriager()
	sig := tr.Triage(signals.Raw{
		Type:           domain.SignalSourcesSought,
		Title:          "Sources sought for cyber operations support",
		Agency:         "Department of Veterans Affairs",
		NAICSCode:      "541512",
		SetAside:       "SDVOSB",
		EstimatedValue: ptr(2_000_000.0),
		SignalDate:     "2025-05-30T00:00:00Z",
	})
	// 30 NAICS + 25 set-aside + 20 agency + 15 sources sought + 10 sweet spot
	if sig.Composite != 100 {
		t.Fatalf("expected composite 100, got %.1f", sig.Composite)
	}
	if !sig.HotLead {
		t.Fatalf("expected hot lead at composite %.1f", sig.Composite)
	}
}

func TestComponentsWhenNothingMatches(t *testing.T) {
	tr := testTriager()
	sig := tr.Triage(signals.Raw{
		Type:       "market_survey",
		Title:      "Janitorial services survey",
		Agency:     "Bureau of Land Management",
		NAICSCode:  "561720",
		SetAside:   "WOSB",
		SignalDate: "2025-05-30T00:00:00Z",
	})
	if sig.NAICSScore != 0 || sig.SetAsideScore != 0 || sig.AgencyScore != 0 {
		t.Fatalf("expected zero match components, got %.0f/%.0f/%.0f",
			sig.NAICSScore, sig.SetAsideScore, sig.AgencyScore)
	}
	if sig.TypeScore != 5 {
		t.Fatalf("expected fallback type score 5, got %.1f", sig.TypeScore)
	}
	if sig.ValueScore != 0 {
		t.Fatalf("expected zero value score without estimate, got %.1f", sig.ValueScore)
	}
	if sig.HotLead {
		t.Fatalf("unexpected hot lead at composite %.1f", sig.Composite)
	}
}

func TestTypeTiers(t *testing.T) {
	tr := testTriager()
	cases := []struct {
		st   domain.SignalType
		want float64
	}{
		{domain.SignalSourcesSought, 15},
		{domain.SignalPreSolicitation, 12},
		{domain.SignalRFI, 10},
		{domain.SignalIndustryDay, 10},
		{domain.SignalExpiringContract, 8},
	}
	for _, tc := range cases {
		sig := tr.Triage(signals.Raw{Type: tc.st, Title: "x", Agency: "x", SignalDate: "2025-05-30T00:00:00Z"})
		if sig.TypeScore != tc.want {
			t.Fatalf("%s: expected type score %.0f, got %.1f", tc.st, tc.want, sig.TypeScore)
		}
	}
}

func TestValueBands(t *testing.T) {
	tr := testTriager()
	cases := []struct {
		value float64
		want  float64
	}{
		{5_000_000, 10}, // in sweet spot
		{50_000_000, 5}, // above
		{50_000, 3},     // below
	}
	for _, tc := range cases {
		sig := tr.Triage(signals.Raw{
			Type: domain.SignalRFI, Title: "x", Agency: "x",
			EstimatedValue: ptr(tc.value),
			SignalDate:     "2025-05-30T00:00:00Z",
		})
		if sig.ValueScore != tc.want {
			t.Fatalf("value %.0f: expected %.0f, got %.1f", tc.value, tc.want, sig.ValueScore)
		}
	}
}

func TestLeadTimeClasses(t *testing.T) {
	tr := testTriager()
	cases := []struct {
		expected string
		want     domain.LeadTimeClass
	}{
		{"2025-07-01T00:00:00Z", domain.LeadNear}, // 30 days
		{"2025-11-01T00:00:00Z", domain.LeadMid},  // ~150 days
		{"2026-06-01T00:00:00Z", domain.LeadFar},  // a year
	}
	for _, tc := range cases {
		sig := tr.Triage(signals.Raw{
			Type: domain.SignalSourcesSought, Title: "x", Agency: "x",
			ExpectedRFPDate: ptr(tc.expected),
			SignalDate:      "2025-05-30T00:00:00Z",
		})
		if sig.LeadTime != tc.want {
			t.Fatalf("rfp %s: expected %s, got %s", tc.expected, tc.want, sig.LeadTime)
		}
	}
}

func TestSDVOSBCertCoversVOSBSetAside(t *testing.T) {
	tr := testTriager()
	tr.Profile.SetAsideCerts = []string{"SDVOSB"}
	sig := tr.Triage(signals.Raw{
		Type: domain.SignalRFI, Title: "x", Agency: "x",
		SetAside:   "VOSB",
		SignalDate: "2025-05-30T00:00:00Z",
	})
	if sig.SetAsideScore != 25 {
		t.Fatalf("expected VOSB set-aside covered by SDVOSB cert, got %.1f", sig.SetAsideScore)
	}
}
