package scoring_test

import (
	"testing"
	"time"

	"bidline/internal/config"
	"bidline/internal/domain"
	"bidline/internal/scoring"
)

func testEngine() scoring.Engine {
	cfg := config.Default("Test Federal LLC")
	eng := scoring.New(cfg.Company, cfg.Scoring)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return eng
}

func ptr[T any](v T) *T { return &v }

func TestStrongMatchRecommendsBid(t *testing.T) {
	eng := testEngine()
	score := eng.Score(domain.Opportunity{
		ID:                 "opp-1",
		SolicitationNumber: "36C10B25R0001",
		Title:              "Cybersecurity support services",
		Description:        "zero trust architecture and information security operations",
		Agency:             "Department of Veterans Affairs",
		NAICSCode:          "541512",
		PSCCode:            "D310",
		SetAside:           "SDVOSB",
		ResponseDeadline:   ptr("2025-07-15T17:00:00Z"),
		EstimatedValue:     ptr(2_000_000.0),
		PlaceOfPerformance: "Remote",
	})
	if score.Recommendation != domain.RecommendBid {
		t.Fatalf("expected BID, got %s (total %.1f)", score.Recommendation, score.Total)
	}
	if !score.IsVAProcurement {
		t.Fatalf("expected VA procurement flag")
	}
	if !score.RequiresVetCert {
		t.Fatalf("expected VetCert flag for VA SDVOSB set-aside")
	}
	if score.SetAside != 100 {
		t.Fatalf("expected set-aside 100, got %.1f", score.SetAside)
	}
}

func TestIneligibleSetAsideForcesNoBid(t *testing.T) {
	eng := testEngine()
	eng.Profile.SetAsideCerts = nil
	score := eng.Score(domain.Opportunity{
		ID:               "opp-2",
		Title:            "Cybersecurity support",
		Agency:           "Department of Veterans Affairs",
		NAICSCode:        "541512",
		PSCCode:          "D310",
		SetAside:         "SDVOSB",
		ResponseDeadline: ptr("2025-09-15T17:00:00Z"),
		EstimatedValue:   ptr(2_000_000.0),
		TeamingEligible:  false,
	})
	if score.SetAside != 0 {
		t.Fatalf("expected set-aside 0 without cert, got %.1f", score.SetAside)
	}
	if score.Recommendation != domain.RecommendNoBid {
		t.Fatalf("expected forced NO_BID, got %s (total %.1f)", score.Recommendation, score.Total)
	}
}

func TestTeamingEligibilityLiftsOverride(t *testing.T) {
	eng := testEngine()
	eng.Profile.SetAsideCerts = nil
	opp := domain.Opportunity{
		ID:               "opp-3",
		Title:            "Cybersecurity support",
		Description:      "zero trust information security data management",
		Agency:           "Department of Veterans Affairs",
		NAICSCode:        "541512",
		PSCCode:          "D310",
		SetAside:         "SDVOSB",
		ResponseDeadline: ptr("2025-09-15T17:00:00Z"),
		EstimatedValue:   ptr(2_000_000.0),
		TeamingEligible:  true,
	}
	score := eng.Score(opp)
	if score.Recommendation == domain.RecommendNoBid && score.Total >= 40 {
		t.Fatalf("teaming-eligible opportunity should not be force-rejected (total %.1f)", score.Total)
	}
}

func TestMissingInputsDefaultNeutral(t *testing.T) {
	eng := testEngine()
	score := eng.Score(domain.Opportunity{
		ID:       "opp-4",
		Title:    "Unknown scope",
		Agency:   "General Services Administration",
		SetAside: "8(a)",
	})
	if score.Scope != 50 {
		t.Fatalf("expected neutral scope without codes, got %.1f", score.Scope)
	}
	if score.Timeline != 50 {
		t.Fatalf("expected neutral timeline without deadline, got %.1f", score.Timeline)
	}
	if score.Pricing != 50 {
		t.Fatalf("expected neutral pricing without value, got %.1f", score.Pricing)
	}
	if score.SetAside != 50 {
		t.Fatalf("expected neutral score for uncommon set-aside, got %.1f", score.SetAside)
	}
}

func TestPassedDeadlineScoresZeroTimeline(t *testing.T) {
	eng := testEngine()
	score := eng.Score(domain.Opportunity{
		ID:               "opp-5",
		Title:            "Late",
		Agency:           "HHS",
		NAICSCode:        "541511",
		ResponseDeadline: ptr("2025-05-01T17:00:00Z"),
	})
	if score.Timeline != 0 {
		t.Fatalf("expected timeline 0 for passed deadline, got %.1f", score.Timeline)
	}
}

func TestTimelineBuckets(t *testing.T) {
	eng := testEngine()
	cases := []struct {
		deadline string
		want     float64
	}{
		{"2025-06-04T00:00:00Z", 20},  // 3 days
		{"2025-06-11T00:00:00Z", 50},  // 10 days
		{"2025-06-21T00:00:00Z", 80},  // 20 days
		{"2025-08-01T00:00:00Z", 100}, // 61 days
	}
	for _, tc := range cases {
		score := eng.Score(domain.Opportunity{
			ID:               "opp-tl",
			Title:            "t",
			Agency:           "DoD",
			NAICSCode:        "541511",
			ResponseDeadline: ptr(tc.deadline),
		})
		if score.Timeline != tc.want {
			t.Fatalf("deadline %s: expected timeline %.0f, got %.1f", tc.deadline, tc.want, score.Timeline)
		}
	}
}

func TestScopeCombinesCodesAndKeywords(t *testing.T) {
	eng := testEngine()
	score := eng.Score(domain.Opportunity{
		ID:          "opp-6",
		Title:       "Help desk and program management support",
		Description: "it services for the enterprise",
		Agency:      "USDA",
		NAICSCode:   "541511",
		PSCCode:     "R408",
	})
	// 60 (NAICS) + 40 (PSC) clamps at 100 before keyword boost can matter.
	if score.Scope != 100 {
		t.Fatalf("expected scope 100, got %.1f", score.Scope)
	}
}

func TestHighValueDampensCompetitionAndPricing(t *testing.T) {
	eng := testEngine()
	score := eng.Score(domain.Opportunity{
		ID:             "opp-7",
		Title:          "Enterprise IT",
		Agency:         "DoD",
		NAICSCode:      "541512",
		SetAside:       "SB",
		EstimatedValue: ptr(75_000_000.0),
	})
	// base 50 + 20 (SB) - 20 (large contract)
	if score.Competition != 50 {
		t.Fatalf("expected competition 50, got %.1f", score.Competition)
	}
	if score.Pricing != 50 {
		t.Fatalf("expected pricing 50 for very high value, got %.1f", score.Pricing)
	}
}

func TestHighPriorityFlag(t *testing.T) {
	eng := testEngine()
	score := eng.Score(domain.Opportunity{
		ID:                 "opp-8",
		Title:              "Zero trust cybersecurity information security data management services",
		Description:        "help desk it services program management",
		Agency:             "Department of Veterans Affairs",
		NAICSCode:          "541512",
		PSCCode:            "D310",
		SetAside:           "SDVOSB",
		ResponseDeadline:   ptr("2025-08-15T17:00:00Z"),
		EstimatedValue:     ptr(200_000.0),
		PlaceOfPerformance: "Remote",
		Shapeable:          true,
	})
	if score.Total < 85 {
		t.Fatalf("expected total >= 85 for ideal opportunity, got %.1f", score.Total)
	}
	if !score.HighPriority {
		t.Fatalf("expected high priority flag")
	}
}

func TestScoreSnapshotsConfiguredWeights(t *testing.T) {
	eng := testEngine()
	score := eng.Score(domain.Opportunity{ID: "opp-11", Title: "Cyber support", Agency: "VA"})
	want := domain.ScoreWeights{SetAside: 25, Scope: 25, Timeline: 15, Competition: 10, Staffing: 10, Pricing: 10, Strategic: 5}
	if score.Weights != want {
		t.Fatalf("expected weight snapshot %+v, got %+v", want, score.Weights)
	}
}

func TestStrategicMatchesSpelledOutAgency(t *testing.T) {
	eng := testEngine()
	base := domain.Opportunity{
		ID:               "opp-10",
		Title:            "Cyber support",
		NAICSCode:        "541512",
		SetAside:         "SB",
		ResponseDeadline: ptr("2025-07-01T17:00:00Z"),
		EstimatedValue:   ptr(500_000.0),
	}

	target := base
	target.Agency = "Department of Veterans Affairs"
	if got := eng.Score(target).Strategic; got != 80 {
		t.Fatalf("expected strategic 80 for spelled-out target agency, got %.1f", got)
	}

	offTarget := base
	offTarget.Agency = "Securities and Exchange Commission"
	if got := eng.Score(offTarget).Strategic; got != 50 {
		t.Fatalf("expected neutral strategic for non-target agency, got %.1f", got)
	}
}

func TestRescoringIsDeterministic(t *testing.T) {
	eng := testEngine()
	opp := domain.Opportunity{
		ID:               "opp-9",
		Title:            "Cyber support",
		Agency:           "DHS",
		NAICSCode:        "541512",
		SetAside:         "SB",
		ResponseDeadline: ptr("2025-07-01T17:00:00Z"),
		EstimatedValue:   ptr(500_000.0),
	}
	a := eng.Score(opp)
	b := eng.Score(opp)
	if a.Total != b.Total || a.Recommendation != b.Recommendation {
		t.Fatalf("expected identical outputs: %.1f/%s vs %.1f/%s", a.Total, a.Recommendation, b.Total, b.Recommendation)
	}
}
