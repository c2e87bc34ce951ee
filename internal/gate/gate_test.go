package gate_test

import (
	"testing"

	"bidline/internal/config"
	"bidline/internal/domain"
	"bidline/internal/gate"
)

func TestGatePlacement(t *testing.T) {
	c := gate.NewController(config.GateConfig{RequireFirstGate: true, RequireSecondGate: true})

	g, ok := c.After(domain.StageScreening)
	if !ok || g != domain.GateFirst {
		t.Fatalf("expected first gate after screening, got %s/%v", g, ok)
	}
	g, ok = c.After(domain.StagePricing)
	if !ok || g != domain.GateSecond {
		t.Fatalf("expected second gate after pricing, got %s/%v", g, ok)
	}
	for _, st := range []domain.Stage{domain.StageDiscovery, domain.StageSolicitationReview, domain.StageDrafting, domain.StageCommunications, domain.StageSubmission} {
		if _, ok := c.After(st); ok {
			t.Fatalf("unexpected gate after %s", st)
		}
	}
}

func TestDisabledGates(t *testing.T) {
	c := gate.NewController(config.GateConfig{RequireFirstGate: false, RequireSecondGate: true})
	if _, ok := c.After(domain.StageScreening); ok {
		t.Fatalf("disabled first gate should not block")
	}
	if !c.Requires(domain.GateSecond) {
		t.Fatalf("second gate should be required")
	}
	if c.Requires(domain.GateFirst) {
		t.Fatalf("first gate should not be required")
	}
}

func TestValidGateNames(t *testing.T) {
	if !gate.Valid(domain.GateFirst) || !gate.Valid(domain.GateSecond) {
		t.Fatalf("known gates must validate")
	}
	if gate.Valid("pink-team") {
		t.Fatalf("unknown gate accepted")
	}
}
