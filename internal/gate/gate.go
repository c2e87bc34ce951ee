// Package gate maps pipeline stages to the human approval checkpoints that
// follow them.
package gate

import (
	"bidline/internal/config"
	"bidline/internal/domain"
)

// Controller decides which gates are active for a run.
type Controller struct {
	cfg config.GateConfig
}

func NewController(cfg config.GateConfig) Controller {
	return Controller{cfg: cfg}
}

// After returns the gate that sits immediately after a stage, if any. The
// first gate follows screening; the second follows pricing.
func (c Controller) After(s domain.Stage) (domain.Gate, bool) {
	switch s {
	case domain.StageScreening:
		if c.cfg.RequireFirstGate {
			return domain.GateFirst, true
		}
	case domain.StagePricing:
		if c.cfg.RequireSecondGate {
			return domain.GateSecond, true
		}
	}
	return "", false
}

// Requires reports whether a gate is enabled at all.
func (c Controller) Requires(g domain.Gate) bool {
	switch g {
	case domain.GateFirst:
		return c.cfg.RequireFirstGate
	case domain.GateSecond:
		return c.cfg.RequireSecondGate
	}
	return false
}

// Valid reports whether g names a known gate.
func Valid(g domain.Gate) bool {
	return g == domain.GateFirst || g == domain.GateSecond
}
