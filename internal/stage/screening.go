package stage

import (
	"context"
	"fmt"

	"bidline/internal/domain"
	"bidline/internal/scoring"
)

// ScreeningArtifact is the bid/no-bid verdict surfaced to the first gate.
type ScreeningArtifact struct {
	Score          domain.BidScore `json:"score"`
	Recommendation string          `json:"recommendation"`
	HighPriority   bool            `json:"high_priority"`
}

// ScreeningExecutor runs the scoring engine and records the score as a
// durable artifact. The gate reviewer sees the recommendation; screening
// itself never rejects.
type ScreeningExecutor struct {
	Scores ScoreRecorder
	// Clock overrides the scoring engine's clock in tests.
	Clock func() scoring.Engine
}

func (e *ScreeningExecutor) Stage() domain.Stage { return domain.StageScreening }
func (e *ScreeningExecutor) Idempotent() bool    { return true }

func (e *ScreeningExecutor) Execute(ctx context.Context, sc *Context) (Result, error) {
	if sc.Config == nil {
		return Result{}, Fatalf("screening requires loaded config")
	}
	eng := scoring.New(sc.Config.Company, sc.Config.Scoring)
	if e.Clock != nil {
		eng = e.Clock()
	}
	score := eng.Score(sc.Opportunity)

	if e.Scores != nil {
		if err := e.Scores.RecordScore(ctx, score); err != nil {
			return Result{}, Transient(fmt.Errorf("record score: %w", err))
		}
	}

	opp := sc.Opportunity
	opp.Status = domain.OppScreening
	return Result{
		Artifact: ScreeningArtifact{
			Score:          score,
			Recommendation: score.Recommendation,
			HighPriority:   score.HighPriority,
		},
		OpportunityUpdate: &opp,
	}, nil
}
