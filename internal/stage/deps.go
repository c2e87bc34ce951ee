package stage

import (
	"context"

	"bidline/internal/discover"
	"bidline/internal/domain"
	"bidline/internal/gen"
	"bidline/internal/knowledge"
)

// FeedSearcher is the discovery stage's view of the notice feed.
type FeedSearcher interface {
	Configured() bool
	Search(ctx context.Context, q discover.Query) ([]discover.Notice, error)
}

// KnowledgeSearcher retrieves grounding snippets for proposal stages.
type KnowledgeSearcher = knowledge.Searcher

// TextGenerator produces narrative prose for drafting stages.
type TextGenerator = gen.Generator

// ScoreRecorder persists screening scores.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, score domain.BidScore) error
}
