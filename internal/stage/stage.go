// Package stage defines the pipeline's stage executors. Each executor turns
// an opportunity plus prior artifacts into new artifacts; the orchestrator
// owns sequencing, retries, and persistence.
package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"bidline/internal/config"
	"bidline/internal/domain"
)

// Context carries everything an executor may read. Artifacts holds the
// accumulated outputs of previously completed stages, keyed by stage name.
type Context struct {
	Opportunity domain.Opportunity
	State       domain.WorkflowState
	Config      *config.Config
	Artifacts   map[string]json.RawMessage
}

// Artifact unmarshals a prior stage's output into v. Missing artifacts are
// reported, not defaulted.
func (c *Context) Artifact(stage domain.Stage, v any) error {
	raw, ok := c.Artifacts[string(stage)]
	if !ok {
		return fmt.Errorf("artifact for stage %s not present", stage)
	}
	return json.Unmarshal(raw, v)
}

// Result is an executor's output. Artifact is stored under the stage's name;
// OpportunityUpdate, when non-nil, replaces the stored opportunity row.
type Result struct {
	Artifact          any
	OpportunityUpdate *domain.Opportunity
}

// Executor runs one pipeline stage. Execute must honor ctx cancellation;
// non-idempotent executors are never retried after a timeout.
type Executor interface {
	Stage() domain.Stage
	Idempotent() bool
	Execute(ctx context.Context, sc *Context) (Result, error)
}

// Set maps every pipeline stage to its executor.
type Set struct {
	executors map[domain.Stage]Executor
}

// NewSet builds a registry, rejecting duplicates and requiring an executor
// for every stage in the pipeline.
func NewSet(executors ...Executor) (*Set, error) {
	s := &Set{executors: make(map[domain.Stage]Executor, len(executors))}
	for _, ex := range executors {
		if _, dup := s.executors[ex.Stage()]; dup {
			return nil, fmt.Errorf("duplicate executor for stage %s", ex.Stage())
		}
		s.executors[ex.Stage()] = ex
	}
	for _, st := range domain.StageOrder {
		if _, ok := s.executors[st]; !ok {
			return nil, fmt.Errorf("no executor for stage %s", st)
		}
	}
	return s, nil
}

// For returns the executor for a stage.
func (s *Set) For(st domain.Stage) (Executor, bool) {
	ex, ok := s.executors[st]
	return ex, ok
}

// Deps bundles the collaborators the default executor set needs.
type Deps struct {
	Feed      FeedSearcher
	Knowledge KnowledgeSearcher
	Generator TextGenerator
	Scores    ScoreRecorder
}

// DefaultSet wires the seven production executors.
func DefaultSet(deps Deps) (*Set, error) {
	return NewSet(
		&DiscoveryExecutor{Feed: deps.Feed},
		&ScreeningExecutor{Scores: deps.Scores},
		&ReviewExecutor{Knowledge: deps.Knowledge, Generator: deps.Generator},
		&DraftingExecutor{Knowledge: deps.Knowledge, Generator: deps.Generator},
		&PricingExecutor{},
		&CommunicationsExecutor{Generator: deps.Generator},
		&SubmissionExecutor{},
	)
}
