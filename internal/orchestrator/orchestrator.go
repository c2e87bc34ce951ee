// Package orchestrator drives opportunities through the capture pipeline:
// stage execution with bounded retries, approval gates, and a durable audit
// trail. All workflow state lives in the database; every mutation and its
// event commit in one transaction.
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bidline/internal/config"
	"bidline/internal/discover"
	"bidline/internal/domain"
	"bidline/internal/events"
	"bidline/internal/gate"
	"bidline/internal/repo"
	"bidline/internal/scoring"
	"bidline/internal/signals"
	"bidline/internal/stage"
)

// ErrAutoApproveMismatch is returned when a running workflow is restarted
// with a different auto-approve setting. The flag is fixed for the life of a
// run.
var ErrAutoApproveMismatch = errors.New("workflow already started with a different auto-approve setting")

// ErrGateNotPending is returned when resolving a gate that is not waiting.
var ErrGateNotPending = errors.New("gate is not pending")

// ErrInterrupted is returned by Advance when a concurrent Abort cancels the
// run. The in-flight stage result is discarded; the abort writes the
// terminal state once it acquires the workflow lock.
var ErrInterrupted = errors.New("advance interrupted by abort")

// Orchestrator owns all workflow mutation. One instance serves the CLI and
// the HTTP API; per-opportunity locking keeps concurrent advances safe.
type Orchestrator struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Stages *stage.Set
	Gates  gate.Controller
	Now    func() time.Time
	// Sleep waits out retry backoff; injectable so tests do not stall.
	Sleep func(ctx context.Context, d time.Duration)

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	cancels  map[string]context.CancelFunc
	aborting map[string]bool
}

func New(db *sql.DB, cfg *config.Config, set *stage.Set) *Orchestrator {
	return &Orchestrator{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Stages:  set,
		Gates:   gate.NewController(cfg.Gates),
		Now:     time.Now,
		Sleep:   sleepCtx,
		locks:    make(map[string]*sync.Mutex),
		cancels:  make(map[string]context.CancelFunc),
		aborting: make(map[string]bool),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// lockFor returns the mutex serializing all workflow mutation for one
// opportunity.
func (o *Orchestrator) lockFor(opportunityID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[opportunityID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[opportunityID] = l
	}
	return l
}

func (o *Orchestrator) setCancel(opportunityID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[opportunityID] = cancel
}

func (o *Orchestrator) clearCancel(opportunityID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, opportunityID)
}

// requestAbort flags the workflow and cancels any registered advance. The
// flag covers the window before an in-progress Advance has registered its
// cancel func.
func (o *Orchestrator) requestAbort(opportunityID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aborting[opportunityID] = true
	if cancel, ok := o.cancels[opportunityID]; ok {
		cancel()
	}
}

func (o *Orchestrator) abortRequested(opportunityID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aborting[opportunityID]
}

func (o *Orchestrator) finishAbort(opportunityID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.aborting, opportunityID)
}

// AdvanceResult reports how far one Advance call got.
type AdvanceResult struct {
	Outcome domain.Outcome       `json:"outcome"`
	Stage   domain.Stage         `json:"stage,omitempty"`
	Gate    domain.Gate          `json:"gate,omitempty"`
	State   domain.WorkflowState `json:"state"`
}

// scoreSink adapts the repo for the screening stage's score persistence.
type scoreSink struct {
	r repo.Repo
}

func (s scoreSink) RecordScore(ctx context.Context, score domain.BidScore) error {
	return s.r.InsertBidScore(ctx, nil, score)
}

// NewScoreSink returns the ScoreRecorder the screening executor persists
// through.
func NewScoreSink(db *sql.DB) stage.ScoreRecorder {
	return scoreSink{r: repo.Repo{DB: db}}
}

// Start creates (or idempotently re-enters) the workflow for an opportunity.
// The auto-approve flag is fixed when the workflow record is created;
// restarting with a different value is rejected.
func (o *Orchestrator) Start(ctx context.Context, opportunityID string, autoApprove bool, actorID string) (domain.WorkflowState, error) {
	l := o.lockFor(opportunityID)
	l.Lock()
	defer l.Unlock()

	opp, err := o.Repo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	if opp.Archived {
		return domain.WorkflowState{}, fmt.Errorf("opportunity %s is archived", opportunityID)
	}

	existing, err := o.Repo.GetWorkflow(ctx, opportunityID)
	if err == nil {
		if existing.AutoApprove != autoApprove {
			return domain.WorkflowState{}, ErrAutoApproveMismatch
		}
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.WorkflowState{}, err
	}

	now := o.now().UTC().Format(time.RFC3339)
	w := domain.WorkflowState{
		OpportunityID: opportunityID,
		Status:        domain.WorkflowRunning,
		CurrentStage:  domain.StageDiscovery,
		AutoApprove:   autoApprove,
		Artifacts:     map[string]json.RawMessage{},
		StartedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.InsertWorkflowTx(ctx, tx, w); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := o.Events.Append(ctx, tx, "workflow.started", opportunityID, "workflow", opportunityID, actorID,
		events.EventPayload{"auto_approve": autoApprove}); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkflowState{}, err
	}
	return w, nil
}

// Advance drives the workflow forward, chaining eagerly through stages until
// a gate blocks, a stage fails, the pipeline completes, or the workflow is
// already terminal. Calling Advance on a completed, aborted, or gate-blocked
// workflow is a no-op that reports the current position.
func (o *Orchestrator) Advance(ctx context.Context, opportunityID, actorID string) (AdvanceResult, error) {
	l := o.lockFor(opportunityID)
	l.Lock()
	defer l.Unlock()

	w, err := o.Repo.GetWorkflow(ctx, opportunityID)
	if err != nil {
		return AdvanceResult{}, err
	}

	// Abort cancels this context to stop the whole advance, not just the
	// current attempt. Registered for the duration of the run.
	advCtx, cancelAdvance := context.WithCancel(ctx)
	o.setCancel(opportunityID, cancelAdvance)
	defer func() {
		o.clearCancel(opportunityID)
		cancelAdvance()
	}()

	for {
		if advCtx.Err() != nil || o.abortRequested(opportunityID) {
			if ctx.Err() != nil {
				return AdvanceResult{}, ctx.Err()
			}
			return AdvanceResult{State: w}, ErrInterrupted
		}

		switch w.Status {
		case domain.WorkflowCompleted:
			return AdvanceResult{Outcome: domain.OutcomeCompleted, State: w}, nil
		case domain.WorkflowAborted:
			return AdvanceResult{Outcome: domain.OutcomeAborted, State: w}, nil
		case domain.WorkflowAwaitingApproval:
			g := domain.Gate("")
			if len(w.PendingGates) > 0 {
				g = w.PendingGates[0]
			}
			return AdvanceResult{Outcome: domain.OutcomeAwaitingApproval, Gate: g, State: w}, nil
		}

		next, ok := w.NextStage()
		if !ok {
			w, err = o.complete(ctx, &w, actorID)
			if err != nil {
				return AdvanceResult{}, err
			}
			return AdvanceResult{Outcome: domain.OutcomeCompleted, State: w}, nil
		}

		opp, err := o.Repo.GetOpportunity(ctx, opportunityID)
		if err != nil {
			return AdvanceResult{}, err
		}

		var result stage.Result
		var execErr error
		if next == domain.StageDrafting && o.Config.Workflow.ParallelDraftPricing && !w.StageDone(domain.StagePricing) {
			// Pricing is self-contained, so it can overlap drafting when
			// the config opts in. Commits still land in stage order.
			var pricingResult stage.Result
			var pricingErr error
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				pricingResult, pricingErr = o.executeStage(advCtx, domain.StagePricing, opp, w)
			}()
			result, execErr = o.executeStage(advCtx, next, opp, w)
			wg.Wait()
			if execErr == nil && advCtx.Err() == nil {
				w, err = o.commitStage(ctx, &w, next, result, actorID)
				if err != nil {
					return AdvanceResult{}, err
				}
				next = domain.StagePricing
				result, execErr = pricingResult, pricingErr
			}
		} else {
			result, execErr = o.executeStage(advCtx, next, opp, w)
		}

		if advCtx.Err() != nil {
			if ctx.Err() != nil {
				return AdvanceResult{}, ctx.Err()
			}
			// An abort raced this advance; whatever the stage produced is
			// discarded rather than committed.
			return AdvanceResult{State: w}, ErrInterrupted
		}

		if execErr != nil {
			w, err = o.recordFailure(ctx, &w, next, execErr, actorID)
			if err != nil {
				return AdvanceResult{}, err
			}
			return AdvanceResult{Outcome: domain.OutcomeFailed, Stage: next, State: w}, execErr
		}

		w, err = o.commitStage(ctx, &w, next, result, actorID)
		if err != nil {
			return AdvanceResult{}, err
		}

		if g, gated := o.Gates.After(next); gated {
			if w.AutoApprove {
				if err := o.logGate(ctx, opportunityID, g, "gate.auto_approved", actorID); err != nil {
					return AdvanceResult{}, err
				}
				continue
			}
			w, err = o.holdAtGate(ctx, &w, g, actorID)
			if err != nil {
				return AdvanceResult{}, err
			}
			return AdvanceResult{Outcome: domain.OutcomeAwaitingApproval, Stage: next, Gate: g, State: w}, nil
		}
	}
}

// executeStage runs one stage with its timeout and bounded retries. With a
// retry bound of n, transient failures get exactly n+1 attempts. A timeout
// on a non-idempotent stage is escalated to fatal: the attempt may have had
// external effect, so re-running is not safe.
func (o *Orchestrator) executeStage(ctx context.Context, st domain.Stage, opp domain.Opportunity, w domain.WorkflowState) (stage.Result, error) {
	ex, ok := o.Stages.For(st)
	if !ok {
		return stage.Result{}, stage.Fatalf("no executor registered for stage %s", st)
	}
	timeout := o.Config.Workflow.TimeoutFor(string(st))
	bound := o.Config.Workflow.RetryBound
	backoff := time.Duration(o.Config.Workflow.BackoffBase)
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxBackoff := time.Duration(o.Config.Workflow.BackoffMax)
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= bound; attempt++ {
		if attempt > 0 {
			d := backoff << (attempt - 1)
			if d > maxBackoff {
				d = maxBackoff
			}
			o.Sleep(ctx, d)
			if ctx.Err() != nil {
				return stage.Result{}, stage.Transient(ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		sc := &stage.Context{
			Opportunity: opp,
			State:       w,
			Config:      o.Config,
			Artifacts:   w.Artifacts,
		}
		result, err := ex.Execute(attemptCtx, sc)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			// The advance itself was cancelled (abort or shutdown).
			return stage.Result{}, stage.Transient(ctx.Err())
		}
		if timedOut && !ex.Idempotent() {
			return stage.Result{}, stage.Fatalf("stage %s timed out after %s and is not safely repeatable: %v", st, timeout, err)
		}
		switch stage.KindOf(err) {
		case stage.KindValidation, stage.KindFatal:
			return stage.Result{}, err
		}
		lastErr = err
	}
	return stage.Result{}, stage.Transientf("stage %s exhausted %d attempts: %w", st, bound+1, lastErr)
}

// commitStage durably applies a successful stage: artifact, completed list,
// opportunity mirror, and the event, all in one transaction.
func (o *Orchestrator) commitStage(ctx context.Context, w *domain.WorkflowState, st domain.Stage, result stage.Result, actorID string) (domain.WorkflowState, error) {
	if w.Artifacts == nil {
		w.Artifacts = map[string]json.RawMessage{}
	}
	if result.Artifact != nil {
		raw, err := json.Marshal(result.Artifact)
		if err != nil {
			return domain.WorkflowState{}, fmt.Errorf("marshal %s artifact: %w", st, err)
		}
		w.Artifacts[string(st)] = raw
	}
	w.Completed = append(w.Completed, st)
	if next, ok := w.NextStage(); ok {
		w.CurrentStage = next
	} else {
		w.CurrentStage = st
	}
	w.UpdatedAt = o.now().UTC().Format(time.RFC3339)

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.UpdateWorkflowTx(ctx, tx, *w); err != nil {
		return domain.WorkflowState{}, err
	}
	if result.OpportunityUpdate != nil {
		if err := o.Repo.UpdateOpportunityTx(ctx, tx, *result.OpportunityUpdate); err != nil {
			return domain.WorkflowState{}, err
		}
	}
	if err := o.Events.Append(ctx, tx, "stage.completed", w.OpportunityID, "stage", string(st), actorID,
		events.EventPayload{"stage": string(st)}); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkflowState{}, err
	}
	return *w, nil
}

// recordFailure appends the failure to the durable record. The workflow
// stays in running status: a later Advance retries the failed stage fresh.
func (o *Orchestrator) recordFailure(ctx context.Context, w *domain.WorkflowState, st domain.Stage, execErr error, actorID string) (domain.WorkflowState, error) {
	now := o.now().UTC().Format(time.RFC3339)
	kind := string(stage.KindOf(execErr))
	w.Failed = append(w.Failed, domain.StageFailure{
		Stage:  st,
		Reason: execErr.Error(),
		Kind:   kind,
		At:     now,
	})
	w.Errors = append(w.Errors, fmt.Sprintf("%s: %s", st, execErr.Error()))
	w.UpdatedAt = now

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.UpdateWorkflowTx(ctx, tx, *w); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := o.Events.Append(ctx, tx, "stage.failed", w.OpportunityID, "stage", string(st), actorID,
		events.EventPayload{"stage": string(st), "kind": kind, "reason": execErr.Error()}); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkflowState{}, err
	}
	return *w, nil
}

// holdAtGate parks the workflow awaiting a human decision.
func (o *Orchestrator) holdAtGate(ctx context.Context, w *domain.WorkflowState, g domain.Gate, actorID string) (domain.WorkflowState, error) {
	w.Status = domain.WorkflowAwaitingApproval
	w.PendingGates = append(w.PendingGates, g)
	w.UpdatedAt = o.now().UTC().Format(time.RFC3339)

	oppStatus := domain.OppAwaitingFirstGate
	if g == domain.GateSecond {
		oppStatus = domain.OppAwaitingSecondGate
	}

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.UpdateWorkflowTx(ctx, tx, *w); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := o.Repo.SetOpportunityStatusTx(ctx, tx, w.OpportunityID, oppStatus, w.UpdatedAt); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := o.Events.Append(ctx, tx, "gate.pending", w.OpportunityID, "gate", string(g), actorID,
		events.EventPayload{"gate": string(g)}); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkflowState{}, err
	}
	return *w, nil
}

func (o *Orchestrator) logGate(ctx context.Context, opportunityID string, g domain.Gate, evtType, actorID string) error {
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := o.Events.Append(ctx, tx, evtType, opportunityID, "gate", string(g), actorID,
		events.EventPayload{"gate": string(g)}); err != nil {
		return err
	}
	return tx.Commit()
}

func (o *Orchestrator) complete(ctx context.Context, w *domain.WorkflowState, actorID string) (domain.WorkflowState, error) {
	w.Status = domain.WorkflowCompleted
	w.UpdatedAt = o.now().UTC().Format(time.RFC3339)
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.UpdateWorkflowTx(ctx, tx, *w); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := o.Events.Append(ctx, tx, "workflow.completed", w.OpportunityID, "workflow", w.OpportunityID, actorID, nil); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkflowState{}, err
	}
	return *w, nil
}

// ResolveGate applies a human gate decision. Approval clears the gate and
// returns the workflow to running; the caller advances when ready. Rejection
// aborts the workflow permanently.
func (o *Orchestrator) ResolveGate(ctx context.Context, opportunityID string, g domain.Gate, decision domain.GateDecision, note, actorID string) (domain.WorkflowState, error) {
	if !gate.Valid(g) {
		return domain.WorkflowState{}, fmt.Errorf("unknown gate %q", g)
	}
	l := o.lockFor(opportunityID)
	l.Lock()
	defer l.Unlock()

	w, err := o.Repo.GetWorkflow(ctx, opportunityID)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	if w.Status != domain.WorkflowAwaitingApproval || !w.GatePending(g) {
		return domain.WorkflowState{}, fmt.Errorf("%w: %s", ErrGateNotPending, g)
	}

	now := o.now().UTC().Format(time.RFC3339)
	switch decision {
	case domain.DecisionApprove:
		w.PendingGates = removeGate(w.PendingGates, g)
		w.Status = domain.WorkflowRunning
		w.UpdatedAt = now
		oppStatus := domain.OppApproved
		if g == domain.GateSecond {
			oppStatus = domain.OppInProgress
		}
		tx, err := o.DB.BeginTx(ctx, nil)
		if err != nil {
			return domain.WorkflowState{}, err
		}
		defer tx.Rollback()
		if err := o.Repo.UpdateWorkflowTx(ctx, tx, w); err != nil {
			return domain.WorkflowState{}, err
		}
		if err := o.Repo.SetOpportunityStatusTx(ctx, tx, opportunityID, oppStatus, now); err != nil {
			return domain.WorkflowState{}, err
		}
		if err := o.Events.Append(ctx, tx, "gate.approved", opportunityID, "gate", string(g), actorID,
			events.EventPayload{"gate": string(g), "note": note}); err != nil {
			return domain.WorkflowState{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.WorkflowState{}, err
		}
		return w, nil

	case domain.DecisionReject:
		w.PendingGates = removeGate(w.PendingGates, g)
		w.Status = domain.WorkflowAborted
		w.Failed = append(w.Failed, domain.StageFailure{
			Stage:  w.CurrentStage,
			Reason: rejectionReason(g, note),
			Kind:   "gate_rejected",
			At:     now,
		})
		w.UpdatedAt = now
		tx, err := o.DB.BeginTx(ctx, nil)
		if err != nil {
			return domain.WorkflowState{}, err
		}
		defer tx.Rollback()
		if err := o.Repo.UpdateWorkflowTx(ctx, tx, w); err != nil {
			return domain.WorkflowState{}, err
		}
		if err := o.Repo.SetOpportunityStatusTx(ctx, tx, opportunityID, domain.OppRejected, now); err != nil {
			return domain.WorkflowState{}, err
		}
		if err := o.Events.Append(ctx, tx, "gate.rejected", opportunityID, "gate", string(g), actorID,
			events.EventPayload{"gate": string(g), "note": note}); err != nil {
			return domain.WorkflowState{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.WorkflowState{}, err
		}
		return w, nil

	default:
		return domain.WorkflowState{}, fmt.Errorf("unknown gate decision %q", decision)
	}
}

func rejectionReason(g domain.Gate, note string) string {
	reason := fmt.Sprintf("rejected at %s", g)
	if strings.TrimSpace(note) != "" {
		reason += ": " + note
	}
	return reason
}

func removeGate(gates []domain.Gate, g domain.Gate) []domain.Gate {
	out := gates[:0]
	for _, have := range gates {
		if have != g {
			out = append(out, have)
		}
	}
	return out
}

// Abort stops a workflow permanently. Idempotent; an in-flight stage is
// cancelled cooperatively before the terminal state is recorded.
func (o *Orchestrator) Abort(ctx context.Context, opportunityID, reason, actorID string) (domain.WorkflowState, error) {
	o.requestAbort(opportunityID)
	defer o.finishAbort(opportunityID)

	l := o.lockFor(opportunityID)
	l.Lock()
	defer l.Unlock()

	w, err := o.Repo.GetWorkflow(ctx, opportunityID)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	if w.Status == domain.WorkflowAborted || w.Status == domain.WorkflowCompleted {
		return w, nil
	}
	w.Status = domain.WorkflowAborted
	if strings.TrimSpace(reason) != "" {
		w.Errors = append(w.Errors, "aborted: "+reason)
	}
	w.UpdatedAt = o.now().UTC().Format(time.RFC3339)

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.UpdateWorkflowTx(ctx, tx, w); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := o.Repo.SetOpportunityStatusTx(ctx, tx, opportunityID, domain.OppRejected, w.UpdatedAt); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := o.Events.Append(ctx, tx, "workflow.aborted", opportunityID, "workflow", opportunityID, actorID,
		events.EventPayload{"reason": reason}); err != nil {
		return domain.WorkflowState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkflowState{}, err
	}
	return w, nil
}

// Status returns the durable workflow state.
func (o *Orchestrator) Status(ctx context.Context, opportunityID string) (domain.WorkflowState, error) {
	return o.Repo.GetWorkflow(ctx, opportunityID)
}

// CreateOpportunity records a new opportunity with its creation event.
func (o *Orchestrator) CreateOpportunity(ctx context.Context, opp domain.Opportunity, actorID string) (domain.Opportunity, error) {
	if opp.SolicitationNumber == "" {
		return domain.Opportunity{}, errors.New("solicitation number is required")
	}
	if opp.Title == "" {
		return domain.Opportunity{}, errors.New("title is required")
	}
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	now := o.now().UTC().Format(time.RFC3339)
	if opp.PostedDate == "" {
		opp.PostedDate = now
	}
	if opp.Status == "" {
		opp.Status = domain.OppDiscovered
	}
	opp.CreatedAt = now
	opp.UpdatedAt = now

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.InsertOpportunityTx(ctx, tx, opp); err != nil {
		return domain.Opportunity{}, err
	}
	if err := o.Events.Append(ctx, tx, "opportunity.created", opp.ID, "opportunity", opp.ID, actorID,
		events.EventPayload{"solicitation_number": opp.SolicitationNumber}); err != nil {
		return domain.Opportunity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Opportunity{}, err
	}
	return opp, nil
}

// ScoreOpportunity runs the scoring engine on demand and persists the
// resulting artifact.
func (o *Orchestrator) ScoreOpportunity(ctx context.Context, opportunityID, actorID string) (domain.BidScore, error) {
	opp, err := o.Repo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return domain.BidScore{}, err
	}
	eng := scoring.New(o.Config.Company, o.Config.Scoring)
	eng.Now = o.now
	score := eng.Score(opp)

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BidScore{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.InsertBidScore(ctx, tx, score); err != nil {
		return domain.BidScore{}, err
	}
	if err := o.Events.Append(ctx, tx, "opportunity.scored", opportunityID, "score", score.ID, actorID,
		events.EventPayload{"total": score.Total, "recommendation": score.Recommendation}); err != nil {
		return domain.BidScore{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.BidScore{}, err
	}
	return score, nil
}

// SignalScanResult summarizes one triage sweep.
type SignalScanResult struct {
	Scanned  int                  `json:"scanned"`
	Stored   int                  `json:"stored"`
	HotLeads []domain.EarlySignal `json:"hot_leads,omitempty"`
}

// signalNoticeTypes maps feed notice types to signal classifications.
var signalNoticeTypes = map[string]domain.SignalType{
	"Sources Sought":      domain.SignalSourcesSought,
	"Presolicitation":     domain.SignalPreSolicitation,
	"Special Notice":      domain.SignalIndustryDay,
	"Request for Information": domain.SignalRFI,
}

// ScanSignals pulls recent pre-solicitation notices from the feed, triages
// them, and stores new ones. Known solicitation numbers are skipped.
func (o *Orchestrator) ScanSignals(ctx context.Context, feed stage.FeedSearcher, daysBack int, actorID string) (SignalScanResult, error) {
	if feed == nil || !feed.Configured() {
		return SignalScanResult{}, discover.ErrUnavailable
	}
	if daysBack <= 0 {
		daysBack = 14
	}
	now := o.now().UTC()
	triager := signals.New(o.Config.Company, o.Config.Signals)
	triager.Now = o.now

	var result SignalScanResult
	for noticeType, sigType := range signalNoticeTypes {
		notices, err := feed.Search(ctx, discover.Query{
			NoticeType: noticeType,
			PostedFrom: now.AddDate(0, 0, -daysBack).Format("01/02/2006"),
			PostedTo:   now.Format("01/02/2006"),
		})
		if err != nil {
			return result, err
		}
		for _, n := range notices {
			result.Scanned++
			exists, err := o.Repo.SignalExists(ctx, n.SolicitationNumber)
			if err != nil {
				return result, err
			}
			if exists {
				continue
			}
			sig := triager.Triage(signals.Raw{
				Type:               sigType,
				Title:              n.Title,
				Agency:             n.Agency,
				NAICSCode:          n.NAICSCode,
				PSCCode:            n.PSCCode,
				SetAside:           n.SetAside,
				SolicitationNumber: n.SolicitationNumber,
				EstimatedValue:     n.EstimatedValue,
				SignalDate:         n.PostedDate,
				SourceURL:          n.SourceURL,
			})
			if err := o.storeSignal(ctx, sig, actorID); err != nil {
				return result, err
			}
			result.Stored++
			if sig.HotLead {
				result.HotLeads = append(result.HotLeads, sig)
			}
		}
	}
	return result, nil
}

// TriageSignal triages and stores one manually entered signal.
func (o *Orchestrator) TriageSignal(ctx context.Context, raw signals.Raw, actorID string) (domain.EarlySignal, error) {
	if raw.Title == "" {
		return domain.EarlySignal{}, errors.New("title is required")
	}
	if raw.SignalDate == "" {
		raw.SignalDate = o.now().UTC().Format(time.RFC3339)
	}
	if raw.SolicitationNumber != "" {
		exists, err := o.Repo.SignalExists(ctx, raw.SolicitationNumber)
		if err != nil {
			return domain.EarlySignal{}, err
		}
		if exists {
			return domain.EarlySignal{}, fmt.Errorf("signal for solicitation %s already recorded", raw.SolicitationNumber)
		}
	}
	triager := signals.New(o.Config.Company, o.Config.Signals)
	triager.Now = o.now
	sig := triager.Triage(raw)
	if err := o.storeSignal(ctx, sig, actorID); err != nil {
		return domain.EarlySignal{}, err
	}
	return sig, nil
}

func (o *Orchestrator) storeSignal(ctx context.Context, sig domain.EarlySignal, actorID string) error {
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := o.Repo.InsertSignalTx(ctx, tx, sig); err != nil {
		return err
	}
	if err := o.Events.Append(ctx, tx, "signal.triaged", "", "signal", sig.ID, actorID,
		events.EventPayload{"composite": sig.Composite, "hot_lead": sig.HotLead}); err != nil {
		return err
	}
	return tx.Commit()
}
