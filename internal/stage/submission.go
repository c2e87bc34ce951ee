package stage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bidline/internal/domain"
)

// SubmissionArtifact is the final delivery receipt.
type SubmissionArtifact struct {
	ReceiptID    string   `json:"receipt_id"`
	SubmittedAt  string   `json:"submitted_at"`
	Portal       string   `json:"portal"`
	FileManifest []string `json:"file_manifest"`
	Deadline     string   `json:"deadline,omitempty"`
	OnTime       bool     `json:"on_time"`
}

// SubmissionExecutor performs the final delivery. It is the one
// non-idempotent stage: a timed-out attempt may have gone through, so the
// orchestrator must never re-run it after a timeout.
type SubmissionExecutor struct {
	Now func() time.Time
}

func (e *SubmissionExecutor) Stage() domain.Stage { return domain.StageSubmission }
func (e *SubmissionExecutor) Idempotent() bool    { return false }

func (e *SubmissionExecutor) Execute(ctx context.Context, sc *Context) (Result, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	opp := sc.Opportunity

	var comms CommunicationsArtifact
	if err := sc.Artifact(domain.StageCommunications, &comms); err != nil {
		return Result{}, Validationf("submission requires the communications artifact: %v", err)
	}
	var review ReviewArtifact
	_ = sc.Artifact(domain.StageSolicitationReview, &review)

	submittedAt := now().UTC()
	art := SubmissionArtifact{
		ReceiptID:    uuid.New().String(),
		SubmittedAt:  submittedAt.Format(time.RFC3339),
		Portal:       review.SubmissionPortal,
		FileManifest: comms.FileManifest,
		OnTime:       true,
	}
	if art.Portal == "" {
		art.Portal = "SAM.gov"
	}
	if opp.ResponseDeadline != nil {
		art.Deadline = *opp.ResponseDeadline
		if deadline, err := time.Parse(time.RFC3339, *opp.ResponseDeadline); err == nil {
			if submittedAt.After(deadline) {
				return Result{}, Fatalf("response deadline %s already passed", art.Deadline)
			}
		}
	}

	opp.Status = domain.OppSubmitted
	return Result{Artifact: art, OpportunityUpdate: &opp}, nil
}
