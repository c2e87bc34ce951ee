package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bidline/internal/domain"
)

// VendorQuestion is one drafted clarification question.
type VendorQuestion struct {
	Reference string `json:"reference"`
	Question  string `json:"question"`
}

// CommunicationsArtifact is the outbound package: cover letter, submission
// email, and any open clarification questions.
type CommunicationsArtifact struct {
	CoverLetter     string           `json:"cover_letter"`
	SubmissionEmail string           `json:"submission_email"`
	VendorQuestions []VendorQuestion `json:"vendor_questions,omitempty"`
	FileManifest    []string         `json:"file_manifest"`
}

// CommunicationsExecutor drafts the cover letter and submission email from
// the accumulated proposal artifacts. Generator output is preferred; the
// templates keep the stage deterministic without one.
type CommunicationsExecutor struct {
	Generator TextGenerator
	Now       func() time.Time
}

func (e *CommunicationsExecutor) Stage() domain.Stage { return domain.StageCommunications }
func (e *CommunicationsExecutor) Idempotent() bool    { return true }

func (e *CommunicationsExecutor) Execute(ctx context.Context, sc *Context) (Result, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	opp := sc.Opportunity
	company := "the offeror"
	if sc.Config != nil {
		company = sc.Config.Company.Name
	}

	var drafting DraftingArtifact
	if err := sc.Artifact(domain.StageDrafting, &drafting); err != nil {
		return Result{}, Validationf("communications requires the drafting artifact: %v", err)
	}
	var review ReviewArtifact
	_ = sc.Artifact(domain.StageSolicitationReview, &review)

	manifest := make([]string, 0, len(drafting.Volumes)+1)
	for _, vol := range drafting.Volumes {
		manifest = append(manifest, vol.Name+".pdf")
	}
	manifest = append(manifest, "pricing_volume.pdf")

	art := CommunicationsArtifact{
		CoverLetter:     CoverLetter(company, opp, now()),
		SubmissionEmail: SubmissionEmail(company, opp, manifest),
		FileManifest:    manifest,
	}
	// Ambiguous requirements with no compliance approach yet become draft
	// vendor questions.
	for _, req := range review.ComplianceMatrix {
		if req.Status == "pending" && strings.Contains(strings.ToLower(req.RequirementText), "tbd") {
			art.VendorQuestions = append(art.VendorQuestions, VendorQuestion{
				Reference: req.RequirementID,
				Question:  "We request clarification of: " + req.RequirementText,
			})
		}
	}

	if e.Generator != nil {
		letter, err := e.Generator.Generate(ctx,
			"You are a federal proposal coordinator. Write a formal cover letter.",
			fmt.Sprintf("Cover letter for %s submitting to %s under %s (%q).",
				company, opp.Agency, opp.SolicitationNumber, opp.Title))
		if err == nil && letter != "" {
			art.CoverLetter = letter
		}
	}
	return Result{Artifact: art}, nil
}

// CoverLetter is the template proposal cover letter.
func CoverLetter(company string, opp domain.Opportunity, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n\nRE: Proposal Submission - %s\n    %s\n\nDear Contracting Officer:\n\n",
		now.Format("January 2, 2006"), opp.Agency, opp.SolicitationNumber, opp.Title)
	fmt.Fprintf(&b, "%s is pleased to submit this proposal in response to %s, %q.",
		company, opp.SolicitationNumber, opp.Title)
	if opp.SetAside == "SDVOSB" || opp.SetAside == "VOSB" {
		fmt.Fprintf(&b, " As a certified %s, we are positioned to deliver exceptional value while supporting the Government's veteran employment goals.", opp.SetAside)
	}
	b.WriteString("\n\nWe have reviewed all solicitation requirements and confirm our proposal is fully compliant and responsive.")
	fmt.Fprintf(&b, "\n\nRespectfully submitted,\n\n%s\n", company)
	return b.String()
}

// SubmissionEmail is the template transmittal email.
func SubmissionEmail(company string, opp domain.Opportunity, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: Proposal Submission - %s - %s\n\nDear Contracting Officer:\n\n", opp.SolicitationNumber, company)
	fmt.Fprintf(&b, "%s hereby submits our proposal in response to %s, %q.\n\nOur proposal package includes:\n", company, opp.SolicitationNumber, opp.Title)
	for i, f := range files {
		fmt.Fprintf(&b, "%d. %s\n", i+1, f)
	}
	b.WriteString("\nWe confirm submission before the solicitation deadline and request confirmation of receipt.\n\nRespectfully,\n")
	b.WriteString(company)
	return b.String()
}
