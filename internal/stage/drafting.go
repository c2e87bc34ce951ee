package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bidline/internal/domain"
	"bidline/internal/knowledge"
)

// ProposalVolume is one generated proposal section.
type ProposalVolume struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// DraftingArtifact is the proposal package produced by drafting.
type DraftingArtifact struct {
	Volumes             []ProposalVolume `json:"volumes"`
	ComplianceChecklist []string         `json:"compliance_checklist,omitempty"`
	KnowledgeSnippets   int              `json:"knowledge_snippets"`
}

// DraftingExecutor assembles the proposal volumes. With a generator
// configured the prose is model-written and grounded on retrieved
// past-performance snippets; otherwise the built-in templates carry the
// structure so the pipeline remains runnable end to end.
type DraftingExecutor struct {
	Knowledge KnowledgeSearcher
	Generator TextGenerator
}

func (e *DraftingExecutor) Stage() domain.Stage { return domain.StageDrafting }
func (e *DraftingExecutor) Idempotent() bool    { return true }

func (e *DraftingExecutor) Execute(ctx context.Context, sc *Context) (Result, error) {
	opp := sc.Opportunity
	company := "the offeror"
	var capabilities []string
	if sc.Config != nil {
		company = sc.Config.Company.Name
		capabilities = sc.Config.Company.CapabilityKeywords
	}

	var review ReviewArtifact
	if err := sc.Artifact(domain.StageSolicitationReview, &review); err != nil {
		return Result{}, Validationf("drafting requires the solicitation review artifact: %v", err)
	}

	var snippets []knowledge.Snippet
	if e.Knowledge != nil {
		found, err := e.Knowledge.Search(ctx, opp.Title+" "+opp.NAICSCode+" past performance",
			knowledge.Filter{Category: "past_performance", Agency: opp.Agency, TopK: 5})
		if err != nil {
			if errors.Is(err, knowledge.ErrUnavailable) {
				return Result{}, Transient(err)
			}
			return Result{}, Transient(fmt.Errorf("retrieve past performance: %w", err))
		}
		snippets = found
	}

	art := DraftingArtifact{KnowledgeSnippets: len(snippets)}
	art.Volumes = append(art.Volumes,
		e.volume(ctx, "executive_summary",
			executiveSummaryPrompt(opp, company, snippets),
			ExecutiveSummary(opp.Title, company, capabilities, opp.SetAside)),
		e.volume(ctx, "technical_approach",
			technicalPrompt(opp, review, snippets),
			TechnicalApproach(review)),
		e.volume(ctx, "management_approach",
			managementPrompt(opp),
			ManagementApproach(teamSizeEstimate(opp.EstimatedValue))),
		e.volume(ctx, "past_performance",
			pastPerformancePrompt(opp, snippets),
			PastPerformance(snippets)),
	)
	if review.NarrativeRequired || opp.SetAside == "SDVOSB" {
		art.Volumes = append(art.Volumes, e.volume(ctx, "sdvosb_narrative",
			fmt.Sprintf("Write the SDVOSB value proposition for %s bidding %s at %s.", company, opp.Title, opp.Agency),
			SDVOSBNarrative(company, opp.Agency, opp.Title)))
	}
	art.ComplianceChecklist = complianceChecklist(review)

	return Result{Artifact: art}, nil
}

// volume tries the generator first and falls back to the template. Generator
// outages must not strand a proposal that the templates can carry.
func (e *DraftingExecutor) volume(ctx context.Context, name, prompt, fallback string) ProposalVolume {
	if e.Generator != nil {
		text, err := e.Generator.Generate(ctx,
			"You are a federal proposal writer. Write complete, compliant prose.", prompt)
		if err == nil && text != "" {
			return ProposalVolume{Name: name, Content: text, Source: "generated"}
		}
	}
	return ProposalVolume{Name: name, Content: fallback, Source: "template"}
}

func executiveSummaryPrompt(opp domain.Opportunity, company string, snippets []knowledge.Snippet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an executive summary for %s's proposal to %q (%s, set-aside %s).",
		company, opp.Title, opp.Agency, opp.SetAside)
	for _, s := range snippets {
		fmt.Fprintf(&b, "\nRelevant experience: %s", s.Title)
	}
	return b.String()
}

func technicalPrompt(opp domain.Opportunity, review ReviewArtifact, snippets []knowledge.Snippet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the technical approach for %q addressing these requirements:", opp.Title)
	for i, req := range review.ComplianceMatrix {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "\n%s: %s", req.RequirementID, req.RequirementText)
	}
	for _, s := range snippets {
		fmt.Fprintf(&b, "\nGround on: %s", s.Content)
	}
	return b.String()
}

func managementPrompt(opp domain.Opportunity) string {
	return fmt.Sprintf("Write the management approach for %q, team of %d.",
		opp.Title, teamSizeEstimate(opp.EstimatedValue))
}

func pastPerformancePrompt(opp domain.Opportunity, snippets []knowledge.Snippet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the past performance volume for %q using:", opp.Title)
	for _, s := range snippets {
		fmt.Fprintf(&b, "\n- %s: %s", s.Title, s.Content)
	}
	return b.String()
}

// teamSizeEstimate derives a rough FTE count from contract value.
func teamSizeEstimate(value *float64) int {
	if value == nil {
		return 5
	}
	ftes := int(*value / 200_000)
	if ftes < 2 {
		return 2
	}
	if ftes > 50 {
		return 50
	}
	return ftes
}

// ExecutiveSummary is the template fallback for the opening volume.
func ExecutiveSummary(title, company string, capabilities []string, setAside string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EXECUTIVE SUMMARY\n\n%s is pleased to submit this proposal in response to %s.", company, title)
	if setAside == "SDVOSB" || setAside == "VOSB" {
		fmt.Fprintf(&b, " As a certified %s, we bring the discipline and dedication of veteran-owned leadership to this requirement.", setAside)
	}
	if len(capabilities) > 0 {
		b.WriteString("\n\nOur solution leverages our core capabilities in:\n")
		for _, cap := range capabilities {
			fmt.Fprintf(&b, "- %s\n", cap)
		}
	}
	b.WriteString("\nThe technical and management volumes that follow detail our complete approach.")
	return b.String()
}

// SDVOSBNarrative is the template fallback for the veteran-owned value
// proposition volume.
func SDVOSBNarrative(company, agency, focus string) string {
	return fmt.Sprintf(`SERVICE-DISABLED VETERAN-OWNED SMALL BUSINESS VALUE PROPOSITION

%s is a certified Service-Disabled Veteran-Owned Small Business committed to delivering excellence while supporting the federal government's veteran employment goals.

Veteran Leadership
- Discipline and attention to detail honed through military service
- Security-conscious mindset for protecting sensitive information
- Mission-first mentality that prioritizes client success

%s Mission Alignment
Our veteran background gives us direct insight into the importance of %s and the need for secure, reliable delivery.

Economic Impact
Partnering with %s supports veteran employment, small business growth, and community reinvestment.`,
		company, agency, focus, company)
}

// TechnicalApproach is the template fallback for the technical volume.
func TechnicalApproach(review ReviewArtifact) string {
	var b strings.Builder
	b.WriteString("TECHNICAL APPROACH\n")
	for i, req := range review.ComplianceMatrix {
		if i >= 10 {
			fmt.Fprintf(&b, "\n(%d additional requirements addressed in the full compliance matrix.)\n",
				len(review.ComplianceMatrix)-i)
			break
		}
		fmt.Fprintf(&b, "\nRequirement %s: %s\nApproach: iterative delivery with continuous quality assurance and clear documentation.\n",
			req.RequirementID, req.RequirementText)
	}
	if len(review.ComplianceMatrix) == 0 {
		b.WriteString("\nNo discrete requirements were extracted; the approach addresses the statement of work as a whole.\n")
	}
	return b.String()
}

// ManagementApproach is the template fallback for the management volume.
func ManagementApproach(teamSize int) string {
	return fmt.Sprintf(`MANAGEMENT APPROACH

Organization
A team of %d professionals under a single accountable Program Manager, with a Technical Lead owning quality and team leads owning day-to-day coordination.

Communication
Weekly status meetings with Government stakeholders, daily internal stand-ups, and monthly progress reports with metrics.

Quality and Schedule
Peer review of all deliverables, milestone tracking with early warning of slips, and a living risk register with named mitigations.`, teamSize)
}

// PastPerformance renders retrieved references, or a placeholder when the
// knowledge base returned none.
func PastPerformance(snippets []knowledge.Snippet) string {
	if len(snippets) == 0 {
		return "PAST PERFORMANCE\n\nReference contracts available upon request."
	}
	var b strings.Builder
	b.WriteString("PAST PERFORMANCE\n")
	for _, s := range snippets {
		fmt.Fprintf(&b, "\n%s\n%s\n", s.Title, s.Content)
	}
	return b.String()
}

func complianceChecklist(review ReviewArtifact) []string {
	var items []string
	for _, cert := range review.RequiredCerts {
		items = append(items, "Certification: "+cert)
	}
	for _, form := range review.SFForms {
		items = append(items, "Form: "+form)
	}
	if review.VetCertRequired {
		items = append(items, "Verify active VetCert registration")
	}
	if review.SubmissionPortal != "" {
		items = append(items, "Submit via "+review.SubmissionPortal)
	}
	if review.SubmissionFormat != "" {
		items = append(items, "Format: "+review.SubmissionFormat)
	}
	return items
}
