package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bidline/internal/domain"
	"bidline/internal/knowledge"
)

// ComplianceEntry is one row of the compliance matrix.
type ComplianceEntry struct {
	RequirementID   string `json:"requirement_id"`
	RequirementText string `json:"requirement_text"`
	SourceSection   string `json:"source_section"`
	Approach        string `json:"compliance_approach"`
	ProposalSection string `json:"proposal_section"`
	Status          string `json:"status"`
}

// ReviewArtifact is the structured solicitation analysis handed to drafting.
type ReviewArtifact struct {
	SectionsIdentified []string          `json:"sections_identified"`
	HasSectionC        bool              `json:"has_section_c"`
	HasSectionL        bool              `json:"has_section_l"`
	HasSectionM        bool              `json:"has_section_m"`
	HasPWSSOW          bool              `json:"has_pws_sow"`
	TotalRequirements  int               `json:"total_requirements"`
	ComplianceMatrix   []ComplianceEntry `json:"compliance_matrix"`
	RequiredCerts      []string          `json:"required_certifications,omitempty"`
	SFForms            []string          `json:"sf_forms_required,omitempty"`
	VetCertRequired    bool              `json:"vetcert_required"`
	NarrativeRequired  bool              `json:"sdvosb_narrative_required"`
	SubmissionPortal   string            `json:"submission_portal,omitempty"`
	SubmissionFormat   string            `json:"submission_format,omitempty"`
	KnowledgeSnippets  int               `json:"knowledge_snippets"`
	Summary            string            `json:"summary,omitempty"`
}

// ReviewExecutor dissects the solicitation text into the compliance roadmap
// the proposal team works from. Source text is the opportunity description
// plus whatever the retrieval service returns for the solicitation number.
type ReviewExecutor struct {
	Knowledge KnowledgeSearcher
	Generator TextGenerator
}

func (e *ReviewExecutor) Stage() domain.Stage { return domain.StageSolicitationReview }
func (e *ReviewExecutor) Idempotent() bool    { return true }

func (e *ReviewExecutor) Execute(ctx context.Context, sc *Context) (Result, error) {
	opp := sc.Opportunity
	text := opp.Description
	snippets := 0

	if e.Knowledge != nil {
		found, err := e.Knowledge.Search(ctx, opp.SolicitationNumber+" "+opp.Title,
			knowledge.Filter{Category: "solicitation", Agency: opp.Agency, TopK: 5})
		if err != nil {
			if errors.Is(err, knowledge.ErrUnavailable) {
				return Result{}, Transient(err)
			}
			return Result{}, Transient(fmt.Errorf("retrieve solicitation: %w", err))
		}
		for _, s := range found {
			text += "\n" + s.Content
		}
		snippets = len(found)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, Validationf("opportunity %s has no solicitation text to review", opp.SolicitationNumber)
	}

	art := AnalyzeSolicitation(text, opp.SetAside)
	art.KnowledgeSnippets = snippets

	if e.Generator != nil {
		summary, err := e.Generator.Generate(ctx,
			"You are a federal solicitation analyst. Summarize crisply.",
			reviewSummaryPrompt(opp, art))
		if err == nil {
			art.Summary = summary
		}
		// Summary is a nicety; analysis stands without it.
	}

	opp.Status = domain.OppInProgress
	return Result{Artifact: art, OpportunityUpdate: &opp}, nil
}

func reviewSummaryPrompt(opp domain.Opportunity, art ReviewArtifact) string {
	return fmt.Sprintf(
		"Summarize solicitation %s (%s) for a capture team in 3 bullets. %d requirements extracted; certifications: %s.",
		opp.SolicitationNumber, opp.Title, art.TotalRequirements, strings.Join(art.RequiredCerts, ", "))
}

// sectionMarkers maps FAR section phrases to the structure flags they set.
var sectionMarkers = []struct {
	marker string
	flag   func(*ReviewArtifact)
}{
	{"SECTION C", func(a *ReviewArtifact) { a.HasSectionC = true }},
	{"PART I - THE SCHEDULE", func(a *ReviewArtifact) { a.HasSectionC = true }},
	{"SECTION L", func(a *ReviewArtifact) { a.HasSectionL = true }},
	{"INSTRUCTIONS", func(a *ReviewArtifact) { a.HasSectionL = true }},
	{"SECTION M", func(a *ReviewArtifact) { a.HasSectionM = true }},
	{"EVALUATION", func(a *ReviewArtifact) { a.HasSectionM = true }},
	{"PERFORMANCE WORK STATEMENT", func(a *ReviewArtifact) { a.HasPWSSOW = true }},
	{"STATEMENT OF WORK", func(a *ReviewArtifact) { a.HasPWSSOW = true }},
	{"PWS", func(a *ReviewArtifact) { a.HasPWSSOW = true }},
	{"SOW", func(a *ReviewArtifact) { a.HasPWSSOW = true }},
}

// AnalyzeSolicitation builds the full review artifact from raw text.
func AnalyzeSolicitation(text, setAside string) ReviewArtifact {
	var art ReviewArtifact
	upper := strings.ToUpper(text)
	for _, m := range sectionMarkers {
		if strings.Contains(upper, m.marker) {
			art.SectionsIdentified = append(art.SectionsIdentified, m.marker)
			m.flag(&art)
		}
	}
	art.ComplianceMatrix = ExtractRequirements(text)
	art.TotalRequirements = len(art.ComplianceMatrix)

	certs, forms, vetCert, narrative := identifyCertifications(text, setAside)
	art.RequiredCerts = certs
	art.SFForms = forms
	art.VetCertRequired = vetCert
	art.NarrativeRequired = narrative

	art.SubmissionPortal, art.SubmissionFormat = submissionDetails(text)
	return art
}

// requirementPatterns are the obligation phrases that flag a sentence as a
// contract requirement.
var requirementPatterns = []string{
	"shall",
	"must",
	"is required to",
	"the contractor shall",
	"the offeror shall",
}

// ExtractRequirements pulls obligation sentences from the text and assigns
// sequential requirement IDs.
func ExtractRequirements(text string) []ComplianceEntry {
	var entries []ComplianceEntry
	id := 1
	for _, sentence := range strings.Split(text, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= 20 {
			continue
		}
		lower := strings.ToLower(sentence)
		matched := false
		for _, p := range requirementPatterns {
			if strings.Contains(lower, p) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		entries = append(entries, ComplianceEntry{
			RequirementID:   fmt.Sprintf("REQ-%04d", id),
			RequirementText: sentence,
			SourceSection:   "solicitation",
			Approach:        "requires technical analysis",
			ProposalSection: "TBD",
			Status:          "pending",
		})
		id++
	}
	return entries
}

func identifyCertifications(text, setAside string) (certs, forms []string, vetCert, narrative bool) {
	lower := strings.ToLower(text)

	if (setAside == "SDVOSB" || setAside == "VOSB") &&
		(strings.Contains(lower, "vetcert") || strings.Contains(lower, "vets first")) {
		vetCert = true
		certs = append(certs, "VetCert Documentation")
	}
	if setAside == "SDVOSB" && strings.Contains(lower, "sdvosb") &&
		(strings.Contains(lower, "narrative") || strings.Contains(lower, "describe")) {
		narrative = true
	}

	certKeywords := []struct{ keyword, name string }{
		{"reps and certs", "Representations and Certifications"},
		{"sam registration", "SAM.gov Registration"},
		{"far 52.204", "FAR 52.204 Certifications"},
		{"far 52.219", "Small Business Certifications"},
		{"cmmc", "CMMC Certification"},
		{"iso 27001", "ISO 27001 Certification"},
		{"soc 2", "SOC 2 Certification"},
	}
	for _, c := range certKeywords {
		if strings.Contains(lower, c.keyword) {
			certs = append(certs, c.name)
		}
	}

	formKeywords := []struct{ keyword, name string }{
		{"sf 1449", "SF 1449 - Solicitation/Contract/Order"},
		{"sf 30", "SF 30 - Amendment"},
		{"sf 18", "SF 18 - Request for Quotations"},
		{"sf 1442", "SF 1442 - Solicitation, Offer and Award"},
	}
	for _, f := range formKeywords {
		if strings.Contains(lower, f.keyword) {
			forms = append(forms, f.name)
		}
	}
	return certs, forms, vetCert, narrative
}

func submissionDetails(text string) (portal, format string) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "sam.gov"):
		portal = "SAM.gov"
	case strings.Contains(lower, "ebuy"):
		portal = "eBuy"
	case strings.Contains(lower, "procurement integrated"):
		portal = "PIA"
	}
	switch {
	case strings.Contains(lower, "pdf"):
		format = "PDF"
	case strings.Contains(lower, ".docx"), strings.Contains(lower, "word"):
		format = "Word"
	}
	return portal, format
}
