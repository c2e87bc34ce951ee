package domain

import (
	"encoding/json"
	"strings"
)

// Stage is one phase of the capture pipeline. Stages form a strict total order.
type Stage string

const (
	StageDiscovery          Stage = "discovery"
	StageScreening          Stage = "screening"
	StageSolicitationReview Stage = "solicitation_review"
	StageDrafting           Stage = "drafting"
	StagePricing            Stage = "pricing"
	StageCommunications     Stage = "communications"
	StageSubmission         Stage = "submission"
)

// StageOrder is the fixed pipeline sequence. Approval gates sit between
// screening and solicitation_review (first-gate) and between pricing and
// communications (second-gate).
var StageOrder = []Stage{
	StageDiscovery,
	StageScreening,
	StageSolicitationReview,
	StageDrafting,
	StagePricing,
	StageCommunications,
	StageSubmission,
}

// StageIndex returns the position of a stage in the pipeline, or -1.
func StageIndex(s Stage) int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Gate names the two human checkpoints.
type Gate string

const (
	GateFirst  Gate = "first-gate"
	GateSecond Gate = "second-gate"
)

// GateDecision is the external resolution of a pending gate.
type GateDecision string

const (
	DecisionApprove GateDecision = "approve"
	DecisionReject  GateDecision = "reject"
)

// Outcome is the result of driving a workflow forward.
type Outcome string

const (
	OutcomeAwaitingApproval Outcome = "awaiting_approval"
	OutcomeFailed           Outcome = "failed"
	OutcomeCompleted        Outcome = "completed"
	OutcomeAborted          Outcome = "aborted"
)

// WorkflowStatus is the durable lifecycle of one workflow record.
type WorkflowStatus string

const (
	WorkflowRunning          WorkflowStatus = "running"
	WorkflowAwaitingApproval WorkflowStatus = "awaiting_approval"
	WorkflowCompleted        WorkflowStatus = "completed"
	WorkflowAborted          WorkflowStatus = "aborted"
)

// OpportunityStatus mirrors pipeline progress on the opportunity itself.
type OpportunityStatus string

const (
	OppDiscovered         OpportunityStatus = "discovered"
	OppScreening          OpportunityStatus = "screening"
	OppAwaitingFirstGate  OpportunityStatus = "awaiting_first_gate"
	OppApproved           OpportunityStatus = "approved"
	OppRejected           OpportunityStatus = "rejected"
	OppInProgress         OpportunityStatus = "in_progress"
	OppAwaitingSecondGate OpportunityStatus = "awaiting_second_gate"
	OppSubmitted          OpportunityStatus = "submitted"
)

// Opportunity is an identified contracting prospect. Rows are never deleted,
// only archived.
type Opportunity struct {
	ID                 string            `json:"id"`
	SolicitationNumber string            `json:"solicitation_number"`
	Title              string            `json:"title"`
	Agency             string            `json:"agency"`
	Office             string            `json:"office,omitempty"`
	Description        string            `json:"description,omitempty"`
	NAICSCode          string            `json:"naics_code,omitempty"`
	PSCCode            string            `json:"psc_code,omitempty"`
	SetAside           string            `json:"set_aside,omitempty"`
	PostedDate         string            `json:"posted_date" format:"date-time"`
	ResponseDeadline   *string           `json:"response_deadline,omitempty" format:"date-time"`
	EstimatedValue     *float64          `json:"estimated_value,omitempty"`
	PlaceOfPerformance string            `json:"place_of_performance,omitempty"`
	Shapeable          bool              `json:"shapeable"`
	TeamingEligible    bool              `json:"teaming_eligible"`
	Status             OpportunityStatus `json:"status" enum:"discovered,screening,awaiting_first_gate,approved,rejected,in_progress,awaiting_second_gate,submitted"`
	Archived           bool              `json:"archived"`
	SourceURL          string            `json:"source_url,omitempty"`
	CreatedAt          string            `json:"created_at" format:"date-time"`
	UpdatedAt          string            `json:"updated_at" format:"date-time"`
}

// StageFailure records one stage whose attempts were exhausted or fatal.
type StageFailure struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
	Kind   string `json:"kind,omitempty"`
	At     string `json:"at" format:"date-time"`
}

// WorkflowState is the durable record of one opportunity's run through the
// pipeline. Mutated exclusively by the orchestrator.
type WorkflowState struct {
	OpportunityID string                     `json:"opportunity_id"`
	Status        WorkflowStatus             `json:"status" enum:"running,awaiting_approval,completed,aborted"`
	CurrentStage  Stage                      `json:"current_stage"`
	Completed     []Stage                    `json:"completed_stages"`
	Failed        []StageFailure             `json:"failed_stages,omitempty"`
	PendingGates  []Gate                     `json:"pending_gates,omitempty"`
	Errors        []string                   `json:"errors,omitempty"`
	AutoApprove   bool                       `json:"auto_approve"`
	Artifacts     map[string]json.RawMessage `json:"artifacts,omitempty"`
	StartedAt     string                     `json:"started_at" format:"date-time"`
	UpdatedAt     string                     `json:"updated_at" format:"date-time"`
}

// StageDone reports whether the stage is already in the completed list.
func (w WorkflowState) StageDone(s Stage) bool {
	for _, c := range w.Completed {
		if c == s {
			return true
		}
	}
	return false
}

// NextStage returns the first stage not yet completed, honoring pipeline order.
func (w WorkflowState) NextStage() (Stage, bool) {
	for _, s := range StageOrder {
		if !w.StageDone(s) {
			return s, true
		}
	}
	return "", false
}

// GatePending reports whether a gate is waiting on a decision.
func (w WorkflowState) GatePending(g Gate) bool {
	for _, p := range w.PendingGates {
		if p == g {
			return true
		}
	}
	return false
}

// agencyAliases expands common federal acronyms so a short target like "VA"
// still matches a notice that spells out "Department of Veterans Affairs".
var agencyAliases = map[string][]string{
	"VA":   {"VETERAN"},
	"DOD":  {"DEFENSE"},
	"DHS":  {"HOMELAND"},
	"HHS":  {"HEALTH AND HUMAN"},
	"DOJ":  {"JUSTICE"},
	"USDA": {"AGRICULTURE"},
	"GSA":  {"GENERAL SERVICES"},
	"DOE":  {"ENERGY"},
	"DOT":  {"TRANSPORTATION"},
}

// AgencyMatches reports whether a notice's agency string matches a target.
// Matching is case-insensitive substring in either direction, with acronym
// expansion for the common departments.
func AgencyMatches(agency, target string) bool {
	if agency == "" || target == "" {
		return false
	}
	a := strings.ToUpper(agency)
	t := strings.ToUpper(target)
	if strings.Contains(a, t) || strings.Contains(t, a) {
		return true
	}
	for _, alias := range agencyAliases[t] {
		if strings.Contains(a, alias) {
			return true
		}
	}
	for _, alias := range agencyAliases[a] {
		if strings.Contains(t, alias) {
			return true
		}
	}
	return false
}

// Recommendation categories for a bid decision.
const (
	RecommendBid    = "BID"
	RecommendNoBid  = "NO_BID"
	RecommendReview = "REVIEW"
)

// ScoreWeights is the weight set a score was computed with. It is
// snapshotted onto each BidScore so superseded rows stay interpretable
// after the configured weights change.
type ScoreWeights struct {
	SetAside    int `json:"set_aside"`
	Scope       int `json:"scope"`
	Timeline    int `json:"timeline"`
	Competition int `json:"competition"`
	Staffing    int `json:"staffing"`
	Pricing     int `json:"pricing"`
	Strategic   int `json:"strategic"`
}

// BidScore is an immutable scoring artifact. Re-scoring inserts a new row;
// prior rows are superseded, never overwritten.
type BidScore struct {
	ID              string       `json:"id"`
	OpportunityID   string       `json:"opportunity_id"`
	SetAside        float64      `json:"set_aside_score"`
	Scope           float64      `json:"scope_score"`
	Timeline        float64      `json:"timeline_score"`
	Competition     float64      `json:"competition_score"`
	Staffing        float64      `json:"staffing_score"`
	Pricing         float64      `json:"pricing_score"`
	Strategic       float64      `json:"strategic_score"`
	Total           float64      `json:"total_score"`
	Recommendation  string       `json:"recommendation" enum:"BID,NO_BID,REVIEW"`
	Weights         ScoreWeights `json:"weights"`
	Notes           []string     `json:"notes,omitempty"`
	IsVAProcurement bool         `json:"is_va_procurement"`
	RequiresVetCert bool         `json:"requires_vetcert"`
	HighPriority    bool         `json:"high_priority"`
	CreatedAt       string       `json:"created_at" format:"date-time"`
}

// SignalType classifies a pre-solicitation indicator.
type SignalType string

const (
	SignalSourcesSought    SignalType = "sources_sought"
	SignalPreSolicitation  SignalType = "pre_solicitation"
	SignalRFI              SignalType = "rfi"
	SignalIndustryDay      SignalType = "industry_day"
	SignalExpiringContract SignalType = "expiring_contract"
)

// LeadTimeClass buckets how far out the expected RFP is.
type LeadTimeClass string

const (
	LeadNear LeadTimeClass = "near"
	LeadMid  LeadTimeClass = "mid"
	LeadFar  LeadTimeClass = "far"
)

// EarlySignal is a pre-solicitation indicator, read-only after triage.
type EarlySignal struct {
	ID                 string        `json:"id"`
	Type               SignalType    `json:"signal_type" enum:"sources_sought,pre_solicitation,rfi,industry_day,expiring_contract"`
	Title              string        `json:"title"`
	Agency             string        `json:"agency"`
	NAICSCode          string        `json:"naics_code,omitempty"`
	PSCCode            string        `json:"psc_code,omitempty"`
	SetAside           string        `json:"set_aside,omitempty"`
	SolicitationNumber string        `json:"solicitation_number,omitempty"`
	EstimatedValue     *float64      `json:"estimated_value,omitempty"`
	SignalDate         string        `json:"signal_date" format:"date-time"`
	ExpectedRFPDate    *string       `json:"expected_rfp_date,omitempty" format:"date-time"`
	LeadTime           LeadTimeClass `json:"lead_time,omitempty" enum:"near,mid,far"`
	NAICSScore         float64       `json:"naics_score"`
	SetAsideScore      float64       `json:"set_aside_score"`
	AgencyScore        float64       `json:"agency_score"`
	TypeScore          float64       `json:"type_score"`
	ValueScore         float64       `json:"value_score"`
	Composite          float64       `json:"composite"`
	HotLead            bool          `json:"hot_lead"`
	SourceURL          string        `json:"source_url,omitempty"`
	CreatedAt          string        `json:"created_at" format:"date-time"`
}

// Event is one audit log row.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Type          string `json:"type"`
	OpportunityID string `json:"opportunity_id,omitempty"`
	EntityKind    string `json:"entity_kind"`
	EntityID      string `json:"entity_id,omitempty"`
	ActorID       string `json:"actor_id"`
	Payload       string `json:"payload_json"`
}

// APIKey authenticates non-interactive callers of the HTTP API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
