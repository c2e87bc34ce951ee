package stage

import (
	"context"
	"errors"
	"strings"
	"time"

	"bidline/internal/discover"
	"bidline/internal/domain"
)

// DiscoveryArtifact records what the discovery stage established about the
// opportunity.
type DiscoveryArtifact struct {
	Source        string `json:"source"`
	FeedMatched   bool   `json:"feed_matched"`
	Shapeable     bool   `json:"shapeable"`
	EnrichedAt    string `json:"enriched_at"`
	FieldsUpdated []string `json:"fields_updated,omitempty"`
}

// DiscoveryExecutor confirms and enriches the opportunity record from the
// notice feed. Without a configured feed the stage keeps the record as
// entered; a configured feed that is down is a retryable condition.
type DiscoveryExecutor struct {
	Feed FeedSearcher
	Now  func() time.Time
}

func (e *DiscoveryExecutor) Stage() domain.Stage { return domain.StageDiscovery }
func (e *DiscoveryExecutor) Idempotent() bool    { return true }

func (e *DiscoveryExecutor) Execute(ctx context.Context, sc *Context) (Result, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	art := DiscoveryArtifact{
		Source:     "manual",
		Shapeable:  IsShapeable(sc.Opportunity.Title, sc.Opportunity.Description),
		EnrichedAt: now().UTC().Format(time.RFC3339),
	}
	opp := sc.Opportunity

	if e.Feed != nil && e.Feed.Configured() {
		notices, err := e.Feed.Search(ctx, discover.Query{
			SolicitationNumber: opp.SolicitationNumber,
			Limit:              1,
		})
		if err != nil {
			if errors.Is(err, discover.ErrUnavailable) {
				return Result{}, Transient(err)
			}
			return Result{}, Fatal(err)
		}
		if len(notices) > 0 {
			art.Source = "feed"
			art.FeedMatched = true
			art.FieldsUpdated = mergeNotice(&opp, notices[0])
		}
	}

	opp.Shapeable = opp.Shapeable || art.Shapeable
	if opp.Status == "" {
		opp.Status = domain.OppDiscovered
	}
	return Result{Artifact: art, OpportunityUpdate: &opp}, nil
}

// mergeNotice copies feed fields into the opportunity where the record is
// blank, and returns the names of updated fields.
func mergeNotice(opp *domain.Opportunity, n discover.Notice) []string {
	var updated []string
	set := func(dst *string, v, name string) {
		if *dst == "" && v != "" {
			*dst = v
			updated = append(updated, name)
		}
	}
	set(&opp.Title, n.Title, "title")
	set(&opp.Description, n.Description, "description")
	set(&opp.Agency, n.Agency, "agency")
	set(&opp.Office, n.Office, "office")
	set(&opp.NAICSCode, n.NAICSCode, "naics_code")
	set(&opp.PSCCode, n.PSCCode, "psc_code")
	set(&opp.SetAside, n.SetAside, "set_aside")
	set(&opp.PostedDate, n.PostedDate, "posted_date")
	set(&opp.PlaceOfPerformance, n.PlaceOfPerformance, "place_of_performance")
	set(&opp.SourceURL, n.SourceURL, "source_url")
	if opp.ResponseDeadline == nil && n.ResponseDeadline != "" {
		d := n.ResponseDeadline
		opp.ResponseDeadline = &d
		updated = append(updated, "response_deadline")
	}
	if opp.EstimatedValue == nil && n.EstimatedValue != nil {
		opp.EstimatedValue = n.EstimatedValue
		updated = append(updated, "estimated_value")
	}
	return updated
}

// shapeableMarkers flag notices early enough that requirements can still be
// influenced.
var shapeableMarkers = []string{
	"sources sought",
	"request for information",
	"rfi",
	"draft rfp",
	"draft solicitation",
	"industry day",
	"market research",
	"capability statement",
}

// IsShapeable reports whether the notice text suggests a pre-solicitation
// posture.
func IsShapeable(title, description string) bool {
	combined := strings.ToLower(title + " " + description)
	for _, marker := range shapeableMarkers {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}
