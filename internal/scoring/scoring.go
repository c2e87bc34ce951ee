// Package scoring computes the weighted bid/no-bid decision score for an
// opportunity. Everything here is pure: the same inputs always produce the
// same BidScore, and nothing is shared with the early-signal triage.
package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bidline/internal/config"
	"bidline/internal/domain"
)

// neutralScore is the midpoint used when a component's inputs are missing,
// so early-stage opportunities with incomplete data are not structurally
// penalized.
const neutralScore = 50.0

// Thresholds for the recommendation category.
const (
	bidThreshold   = 70.0
	noBidThreshold = 40.0
)

// Engine scores opportunities against a company profile with configured
// weights. Now is injectable for tests.
type Engine struct {
	Profile config.CompanyProfile
	Weights config.ScoringWeights
	Now     func() time.Time
}

func New(profile config.CompanyProfile, weights config.ScoringWeights) Engine {
	return Engine{Profile: profile, Weights: weights, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Score produces an immutable BidScore for the opportunity. The caller
// persists it; re-scoring yields a new artifact, never a mutation.
func (e Engine) Score(opp domain.Opportunity) domain.BidScore {
	var notes []string

	setAside, saNotes, isVA, requiresVetCert := scoreSetAside(opp, e.Profile.SetAsideCerts)
	notes = append(notes, saNotes...)

	scope, scopeNotes := scoreScope(opp, e.Profile.AllowedNAICS, e.Profile.AllowedPSC, e.Profile.CapabilityKeywords)
	notes = append(notes, scopeNotes...)

	timeline, tlNotes := scoreTimeline(opp, e.now())
	notes = append(notes, tlNotes...)

	competition, compNotes := scoreCompetition(opp)
	notes = append(notes, compNotes...)

	staffing, staffNotes := scoreStaffing(opp)
	notes = append(notes, staffNotes...)

	pricing, priceNotes := scorePricing(opp)
	notes = append(notes, priceNotes...)

	strategic, stratNotes := scoreStrategic(opp, e.Profile.TargetAgencies)
	notes = append(notes, stratNotes...)

	total := setAside*float64(e.Weights.SetAside)/100 +
		scope*float64(e.Weights.Scope)/100 +
		timeline*float64(e.Weights.Timeline)/100 +
		competition*float64(e.Weights.Competition)/100 +
		staffing*float64(e.Weights.Staffing)/100 +
		pricing*float64(e.Weights.Pricing)/100 +
		strategic*float64(e.Weights.Strategic)/100
	total = clamp(total)

	recommendation := domain.RecommendReview
	switch {
	case total >= bidThreshold:
		recommendation = domain.RecommendBid
	case total < noBidThreshold:
		recommendation = domain.RecommendNoBid
	}
	// Ineligibility is a hard disqualifier, not one weighted factor among
	// many. Teaming-eligible opportunities are the exception.
	if setAside == 0 && !opp.TeamingEligible {
		recommendation = domain.RecommendNoBid
		notes = append(notes, "set-aside ineligible with no teaming path; forced NO_BID")
	}

	return domain.BidScore{
		ID:              uuid.New().String(),
		OpportunityID:   opp.ID,
		SetAside:        setAside,
		Scope:           scope,
		Timeline:        timeline,
		Competition:     competition,
		Staffing:        staffing,
		Pricing:         pricing,
		Strategic:       strategic,
		Total:           total,
		Recommendation:  recommendation,
		Weights:         snapshotWeights(e.Weights),
		Notes:           notes,
		IsVAProcurement: isVA,
		RequiresVetCert: requiresVetCert,
		HighPriority:    total >= 85.0,
		CreatedAt:       e.now().UTC().Format(time.RFC3339),
	}
}

// snapshotWeights freezes the configured weights onto the score artifact.
func snapshotWeights(w config.ScoringWeights) domain.ScoreWeights {
	return domain.ScoreWeights{
		SetAside:    w.SetAside,
		Scope:       w.Scope,
		Timeline:    w.Timeline,
		Competition: w.Competition,
		Staffing:    w.Staffing,
		Pricing:     w.Pricing,
		Strategic:   w.Strategic,
	}
}

func scoreSetAside(opp domain.Opportunity, certs []string) (score float64, notes []string, isVA, requiresVetCert bool) {
	isVA = strings.Contains(strings.ToUpper(opp.Agency), "VA") ||
		strings.Contains(strings.ToUpper(opp.Agency), "VETERAN")
	hasCert := func(c string) bool {
		for _, have := range certs {
			if strings.EqualFold(have, c) {
				return true
			}
		}
		return false
	}
	switch opp.SetAside {
	case "":
		score = 40
		notes = append(notes, "open competition, no set-aside preference")
	case "SDVOSB":
		if hasCert("SDVOSB") {
			score = 100
			notes = append(notes, "SDVOSB set-aside matches certification")
		} else {
			notes = append(notes, "SDVOSB required but not certified")
		}
		requiresVetCert = isVA
	case "VOSB":
		if hasCert("VOSB") || hasCert("SDVOSB") {
			score = 90
			notes = append(notes, "VOSB set-aside matches certification")
		} else {
			notes = append(notes, "VOSB required but not certified")
		}
		requiresVetCert = isVA
	case "SB":
		if hasCert("SB") {
			score = 75
			notes = append(notes, "small business set-aside matches")
		} else {
			score = 30
			notes = append(notes, "SB set-aside without certification")
		}
	default:
		score = neutralScore
		notes = append(notes, fmt.Sprintf("uncommon set-aside type %s", opp.SetAside))
	}
	return clamp(score), notes, isVA, requiresVetCert
}

func scoreScope(opp domain.Opportunity, allowedNAICS, allowedPSC, keywords []string) (float64, []string) {
	if opp.NAICSCode == "" && opp.PSCCode == "" {
		return neutralScore, []string{"no classification codes; scope unknown"}
	}
	var notes []string
	score := 0.0
	if contains(allowedNAICS, opp.NAICSCode) {
		score += 60
		notes = append(notes, fmt.Sprintf("NAICS %s in capability set", opp.NAICSCode))
	} else if opp.NAICSCode != "" {
		notes = append(notes, fmt.Sprintf("NAICS %s outside capability set", opp.NAICSCode))
	}
	if contains(allowedPSC, opp.PSCCode) {
		score += 40
		notes = append(notes, fmt.Sprintf("PSC %s in capability set", opp.PSCCode))
	}
	combined := strings.ToLower(opp.Title + " " + opp.Description)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(combined, strings.ToLower(kw)) {
			matched++
		}
	}
	if matched > 0 {
		boost := float64(matched) * 5
		if boost > 20 {
			boost = 20
		}
		score += boost
		notes = append(notes, fmt.Sprintf("%d capability keyword matches", matched))
	}
	return clamp(score), notes
}

func scoreTimeline(opp domain.Opportunity, now time.Time) (float64, []string) {
	if opp.ResponseDeadline == nil {
		return neutralScore, []string{"no response deadline; timeline unknown"}
	}
	deadline, err := time.Parse(time.RFC3339, *opp.ResponseDeadline)
	if err != nil {
		return neutralScore, []string{"unparseable response deadline"}
	}
	days := int(deadline.Sub(now).Hours() / 24)
	switch {
	case days < 0:
		return 0, []string{"response deadline has passed"}
	case days < 7:
		return 20, []string{fmt.Sprintf("%d days to deadline, very tight", days)}
	case days < 14:
		return 50, []string{fmt.Sprintf("%d days to deadline, tight", days)}
	case days < 30:
		return 80, []string{fmt.Sprintf("%d days to deadline, workable", days)}
	default:
		return 100, []string{fmt.Sprintf("%d days to deadline, ample", days)}
	}
}

func scoreCompetition(opp domain.Opportunity) (float64, []string) {
	score := neutralScore
	var notes []string
	switch opp.SetAside {
	case "SDVOSB", "VOSB":
		score += 30
		notes = append(notes, "veteran set-aside shrinks the field")
	case "SB":
		score += 20
		notes = append(notes, "small business set-aside shrinks the field")
	}
	if opp.EstimatedValue != nil {
		switch v := *opp.EstimatedValue; {
		case v < 250_000:
			score += 20
			notes = append(notes, "small contract, less competition")
		case v > 10_000_000:
			score -= 20
			notes = append(notes, "large contract, heavier competition")
		}
	}
	return clamp(score), notes
}

func scoreStaffing(opp domain.Opportunity) (float64, []string) {
	if opp.EstimatedValue == nil && opp.PlaceOfPerformance == "" {
		return neutralScore, []string{"no staffing inputs; assuming neutral"}
	}
	score := 70.0
	var notes []string
	pop := strings.ToLower(opp.PlaceOfPerformance)
	switch {
	case strings.Contains(pop, "remote") || strings.Contains(pop, "telework") || strings.Contains(pop, "virtual"):
		score += 20
		notes = append(notes, "remote performance, easier staffing")
	case strings.Contains(pop, "washington") || strings.Contains(pop, "virginia") || strings.Contains(pop, "maryland") || strings.Contains(pop, "dc"):
		score += 10
		notes = append(notes, "DMV area talent pool")
	}
	if strings.Contains(pop, "clear") {
		score -= 20
		notes = append(notes, "clearance requirement, harder staffing")
	}
	if opp.EstimatedValue != nil {
		ftes := *opp.EstimatedValue / 200_000
		switch {
		case ftes < 5:
			score += 10
			notes = append(notes, "small team estimate")
		case ftes > 20:
			score -= 15
			notes = append(notes, "large team estimate")
		}
	}
	return clamp(score), notes
}

func scorePricing(opp domain.Opportunity) (float64, []string) {
	if opp.EstimatedValue == nil {
		return neutralScore, []string{"no value estimate; pricing unknown"}
	}
	switch v := *opp.EstimatedValue; {
	case v < 50_000:
		return 40, []string{"low value, thin margin"}
	case v > 50_000_000:
		return 50, []string{"very high value, past-performance risk"}
	default:
		return 85, []string{"value within pricing comfort range"}
	}
}

func scoreStrategic(opp domain.Opportunity, targetAgencies []string) (float64, []string) {
	score := neutralScore
	var notes []string
	for _, target := range targetAgencies {
		if domain.AgencyMatches(opp.Agency, target) {
			score += 30
			notes = append(notes, fmt.Sprintf("target agency %s", target))
			break
		}
	}
	if opp.Shapeable {
		score += 20
		notes = append(notes, "shapeable, requirements can be influenced")
	}
	return clamp(score), notes
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
