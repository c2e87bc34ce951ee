// Package signals triages pre-solicitation indicators (sources sought, RFIs,
// industry days, expiring contracts) into a composite relevance score so
// capture attention lands on the right leads before an RFP exists.
package signals

import (
	"time"

	"github.com/google/uuid"

	"bidline/internal/config"
	"bidline/internal/domain"
)

// Component ceilings. The composite is their sum, bounded at 100.
const (
	naicsPoints    = 30.0
	setAsidePoints = 25.0
	agencyPoints   = 20.0
)

// hotLeadThreshold marks a signal worth immediate capture attention.
const hotLeadThreshold = 80.0

// Raw is an untriaged signal as ingested from a notice feed or manual entry.
type Raw struct {
	Type               domain.SignalType
	Title              string
	Agency             string
	NAICSCode          string
	PSCCode            string
	SetAside           string
	SolicitationNumber string
	EstimatedValue     *float64
	SignalDate         string
	ExpectedRFPDate    *string
	SourceURL          string
}

// Triager scores raw signals against a company profile. Now is injectable
// for tests.
type Triager struct {
	Profile config.CompanyProfile
	Signals config.SignalConfig
	Now     func() time.Time
}

func New(profile config.CompanyProfile, sc config.SignalConfig) Triager {
	return Triager{Profile: profile, Signals: sc, Now: time.Now}
}

func (t Triager) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Triage scores one raw signal. The result is read-only after persistence.
func (t Triager) Triage(raw Raw) domain.EarlySignal {
	sig := domain.EarlySignal{
		ID:                 uuid.New().String(),
		Type:               raw.Type,
		Title:              raw.Title,
		Agency:             raw.Agency,
		NAICSCode:          raw.NAICSCode,
		PSCCode:            raw.PSCCode,
		SetAside:           raw.SetAside,
		SolicitationNumber: raw.SolicitationNumber,
		EstimatedValue:     raw.EstimatedValue,
		SignalDate:         raw.SignalDate,
		ExpectedRFPDate:    raw.ExpectedRFPDate,
		SourceURL:          raw.SourceURL,
		CreatedAt:          t.now().UTC().Format(time.RFC3339),
	}

	sig.NAICSScore = scoreMembership(raw.NAICSCode, t.Profile.AllowedNAICS, naicsPoints)
	sig.SetAsideScore = scoreSetAside(raw.SetAside, t.Profile.SetAsideCerts)
	sig.AgencyScore = scoreAgency(raw.Agency, t.Profile.TargetAgencies)
	sig.TypeScore = scoreType(raw.Type)
	sig.ValueScore = t.scoreValue(raw.EstimatedValue)

	composite := sig.NAICSScore + sig.SetAsideScore + sig.AgencyScore + sig.TypeScore + sig.ValueScore
	if composite > 100 {
		composite = 100
	}
	sig.Composite = composite
	sig.HotLead = composite >= hotLeadThreshold
	sig.LeadTime = t.leadTime(raw.ExpectedRFPDate)
	return sig
}

func scoreMembership(code string, allowed []string, points float64) float64 {
	if code == "" {
		return 0
	}
	for _, a := range allowed {
		if a == code {
			return points
		}
	}
	return 0
}

func scoreSetAside(setAside string, certs []string) float64 {
	if setAside == "" {
		return 0
	}
	for _, c := range certs {
		if c == setAside {
			return setAsidePoints
		}
	}
	// A veteran set-aside is still partially interesting to an SDVOSB:
	// SDVOSB cert satisfies VOSB preference.
	if setAside == "VOSB" {
		for _, c := range certs {
			if c == "SDVOSB" {
				return setAsidePoints
			}
		}
	}
	return 0
}

func scoreAgency(agency string, targets []string) float64 {
	for _, target := range targets {
		if domain.AgencyMatches(agency, target) {
			return agencyPoints
		}
	}
	return 0
}

// scoreType ranks signal types by how actionable they are. Sources sought
// notices are the most direct precursor to a set-aside decision.
func scoreType(st domain.SignalType) float64 {
	switch st {
	case domain.SignalSourcesSought:
		return 15
	case domain.SignalPreSolicitation:
		return 12
	case domain.SignalRFI, domain.SignalIndustryDay:
		return 10
	case domain.SignalExpiringContract:
		return 8
	default:
		return 5
	}
}

func (t Triager) scoreValue(value *float64) float64 {
	if value == nil {
		return 0
	}
	min, max := t.Signals.SweetSpotMin, t.Signals.SweetSpotMax
	if max <= 0 {
		min, max = 100_000, 10_000_000
	}
	switch v := *value; {
	case v >= min && v <= max:
		return 10
	case v > max:
		return 5
	default:
		return 3
	}
}

func (t Triager) leadTime(expected *string) domain.LeadTimeClass {
	if expected == nil {
		return ""
	}
	rfp, err := time.Parse(time.RFC3339, *expected)
	if err != nil {
		return ""
	}
	days := rfp.Sub(t.now()).Hours() / 24
	switch {
	case days < 90:
		return domain.LeadNear
	case days < 270:
		return domain.LeadMid
	default:
		return domain.LeadFar
	}
}

