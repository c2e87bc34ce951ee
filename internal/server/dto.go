package server

import (
	"encoding/json"

	"bidline/internal/domain"
	"bidline/internal/signals"
)

// Request payloads

type CreateOpportunityRequest struct {
	SolicitationNumber string   `json:"solicitation_number"`
	Title              string   `json:"title"`
	Agency             string   `json:"agency,omitempty"`
	Office             string   `json:"office,omitempty"`
	Description        string   `json:"description,omitempty"`
	NAICSCode          string   `json:"naics_code,omitempty"`
	PSCCode            string   `json:"psc_code,omitempty"`
	SetAside           string   `json:"set_aside,omitempty"`
	PostedDate         string   `json:"posted_date,omitempty" format:"date-time"`
	ResponseDeadline   *string  `json:"response_deadline,omitempty" format:"date-time"`
	EstimatedValue     *float64 `json:"estimated_value,omitempty"`
	PlaceOfPerformance string   `json:"place_of_performance,omitempty"`
	TeamingEligible    bool     `json:"teaming_eligible,omitempty"`
	SourceURL          string   `json:"source_url,omitempty"`
}

type StartWorkflowRequest struct {
	AutoApprove bool `json:"auto_approve,omitempty"`
}

type GateDecisionRequest struct {
	Note string `json:"note,omitempty"`
}

type AbortWorkflowRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ScanSignalsRequest struct {
	DaysBack int `json:"days_back,omitempty"`
}

type TriageSignalRequest struct {
	Type               string   `json:"signal_type,omitempty" enum:"sources_sought,pre_solicitation,rfi,industry_day,expiring_contract"`
	Title              string   `json:"title"`
	Agency             string   `json:"agency,omitempty"`
	NAICSCode          string   `json:"naics_code,omitempty"`
	PSCCode            string   `json:"psc_code,omitempty"`
	SetAside           string   `json:"set_aside,omitempty"`
	SolicitationNumber string   `json:"solicitation_number,omitempty"`
	EstimatedValue     *float64 `json:"estimated_value,omitempty"`
	SignalDate         string   `json:"signal_date,omitempty" format:"date-time"`
	ExpectedRFPDate    *string  `json:"expected_rfp_date,omitempty" format:"date-time"`
	SourceURL          string   `json:"source_url,omitempty"`
}

// Response payloads

type EventResponse struct {
	ID            int64          `json:"id"`
	TS            string         `json:"ts" format:"date-time"`
	Type          string         `json:"type"`
	OpportunityID string         `json:"opportunity_id,omitempty"`
	EntityKind    string         `json:"entity_kind"`
	EntityID      string         `json:"entity_id,omitempty"`
	ActorID       string         `json:"actor_id"`
	Payload       map[string]any `json:"payload,omitempty"`
}

type opportunityList struct {
	Items []domain.Opportunity `json:"items"`
}

type scoreList struct {
	Items []domain.BidScore `json:"items"`
}

type signalList struct {
	Items []domain.EarlySignal `json:"items"`
}

type eventList struct {
	Items []EventResponse `json:"items"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Conversion helpers

func opportunityFromRequest(req CreateOpportunityRequest) domain.Opportunity {
	return domain.Opportunity{
		SolicitationNumber: req.SolicitationNumber,
		Title:              req.Title,
		Agency:             req.Agency,
		Office:             req.Office,
		Description:        req.Description,
		NAICSCode:          req.NAICSCode,
		PSCCode:            req.PSCCode,
		SetAside:           req.SetAside,
		PostedDate:         req.PostedDate,
		ResponseDeadline:   req.ResponseDeadline,
		EstimatedValue:     req.EstimatedValue,
		PlaceOfPerformance: req.PlaceOfPerformance,
		TeamingEligible:    req.TeamingEligible,
		SourceURL:          req.SourceURL,
	}
}

func rawFromRequest(req TriageSignalRequest) signals.Raw {
	return signals.Raw{
		Type:               domain.SignalType(req.Type),
		Title:              req.Title,
		Agency:             req.Agency,
		NAICSCode:          req.NAICSCode,
		PSCCode:            req.PSCCode,
		SetAside:           req.SetAside,
		SolicitationNumber: req.SolicitationNumber,
		EstimatedValue:     req.EstimatedValue,
		SignalDate:         req.SignalDate,
		ExpectedRFPDate:    req.ExpectedRFPDate,
		SourceURL:          req.SourceURL,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:            e.ID,
		TS:            e.TS,
		Type:          e.Type,
		OpportunityID: e.OpportunityID,
		EntityKind:    e.EntityKind,
		EntityID:      e.EntityID,
		ActorID:       e.ActorID,
		Payload:       decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
