package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"bidline/internal/domain"
)

// InsertBidScore appends a score row. Scores are never updated; a re-score
// supersedes by insertion order.
func (r Repo) InsertBidScore(ctx context.Context, tx *sql.Tx, s domain.BidScore) error {
	notes, err := json.Marshal(notesOrEmpty(s.Notes))
	if err != nil {
		return fmt.Errorf("marshal score notes: %w", err)
	}
	weights, err := json.Marshal(s.Weights)
	if err != nil {
		return fmt.Errorf("marshal score weights: %w", err)
	}
	exec := execer(r.DB, tx)
	_, err = exec(ctx, `INSERT INTO bid_scores(id,opportunity_id,set_aside_score,scope_score,timeline_score,
competition_score,staffing_score,pricing_score,strategic_score,total_score,recommendation,weights_json,
notes_json,is_va_procurement,requires_vetcert,high_priority,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.OpportunityID, s.SetAside, s.Scope, s.Timeline, s.Competition, s.Staffing, s.Pricing,
		s.Strategic, s.Total, s.Recommendation, string(weights), string(notes), s.IsVAProcurement,
		s.RequiresVetCert, s.HighPriority, s.CreatedAt)
	return err
}

// LatestBidScore returns the most recent score for an opportunity.
func (r Repo) LatestBidScore(ctx context.Context, opportunityID string) (domain.BidScore, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,opportunity_id,set_aside_score,scope_score,timeline_score,
competition_score,staffing_score,pricing_score,strategic_score,total_score,recommendation,weights_json,
notes_json,is_va_procurement,requires_vetcert,high_priority,created_at FROM bid_scores
WHERE opportunity_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, opportunityID)
	return scanBidScore(row)
}

// ListBidScores returns all score rows for an opportunity, newest first.
func (r Repo) ListBidScores(ctx context.Context, opportunityID string) ([]domain.BidScore, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,opportunity_id,set_aside_score,scope_score,timeline_score,
competition_score,staffing_score,pricing_score,strategic_score,total_score,recommendation,weights_json,
notes_json,is_va_procurement,requires_vetcert,high_priority,created_at FROM bid_scores
WHERE opportunity_id=? ORDER BY created_at DESC, id DESC`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BidScore
	for rows.Next() {
		s, err := scanBidScore(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func scanBidScore(row rowScanner) (domain.BidScore, error) {
	var s domain.BidScore
	var weights, notes string
	err := row.Scan(&s.ID, &s.OpportunityID, &s.SetAside, &s.Scope, &s.Timeline, &s.Competition,
		&s.Staffing, &s.Pricing, &s.Strategic, &s.Total, &s.Recommendation, &weights, &notes,
		&s.IsVAProcurement, &s.RequiresVetCert, &s.HighPriority, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(weights), &s.Weights); err != nil {
		return s, fmt.Errorf("decode score weights: %w", err)
	}
	if err := json.Unmarshal([]byte(notes), &s.Notes); err != nil {
		return s, fmt.Errorf("decode score notes: %w", err)
	}
	return s, nil
}

func notesOrEmpty(notes []string) []string {
	if notes == nil {
		return []string{}
	}
	return notes
}
