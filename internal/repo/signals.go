package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bidline/internal/domain"
)

func (r Repo) InsertSignal(ctx context.Context, s domain.EarlySignal) error {
	return r.insertSignal(ctx, nil, s)
}

// InsertSignalTx inserts a signal row inside the caller's tx.
func (r Repo) InsertSignalTx(ctx context.Context, tx *sql.Tx, s domain.EarlySignal) error {
	return r.insertSignal(ctx, tx, s)
}

func (r Repo) insertSignal(ctx context.Context, tx *sql.Tx, s domain.EarlySignal) error {
	var rfpDate any
	if s.ExpectedRFPDate != nil {
		rfpDate = *s.ExpectedRFPDate
	}
	var value any
	if s.EstimatedValue != nil {
		value = *s.EstimatedValue
	}
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO early_signals(id,signal_type,title,agency,naics_code,psc_code,
set_aside,solicitation_number,estimated_value,signal_date,expected_rfp_date,lead_time,naics_score,
set_aside_score,agency_score,type_score,value_score,composite,hot_lead,source_url,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Type, s.Title, s.Agency, nullable(s.NAICSCode), nullable(s.PSCCode),
		nullable(s.SetAside), nullable(s.SolicitationNumber), value, s.SignalDate, rfpDate,
		nullable(string(s.LeadTime)), s.NAICSScore, s.SetAsideScore, s.AgencyScore, s.TypeScore,
		s.ValueScore, s.Composite, s.HotLead, nullable(s.SourceURL), s.CreatedAt)
	return err
}

// SignalExists reports whether a signal with this solicitation number is
// already tracked, for scan dedup.
func (r Repo) SignalExists(ctx context.Context, solicitationNumber string) (bool, error) {
	if solicitationNumber == "" {
		return false, nil
	}
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM early_signals WHERE solicitation_number=? LIMIT 1`, solicitationNumber).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ListSignals returns signals newest first; hotOnly restricts to hot leads.
func (r Repo) ListSignals(ctx context.Context, hotOnly bool, limit int) ([]domain.EarlySignal, error) {
	clauses := []string{"1=1"}
	if hotOnly {
		clauses = append(clauses, "hot_lead=1")
	}
	query := `SELECT id,signal_type,title,agency,COALESCE(naics_code,''),COALESCE(psc_code,''),
COALESCE(set_aside,''),COALESCE(solicitation_number,''),estimated_value,signal_date,expected_rfp_date,
COALESCE(lead_time,''),naics_score,set_aside_score,agency_score,type_score,value_score,composite,
hot_lead,COALESCE(source_url,''),created_at FROM early_signals WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY composite DESC, created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EarlySignal
	for rows.Next() {
		var s domain.EarlySignal
		var rfpDate sql.NullString
		var value sql.NullFloat64
		var leadTime string
		if err := rows.Scan(&s.ID, &s.Type, &s.Title, &s.Agency, &s.NAICSCode, &s.PSCCode,
			&s.SetAside, &s.SolicitationNumber, &value, &s.SignalDate, &rfpDate,
			&leadTime, &s.NAICSScore, &s.SetAsideScore, &s.AgencyScore, &s.TypeScore, &s.ValueScore,
			&s.Composite, &s.HotLead, &s.SourceURL, &s.CreatedAt); err != nil {
			return nil, err
		}
		if rfpDate.Valid {
			s.ExpectedRFPDate = &rfpDate.String
		}
		if value.Valid {
			s.EstimatedValue = &value.Float64
		}
		s.LeadTime = domain.LeadTimeClass(leadTime)
		res = append(res, s)
	}
	return res, rows.Err()
}
