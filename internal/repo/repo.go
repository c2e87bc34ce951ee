package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bidline/internal/config"
	"bidline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const oppColumns = `id,solicitation_number,title,agency,COALESCE(office,''),COALESCE(description,''),
COALESCE(naics_code,''),COALESCE(psc_code,''),COALESCE(set_aside,''),posted_date,response_deadline,
estimated_value,COALESCE(place_of_performance,''),shapeable,teaming_eligible,status,archived,
COALESCE(source_url,''),created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (domain.Opportunity, error) {
	var o domain.Opportunity
	var deadline sql.NullString
	var value sql.NullFloat64
	err := row.Scan(&o.ID, &o.SolicitationNumber, &o.Title, &o.Agency, &o.Office, &o.Description,
		&o.NAICSCode, &o.PSCCode, &o.SetAside, &o.PostedDate, &deadline,
		&value, &o.PlaceOfPerformance, &o.Shapeable, &o.TeamingEligible, &o.Status, &o.Archived,
		&o.SourceURL, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if deadline.Valid {
		o.ResponseDeadline = &deadline.String
	}
	if value.Valid {
		o.EstimatedValue = &value.Float64
	}
	return o, nil
}

func (r Repo) InsertOpportunity(ctx context.Context, o domain.Opportunity) error {
	return insertOpportunity(ctx, r.DB, nil, o)
}

func (r Repo) InsertOpportunityTx(ctx context.Context, tx *sql.Tx, o domain.Opportunity) error {
	return insertOpportunity(ctx, nil, tx, o)
}

func insertOpportunity(ctx context.Context, db *sql.DB, tx *sql.Tx, o domain.Opportunity) error {
	exec := execer(db, tx)
	var deadline any
	if o.ResponseDeadline != nil {
		deadline = *o.ResponseDeadline
	}
	var value any
	if o.EstimatedValue != nil {
		value = *o.EstimatedValue
	}
	_, err := exec(ctx, `INSERT INTO opportunities(id,solicitation_number,title,agency,office,description,
naics_code,psc_code,set_aside,posted_date,response_deadline,estimated_value,place_of_performance,
shapeable,teaming_eligible,status,archived,source_url,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.SolicitationNumber, o.Title, o.Agency, nullable(o.Office), nullable(o.Description),
		nullable(o.NAICSCode), nullable(o.PSCCode), nullable(o.SetAside), o.PostedDate, deadline,
		value, nullable(o.PlaceOfPerformance), o.Shapeable, o.TeamingEligible, o.Status, o.Archived,
		nullable(o.SourceURL), o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	return scanOpportunity(r.DB.QueryRowContext(ctx, `SELECT `+oppColumns+` FROM opportunities WHERE id=?`, id))
}

func (r Repo) GetOpportunityBySolicitation(ctx context.Context, number string) (domain.Opportunity, error) {
	return scanOpportunity(r.DB.QueryRowContext(ctx, `SELECT `+oppColumns+` FROM opportunities WHERE solicitation_number=?`, number))
}

// ListOpportunities returns non-archived opportunities, newest first.
// Pass status="" for all statuses.
func (r Repo) ListOpportunities(ctx context.Context, status domain.OpportunityStatus, limit int) ([]domain.Opportunity, error) {
	clauses := []string{"archived=0"}
	args := []any{}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT ` + oppColumns + ` FROM opportunities WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// UpdateOpportunityTx replaces all mutable fields of an opportunity row
// inside the caller's tx.
func (r Repo) UpdateOpportunityTx(ctx context.Context, tx *sql.Tx, o domain.Opportunity) error {
	var deadline any
	if o.ResponseDeadline != nil {
		deadline = *o.ResponseDeadline
	}
	var value any
	if o.EstimatedValue != nil {
		value = *o.EstimatedValue
	}
	res, err := tx.ExecContext(ctx, `UPDATE opportunities SET title=?, agency=?, office=?, description=?,
naics_code=?, psc_code=?, set_aside=?, posted_date=?, response_deadline=?, estimated_value=?,
place_of_performance=?, shapeable=?, teaming_eligible=?, status=?, archived=?, source_url=?, updated_at=?
WHERE id=?`,
		o.Title, o.Agency, nullable(o.Office), nullable(o.Description), nullable(o.NAICSCode),
		nullable(o.PSCCode), nullable(o.SetAside), o.PostedDate, deadline, value,
		nullable(o.PlaceOfPerformance), o.Shapeable, o.TeamingEligible, o.Status, o.Archived,
		nullable(o.SourceURL), o.UpdatedAt, o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOpportunityStatusTx updates pipeline status inside the caller's tx.
func (r Repo) SetOpportunityStatusTx(ctx context.Context, tx *sql.Tx, id string, status domain.OpportunityStatus, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE opportunities SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveOpportunity soft-retires an opportunity. Rows are never deleted.
func (r Repo) ArchiveOpportunity(ctx context.Context, id, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE opportunities SET archived=1, updated_at=? WHERE id=?`, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- workflows ---

func (r Repo) InsertWorkflowTx(ctx context.Context, tx *sql.Tx, w domain.WorkflowState) error {
	completed, failed, gates, errs, artifacts, err := marshalWorkflowLists(w)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO workflows(opportunity_id,status,current_stage,completed_json,
failed_json,pending_gates_json,errors_json,auto_approve,artifacts_json,started_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		w.OpportunityID, w.Status, w.CurrentStage, completed, failed, gates, errs, w.AutoApprove, artifacts,
		w.StartedAt, w.UpdatedAt)
	return err
}

func (r Repo) UpdateWorkflowTx(ctx context.Context, tx *sql.Tx, w domain.WorkflowState) error {
	completed, failed, gates, errs, artifacts, err := marshalWorkflowLists(w)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE workflows SET status=?,current_stage=?,completed_json=?,
failed_json=?,pending_gates_json=?,errors_json=?,artifacts_json=?,updated_at=? WHERE opportunity_id=?`,
		w.Status, w.CurrentStage, completed, failed, gates, errs, artifacts, w.UpdatedAt, w.OpportunityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetWorkflow(ctx context.Context, opportunityID string) (domain.WorkflowState, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT opportunity_id,status,current_stage,completed_json,failed_json,
pending_gates_json,errors_json,auto_approve,artifacts_json,started_at,updated_at FROM workflows WHERE opportunity_id=?`, opportunityID)
	var w domain.WorkflowState
	var completed, failed, gates, errs, artifacts string
	err := row.Scan(&w.OpportunityID, &w.Status, &w.CurrentStage, &completed, &failed, &gates, &errs,
		&w.AutoApprove, &artifacts, &w.StartedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal([]byte(completed), &w.Completed); err != nil {
		return w, fmt.Errorf("decode completed stages: %w", err)
	}
	if err := json.Unmarshal([]byte(failed), &w.Failed); err != nil {
		return w, fmt.Errorf("decode failed stages: %w", err)
	}
	if err := json.Unmarshal([]byte(gates), &w.PendingGates); err != nil {
		return w, fmt.Errorf("decode pending gates: %w", err)
	}
	if err := json.Unmarshal([]byte(errs), &w.Errors); err != nil {
		return w, fmt.Errorf("decode errors: %w", err)
	}
	if err := json.Unmarshal([]byte(artifacts), &w.Artifacts); err != nil {
		return w, fmt.Errorf("decode artifacts: %w", err)
	}
	return w, nil
}

func (r Repo) ListWorkflows(ctx context.Context, status domain.WorkflowStatus) ([]domain.WorkflowState, error) {
	query := `SELECT opportunity_id FROM workflows`
	args := []any{}
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var res []domain.WorkflowState
	for _, id := range ids {
		w, err := r.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, nil
}

func marshalWorkflowLists(w domain.WorkflowState) (completed, failed, gates, errs, artifacts string, err error) {
	enc := func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if w.Completed == nil {
		w.Completed = []domain.Stage{}
	}
	if w.Failed == nil {
		w.Failed = []domain.StageFailure{}
	}
	if w.PendingGates == nil {
		w.PendingGates = []domain.Gate{}
	}
	if w.Errors == nil {
		w.Errors = []string{}
	}
	if w.Artifacts == nil {
		w.Artifacts = map[string]json.RawMessage{}
	}
	if completed, err = enc(w.Completed); err != nil {
		return
	}
	if failed, err = enc(w.Failed); err != nil {
		return
	}
	if gates, err = enc(w.PendingGates); err != nil {
		return
	}
	if errs, err = enc(w.Errors); err != nil {
		return
	}
	artifacts, err = enc(w.Artifacts)
	return
}

// --- events ---

func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64, opportunityID string) ([]domain.Event, error) {
	clauses := []string{"id > ?"}
	args := []any{afterID}
	if opportunityID != "" {
		clauses = append(clauses, "opportunity_id=?")
		args = append(args, opportunityID)
	}
	query := `SELECT id,ts,type,COALESCE(opportunity_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json
FROM events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OpportunityID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- config ---

const configName = "default"

func (r Repo) UpsertConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO configs(name,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(name) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		configName, string(payload), now, now)
	return err
}

func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM configs WHERE name=?`, configName).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// --- helpers ---

func execer(db *sql.DB, tx *sql.Tx) func(context.Context, string, ...any) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext
	}
	return db.ExecContext
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
