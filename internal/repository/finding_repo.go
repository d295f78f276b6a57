package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/revguard/reconciler/internal/domain"
)

// FindingRepo stores scored findings per reconciliation run.
type FindingRepo struct {
	db *sql.DB
}

func NewFindingRepo(db *sql.DB) *FindingRepo {
	return &FindingRepo{db: db}
}

func (r *FindingRepo) BulkInsert(runID string, findings []domain.ScoredFinding) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO findings
		(id, run_id, kind, customer_id, service_id, period_start, period_end,
		 financial_impact, confidence, priority, merged_count, evidence_json, description)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range findings {
		f := &findings[i]
		evidence, err := json.Marshal(f.Evidence)
		if err != nil {
			return inserted, fmt.Errorf("marshal evidence %d: %w", i, err)
		}
		res, err := stmt.Exec(
			f.ID, runID, string(f.Kind), f.Entity.CustomerID, f.Entity.ServiceID,
			f.Entity.PeriodStart.Format(time.RFC3339), f.Entity.PeriodEnd.Format(time.RFC3339),
			f.FinancialImpact, f.Confidence, string(f.Priority), f.MergedCount,
			string(evidence), f.Description,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

type FindingFilter struct {
	RunID      string
	Kind       string
	Priority   string
	CustomerID string
	ServiceID  string
	MinImpact  float64 // absolute value threshold
	Page       int
	Limit      int
}

func (r *FindingRepo) List(f FindingFilter) ([]domain.ScoredFinding, int, error) {
	where, args := buildFindingWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM findings"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := `SELECT id, kind, customer_id, service_id, period_start, period_end,
	             financial_impact, confidence, priority, merged_count, evidence_json, description
	      FROM findings` + where + ` ORDER BY ABS(financial_impact) DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	findings, err := scanFindings(rows)
	return findings, total, err
}

// FindingSummary is the stored-findings rollup served by the API.
type FindingSummary struct {
	TotalCount  int            `json:"total_count"`
	TotalImpact float64        `json:"total_impact"`
	ByKind      map[string]int `json:"by_kind"`
	ByPriority  map[string]int `json:"by_priority"`
}

func (r *FindingRepo) GetSummary(runID string) (*FindingSummary, error) {
	s := &FindingSummary{
		ByKind:     make(map[string]int),
		ByPriority: make(map[string]int),
	}

	where := ""
	var args []any
	if runID != "" {
		where = " WHERE run_id = ?"
		args = append(args, runID)
	}

	if err := r.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(ABS(financial_impact)),0) FROM findings"+where, args...,
	).Scan(&s.TotalCount, &s.TotalImpact); err != nil {
		return nil, err
	}

	if err := r.scanGroupCount("kind", where, args, s.ByKind); err != nil {
		return nil, err
	}
	if err := r.scanGroupCount("priority", where, args, s.ByPriority); err != nil {
		return nil, err
	}

	return s, nil
}

// ClearRun removes one run's findings (used when re-running).
func (r *FindingRepo) ClearRun(runID string) error {
	_, err := r.db.Exec("DELETE FROM findings WHERE run_id = ?", runID)
	return err
}

// --- helpers ---

func buildFindingWhere(f FindingFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.CustomerID != "" {
		clauses = append(clauses, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.ServiceID != "" {
		clauses = append(clauses, "service_id = ?")
		args = append(args, f.ServiceID)
	}
	if f.MinImpact > 0 {
		clauses = append(clauses, "ABS(financial_impact) >= ?")
		args = append(args, f.MinImpact)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *FindingRepo) scanGroupCount(col, where string, args []any, m map[string]int) error {
	rows, err := r.db.Query(
		"SELECT "+col+", COUNT(*) FROM findings"+where+" GROUP BY "+col, args...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		m[k] = v
	}
	return rows.Err()
}

func scanFindings(rows *sql.Rows) ([]domain.ScoredFinding, error) {
	var findings []domain.ScoredFinding
	for rows.Next() {
		var f domain.ScoredFinding
		var kind, prio, startStr, endStr, evidence string

		err := rows.Scan(
			&f.ID, &kind, &f.Entity.CustomerID, &f.Entity.ServiceID,
			&startStr, &endStr, &f.FinancialImpact, &f.Confidence,
			&prio, &f.MergedCount, &evidence, &f.Description,
		)
		if err != nil {
			return nil, err
		}

		f.Kind = domain.FindingKind(kind)
		f.Priority = domain.Priority(prio)
		f.Entity.PeriodStart, _ = time.Parse(time.RFC3339, startStr)
		f.Entity.PeriodEnd, _ = time.Parse(time.RFC3339, endStr)
		if err := json.Unmarshal([]byte(evidence), &f.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence for %s: %w", f.ID, err)
		}

		findings = append(findings, f)
	}
	return findings, rows.Err()
}
