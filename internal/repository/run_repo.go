package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/revguard/reconciler/internal/domain"
)

// RunRepo stores run summaries and their ordered leakage cases.
type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) InsertRun(s *domain.RunSummary) error {
	summary, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	truncated := 0
	if s.Truncated {
		truncated = 1
	}
	_, err = r.db.Exec(
		`INSERT INTO runs
		(id, started_at, finished_at, truncated, entity_count, case_count,
		 total_recoverable, total_overbilled, summary_json)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		s.RunID, s.StartedAt.Format(time.RFC3339), s.FinishedAt.Format(time.RFC3339),
		truncated, s.EntityCount, s.CaseCount, s.TotalRecoverable, s.TotalOverbilled,
		string(summary),
	)
	return err
}

// GetRun loads one run summary by ID, or nil when unknown.
func (r *RunRepo) GetRun(id string) (*domain.RunSummary, error) {
	var summary string
	err := r.db.QueryRow("SELECT summary_json FROM runs WHERE id = ?", id).Scan(&summary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s domain.RunSummary
	if err := json.Unmarshal([]byte(summary), &s); err != nil {
		return nil, fmt.Errorf("unmarshal summary for %s: %w", id, err)
	}
	return &s, nil
}

// LatestRunID returns the most recently finished run's ID, or "".
func (r *RunRepo) LatestRunID() (string, error) {
	var id string
	err := r.db.QueryRow("SELECT id FROM runs ORDER BY finished_at DESC, id DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// InsertCases stores a run's ordered cases. Position preserves the
// aggregator's deterministic ordering across reads.
func (r *RunRepo) InsertCases(runID string, cases []domain.LeakageCase) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO cases
		(run_id, position, customer_id, service_id, total_impact, finding_count, max_priority)
		VALUES (?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range cases {
		c := &cases[i]
		if _, err := stmt.Exec(
			runID, i, c.CustomerID, c.ServiceID,
			c.TotalFinancialImpact, c.FindingCount, string(c.MaxPriority),
		); err != nil {
			return fmt.Errorf("insert case %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetCases loads one run's cases in stored order, each populated with its
// findings from the finding store.
func (r *RunRepo) GetCases(runID string, findings *FindingRepo) ([]domain.LeakageCase, error) {
	rows, err := r.db.Query(
		`SELECT customer_id, service_id, total_impact, finding_count, max_priority
		 FROM cases WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []domain.LeakageCase
	for rows.Next() {
		var c domain.LeakageCase
		var prio string
		if err := rows.Scan(&c.CustomerID, &c.ServiceID, &c.TotalFinancialImpact, &c.FindingCount, &prio); err != nil {
			return nil, err
		}
		c.MaxPriority = domain.Priority(prio)
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cases {
		fs, _, err := findings.List(FindingFilter{
			RunID:      runID,
			CustomerID: cases[i].CustomerID,
			ServiceID:  cases[i].ServiceID,
			Limit:      1000,
		})
		if err != nil {
			return nil, err
		}
		cases[i].Findings = fs
	}
	return cases, nil
}
