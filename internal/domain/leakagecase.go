package domain

import "time"

// LeakageCase aggregates the scored findings of one customer+service for
// reporting. Built once per run; a new run replaces the full set.
type LeakageCase struct {
	CustomerID           string          `json:"customer_id"`
	ServiceID            string          `json:"service_id"`
	TotalFinancialImpact float64         `json:"total_financial_impact"`
	FindingCount         int             `json:"finding_count"`
	MaxPriority          Priority        `json:"max_priority"`
	Findings             []ScoredFinding `json:"findings"`
}

// RowError reports one input row that failed normalization. The row is
// excluded from the run; the run itself continues.
type RowError struct {
	Ref     RowRef `json:"ref"`
	Kind    string `json:"kind"` // schema | validation | unit
	Message string `json:"message"`
}

// RunSummary is the run-level rollup handed to reporting collaborators.
type RunSummary struct {
	RunID            string              `json:"run_id"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
	RecordCounts     map[SourceType]int  `json:"record_counts"`
	EntityCount      int                 `json:"entity_count"`
	FindingCounts    map[FindingKind]int `json:"finding_counts"`
	CaseCount        int                 `json:"case_count"`
	TotalRecoverable float64             `json:"total_recoverable"`
	TotalOverbilled  float64             `json:"total_overbilled"`
	RowErrors        []RowError          `json:"row_errors,omitempty"`
	Unmatched        []UnmatchedRecord   `json:"unmatched,omitempty"`
	Truncated        bool                `json:"truncated"`
}
