package domain

import "time"

type FindingKind string

const (
	KindMissingCharge  FindingKind = "MISSING_CHARGE"
	KindRateMismatch   FindingKind = "RATE_MISMATCH"
	KindUsageMismatch  FindingKind = "USAGE_MISMATCH"
	KindDuplicateEntry FindingKind = "DUPLICATE_ENTRY"
)

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// priorityRank orders priorities for comparisons and tie-breaks.
var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// Rank returns the numeric order of a priority (LOW=0 .. CRITICAL=3).
func (p Priority) Rank() int { return priorityRank[p] }

// EntityRef identifies the reconciled entity a finding was raised against.
type EntityRef struct {
	CustomerID  string    `json:"customer_id"`
	ServiceID   string    `json:"service_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// DiscrepancyFinding is one detector firing against one entity.
//
// RawDelta is signed: positive means revenue the provider failed to
// collect (leakage), negative means the customer was overbilled. The
// same convention carries through ScoredFinding and LeakageCase.
type DiscrepancyFinding struct {
	ID         string            `json:"id"`
	Kind       FindingKind       `json:"kind"`
	Entity     EntityRef         `json:"entity"`
	RawDelta   float64           `json:"raw_financial_delta"`
	Evidence   map[string]string `json:"evidence"`
	Confidence float64           `json:"detector_confidence"`
	Detector   string            `json:"detector"`
}

// ScoredFinding is a deduplicated finding with its combined confidence,
// signed financial impact and priority tier.
type ScoredFinding struct {
	ID              string            `json:"id"`
	Kind            FindingKind       `json:"kind"`
	Entity          EntityRef         `json:"entity"`
	FinancialImpact float64           `json:"financial_impact"`
	Confidence      float64           `json:"confidence"`
	Priority        Priority          `json:"priority"`
	Evidence        map[string]string `json:"evidence"`
	MergedCount     int               `json:"merged_count"`
	Description     string            `json:"description"`
}
