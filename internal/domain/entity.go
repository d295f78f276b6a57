package domain

import "time"

// ReconciledEntity is the unit of comparison: the combined view of one
// customer+service+period across the four sources. Slots are slices
// because duplicate billing rows (and split usage logs) must all land in
// the same entity; detectors that expect a single record use the First*
// accessors.
//
// Entities are built once by the matcher and never mutated afterwards.
type ReconciledEntity struct {
	CustomerID  string    `json:"customer_id"`
	ServiceID   string    `json:"service_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	Billing   []BillingRecord  `json:"billing,omitempty"`
	Contracts []ContractRecord `json:"contracts,omitempty"`
	Usage     []UsageRecord    `json:"usage,omitempty"`
	Services  []ServiceRecord  `json:"services,omitempty"`
}

// FirstContract returns the entity's contract record, or nil.
func (e *ReconciledEntity) FirstContract() *ContractRecord {
	if len(e.Contracts) == 0 {
		return nil
	}
	return &e.Contracts[0]
}

// FirstService returns the entity's provisioning record, or nil.
func (e *ReconciledEntity) FirstService() *ServiceRecord {
	if len(e.Services) == 0 {
		return nil
	}
	return &e.Services[0]
}

// TotalUsage sums metered usage across the entity's usage records. Usage
// logs are commonly split into multiple rows per period; the detectors
// compare against the summed quantity.
func (e *ReconciledEntity) TotalUsage() float64 {
	var total float64
	for _, u := range e.Usage {
		total += u.UsageQuantity
	}
	return total
}

// TotalBilled sums billed amounts across the entity's billing records.
func (e *ReconciledEntity) TotalBilled() float64 {
	var total float64
	for _, b := range e.Billing {
		total += b.BilledAmount
	}
	return total
}

// RecordCount returns how many normalized records the entity owns.
func (e *ReconciledEntity) RecordCount() int {
	return len(e.Billing) + len(e.Contracts) + len(e.Usage) + len(e.Services)
}

// UnmatchedRecord is a record that could not be placed into any entity,
// typically because its identifiers were empty after canonicalization.
// Surfaced as a warning in the run summary, never silently dropped.
type UnmatchedRecord struct {
	Ref    RowRef `json:"ref"`
	Reason string `json:"reason"`
}
