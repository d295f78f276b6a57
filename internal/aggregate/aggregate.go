package aggregate

import (
	"sort"

	"github.com/revguard/reconciler/internal/domain"
)

// Cases groups scored findings by (customer, service) into leakage cases
// for reporting. Pure aggregation: no side effects, deterministic output.
//
// Cases are ordered by total financial impact descending, ties broken by
// max priority descending, then customer then service ascending.
func Cases(findings []domain.ScoredFinding) []domain.LeakageCase {
	type caseKey struct{ customer, service string }

	groups := make(map[caseKey][]domain.ScoredFinding)
	for _, f := range findings {
		k := caseKey{f.Entity.CustomerID, f.Entity.ServiceID}
		groups[k] = append(groups[k], f)
	}

	cases := make([]domain.LeakageCase, 0, len(groups))
	for k, fs := range groups {
		sort.Slice(fs, func(i, j int) bool { return fs[i].ID < fs[j].ID })

		c := domain.LeakageCase{
			CustomerID:   k.customer,
			ServiceID:    k.service,
			FindingCount: len(fs),
			MaxPriority:  domain.PriorityLow,
			Findings:     fs,
		}
		for _, f := range fs {
			c.TotalFinancialImpact += f.FinancialImpact
			if f.Priority.Rank() > c.MaxPriority.Rank() {
				c.MaxPriority = f.Priority
			}
		}
		cases = append(cases, c)
	}

	sort.Slice(cases, func(i, j int) bool {
		a, b := &cases[i], &cases[j]
		if a.TotalFinancialImpact != b.TotalFinancialImpact {
			return a.TotalFinancialImpact > b.TotalFinancialImpact
		}
		if a.MaxPriority.Rank() != b.MaxPriority.Rank() {
			return a.MaxPriority.Rank() > b.MaxPriority.Rank()
		}
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		return a.ServiceID < b.ServiceID
	})

	return cases
}
