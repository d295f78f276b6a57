package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revguard/reconciler/internal/domain"
)

func scored(id, customer, service string, impact float64, priority domain.Priority) domain.ScoredFinding {
	return domain.ScoredFinding{
		ID:   id,
		Kind: domain.KindRateMismatch,
		Entity: domain.EntityRef{
			CustomerID: customer, ServiceID: service,
			PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		FinancialImpact: impact,
		Confidence:      0.9,
		Priority:        priority,
	}
}

func TestCases_GroupsByCustomerService(t *testing.T) {
	cases := Cases([]domain.ScoredFinding{
		scored("F1", "C1", "storage", 100, domain.PriorityMedium),
		scored("F2", "C1", "storage", 50, domain.PriorityLow),
		scored("F3", "C1", "compute", 30, domain.PriorityLow),
	})

	require.Len(t, cases, 2)
	assert.Equal(t, 2, cases[0].FindingCount)
	assert.InDelta(t, 150.0, cases[0].TotalFinancialImpact, 1e-9)
	assert.Equal(t, domain.PriorityMedium, cases[0].MaxPriority)
}

func TestCases_OrderedByImpactDescending(t *testing.T) {
	cases := Cases([]domain.ScoredFinding{
		scored("F1", "C1", "storage", 10, domain.PriorityLow),
		scored("F2", "C2", "storage", 500, domain.PriorityMedium),
		scored("F3", "C3", "storage", 100, domain.PriorityMedium),
	})

	require.Len(t, cases, 3)
	assert.Equal(t, "C2", cases[0].CustomerID)
	assert.Equal(t, "C3", cases[1].CustomerID)
	assert.Equal(t, "C1", cases[2].CustomerID)
}

func TestCases_TieBreakByPriorityThenKey(t *testing.T) {
	cases := Cases([]domain.ScoredFinding{
		scored("F1", "C2", "storage", 100, domain.PriorityLow),
		scored("F2", "C1", "storage", 100, domain.PriorityHigh),
		scored("F3", "C3", "storage", 100, domain.PriorityLow),
	})

	require.Len(t, cases, 3)
	// Same impact: higher priority first, then customer ascending.
	assert.Equal(t, "C1", cases[0].CustomerID)
	assert.Equal(t, "C2", cases[1].CustomerID)
	assert.Equal(t, "C3", cases[2].CustomerID)
}

func TestCases_NegativeImpactSortsLast(t *testing.T) {
	cases := Cases([]domain.ScoredFinding{
		scored("F1", "C1", "storage", -200, domain.PriorityMedium),
		scored("F2", "C2", "storage", 10, domain.PriorityLow),
	})

	require.Len(t, cases, 2)
	assert.Equal(t, "C2", cases[0].CustomerID)
	assert.Equal(t, "C1", cases[1].CustomerID)
}

func TestCases_FindingsSortedWithinCase(t *testing.T) {
	cases := Cases([]domain.ScoredFinding{
		scored("F2", "C1", "storage", 50, domain.PriorityLow),
		scored("F1", "C1", "storage", 100, domain.PriorityLow),
	})

	require.Len(t, cases, 1)
	assert.Equal(t, "F1", cases[0].Findings[0].ID)
	assert.Equal(t, "F2", cases[0].Findings[1].ID)
}

func TestCases_EmptyInput(t *testing.T) {
	assert.Empty(t, Cases(nil))
}
