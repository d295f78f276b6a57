package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/revguard/reconciler/internal/config"
	"github.com/revguard/reconciler/internal/domain"
)

// Detector is one leakage pattern scanner: a named pure function over a
// single reconciled entity. Detectors never mutate the entity, and a
// detector that lacks the fields it needs simply does not fire.
type Detector struct {
	Name   string
	Kind   domain.FindingKind
	Detect func(*domain.ReconciledEntity, config.EngineConfig) []domain.DiscrepancyFinding
}

// Bank returns the standard detector set.
func Bank() []Detector {
	return []Detector{
		{Name: "missing_charge", Kind: domain.KindMissingCharge, Detect: detectMissingCharge},
		{Name: "rate_mismatch", Kind: domain.KindRateMismatch, Detect: detectRateMismatch},
		{Name: "usage_mismatch", Kind: domain.KindUsageMismatch, Detect: detectUsageMismatch},
		{Name: "duplicate_entry", Kind: domain.KindDuplicateEntry, Detect: detectDuplicateEntry},
	}
}

// saturate maps a relative deviation to a detector confidence: linear in
// the deviation, reaching 1.0 at saturation x tolerance.
func saturate(deviation, tolerance, saturation float64) float64 {
	if tolerance <= 0 || saturation <= 0 {
		return 1
	}
	return math.Min(1, deviation/(saturation*tolerance))
}

func entityRef(e *domain.ReconciledEntity) domain.EntityRef {
	return domain.EntityRef{
		CustomerID:  e.CustomerID,
		ServiceID:   e.ServiceID,
		PeriodStart: e.PeriodStart,
		PeriodEnd:   e.PeriodEnd,
	}
}

// findingID builds a deterministic finding identifier so reruns over the
// same inputs produce byte-identical output.
func findingID(prefix string, e *domain.ReconciledEntity, extra ...string) string {
	parts := []string{
		prefix,
		e.CustomerID,
		e.ServiceID,
		e.PeriodStart.Format("20060102"),
	}
	parts = append(parts, extra...)
	return strings.Join(parts, "-")
}

func fmtAmount(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// detectMissingCharge fires when contract and usage agree a charge was
// due but billing shows nothing: no billing record at all, or a zero
// billed amount against positive usage.
//
// Positive delta: revenue the provider failed to collect.
func detectMissingCharge(e *domain.ReconciledEntity, cfg config.EngineConfig) []domain.DiscrepancyFinding {
	contract := e.FirstContract()
	if contract == nil || len(e.Usage) == 0 {
		return nil
	}
	usage := e.TotalUsage()
	if usage <= 0 {
		return nil
	}
	billed := e.TotalBilled()
	if len(e.Billing) > 0 && billed > 0 {
		return nil
	}

	// A zero amount on an issued invoice is stronger evidence than an
	// absent record, which can also mean the invoice landed in another
	// period.
	confidence := 0.95
	if len(e.Billing) > 0 {
		confidence = 1.0
	}

	evidence := map[string]string{
		"agreed_rate":    fmtAmount(contract.AgreedRate),
		"usage_quantity": fmtAmount(usage),
		"billed_amount":  fmtAmount(billed),
		"billing_rows":   fmt.Sprintf("%d", len(e.Billing)),
	}
	if contract.AgreedTermsID != "" {
		evidence["agreed_terms_id"] = contract.AgreedTermsID
	}

	// A service the provisioning system no longer shows active may be
	// legitimately unbilled.
	if svc := e.FirstService(); svc != nil && svc.Status != domain.ServiceActive {
		confidence *= 0.5
		evidence["service_status"] = string(svc.Status)
	}

	return []domain.DiscrepancyFinding{{
		ID:         findingID("MC", e),
		Kind:       domain.KindMissingCharge,
		Entity:     entityRef(e),
		RawDelta:   contract.AgreedRate * usage,
		Evidence:   evidence,
		Confidence: confidence,
		Detector:   "missing_charge",
	}}
}

// detectRateMismatch fires per billing row whose billed rate deviates
// from the contracted rate beyond tolerance. Undercharging yields a
// positive delta, overcharging a negative one.
func detectRateMismatch(e *domain.ReconciledEntity, cfg config.EngineConfig) []domain.DiscrepancyFinding {
	contract := e.FirstContract()
	if contract == nil || contract.AgreedRate <= 0 || len(e.Billing) == 0 {
		return nil
	}

	var findings []domain.DiscrepancyFinding
	for i := range e.Billing {
		b := &e.Billing[i]
		if b.BilledRate <= 0 {
			continue
		}
		deviation := math.Abs(b.BilledRate-contract.AgreedRate) / contract.AgreedRate
		if deviation <= cfg.RateTolerancePct {
			continue
		}

		// Prefer metered usage as the quantity; fall back to the
		// quantity the invoice itself implies.
		qty := e.TotalUsage()
		if qty <= 0 || len(e.Billing) > 1 {
			qty = b.BilledAmount / b.BilledRate
		}

		findings = append(findings, domain.DiscrepancyFinding{
			ID:       findingID("RM", e, b.InvoiceID),
			Kind:     domain.KindRateMismatch,
			Entity:   entityRef(e),
			RawDelta: (contract.AgreedRate - b.BilledRate) * qty,
			Evidence: map[string]string{
				"agreed_rate":    fmtAmount(contract.AgreedRate),
				"billed_rate":    fmtAmount(b.BilledRate),
				"quantity":       fmtAmount(qty),
				"invoice_id":     b.InvoiceID,
				"rate_deviation": fmtAmount(deviation),
			},
			Confidence: saturate(deviation, cfg.RateTolerancePct, cfg.ConfidenceSaturation),
			Detector:   "rate_mismatch",
		})
	}
	return findings
}

// detectUsageMismatch fires when metered usage differs from the usage the
// billed amount implies at the billed rate, beyond tolerance.
func detectUsageMismatch(e *domain.ReconciledEntity, cfg config.EngineConfig) []domain.DiscrepancyFinding {
	if len(e.Usage) == 0 || len(e.Billing) == 0 {
		return nil
	}
	reported := e.TotalUsage()

	var implied float64
	for i := range e.Billing {
		b := &e.Billing[i]
		if b.BilledRate <= 0 {
			return nil // cannot derive implied usage
		}
		implied += b.BilledAmount / b.BilledRate
	}
	if reported <= 0 && implied <= 0 {
		return nil
	}

	denom := math.Max(reported, implied)
	deviation := math.Abs(reported-implied) / denom
	if deviation <= cfg.UsageTolerancePct {
		return nil
	}

	// Effective rate across the entity's invoices.
	rate := e.TotalBilled() / implied

	return []domain.DiscrepancyFinding{{
		ID:       findingID("UM", e),
		Kind:     domain.KindUsageMismatch,
		Entity:   entityRef(e),
		RawDelta: (reported - implied) * rate,
		Evidence: map[string]string{
			"reported_usage":  fmtAmount(reported),
			"implied_usage":   fmtAmount(implied),
			"billed_rate":     fmtAmount(rate),
			"usage_deviation": fmtAmount(deviation),
		},
		Confidence: saturate(deviation, cfg.UsageTolerancePct, cfg.ConfidenceSaturation),
		Detector:   "usage_mismatch",
	}}
}

// detectDuplicateEntry fires when two or more billing rows share the same
// (charge_code, period) fingerprint within an entity. The delta is the
// sum of amounts beyond the first occurrence, negative: duplicates mean
// the customer was overbilled.
func detectDuplicateEntry(e *domain.ReconciledEntity, cfg config.EngineConfig) []domain.DiscrepancyFinding {
	if len(e.Billing) < 2 {
		return nil
	}

	groups := make(map[string][]*domain.BillingRecord)
	var order []string
	for i := range e.Billing {
		b := &e.Billing[i]
		fp := strings.Join([]string{
			b.ChargeCode,
			b.PeriodStart.Format("20060102"),
			b.PeriodEnd.Format("20060102"),
		}, "|")
		if _, seen := groups[fp]; !seen {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], b)
	}
	sort.Strings(order)

	var findings []domain.DiscrepancyFinding
	for _, fp := range order {
		rows := groups[fp]
		if len(rows) < 2 {
			continue
		}

		var excess float64
		identical := true
		invoices := make([]string, 0, len(rows))
		for i, b := range rows {
			invoices = append(invoices, b.InvoiceID)
			if i > 0 {
				excess += b.BilledAmount
				if b.BilledAmount != rows[0].BilledAmount {
					identical = false
				}
			}
		}

		// Same fingerprint and same amount is a near-certain double
		// charge; differing amounts may be a legitimate correction row.
		confidence := 1.0
		if !identical {
			confidence = 0.8
		}

		findings = append(findings, domain.DiscrepancyFinding{
			ID:       findingID("DE", e, rows[0].ChargeCode),
			Kind:     domain.KindDuplicateEntry,
			Entity:   entityRef(e),
			RawDelta: -excess,
			Evidence: map[string]string{
				"charge_code":   rows[0].ChargeCode,
				"occurrences":   fmt.Sprintf("%d", len(rows)),
				"invoice_ids":   strings.Join(invoices, ","),
				"excess_amount": fmtAmount(excess),
			},
			Confidence: confidence,
			Detector:   "duplicate_entry",
		})
	}
	return findings
}
