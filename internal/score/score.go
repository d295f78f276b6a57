package score

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/revguard/reconciler/internal/config"
	"github.com/revguard/reconciler/internal/domain"
)

// Scorer merges overlapping findings and assigns financial impact,
// combined confidence and a priority tier.
type Scorer struct {
	priorities config.PriorityConfig
}

// New creates a Scorer with the given priority thresholds.
func New(priorities config.PriorityConfig) *Scorer {
	return &Scorer{priorities: priorities}
}

// bucket accumulates findings that will merge into one ScoredFinding.
type bucket struct {
	key      string
	kind     domain.FindingKind
	entity   domain.EntityRef
	members  []domain.DiscrepancyFinding
	evidence map[string]string
}

// Score deduplicates one run's findings and scores the result.
//
// Findings merge only when they were raised against the same entity with
// the same kind and overlapping evidence. Distinct kinds never merge: a
// rate mismatch and a usage mismatch on one entity are separate root
// causes and both survive.
//
// Merged confidence is 1 - prod(1-ci), treating detectors as independent
// evidence. Financial impact is the signed sum of raw deltas: positive
// is revenue leaked (underbilling), negative is overbilling.
func (s *Scorer) Score(findings []domain.DiscrepancyFinding) []domain.ScoredFinding {
	// Deterministic merge order regardless of sink ordering.
	sorted := make([]domain.DiscrepancyFinding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var buckets []*bucket
	byGroup := make(map[string][]*bucket)

	for _, f := range sorted {
		gk := groupKey(f.Entity, f.Kind)
		var target *bucket
		for _, b := range byGroup[gk] {
			if evidenceOverlaps(b.evidence, f.Evidence) {
				target = b
				break
			}
		}
		if target == nil {
			target = &bucket{key: gk, kind: f.Kind, entity: f.Entity, evidence: map[string]string{}}
			buckets = append(buckets, target)
			byGroup[gk] = append(byGroup[gk], target)
		}
		target.members = append(target.members, f)
		mergeEvidence(target.evidence, f.Evidence)
	}

	scored := make([]domain.ScoredFinding, 0, len(buckets))
	for _, b := range buckets {
		var impact float64
		survival := 1.0
		for _, m := range b.members {
			impact += m.RawDelta
			survival *= 1 - m.Confidence
		}
		confidence := 1 - survival

		sf := domain.ScoredFinding{
			ID:              b.members[0].ID,
			Kind:            b.kind,
			Entity:          b.entity,
			FinancialImpact: impact,
			Confidence:      confidence,
			Priority:        s.priority(impact, confidence),
			Evidence:        b.evidence,
			MergedCount:     len(b.members),
		}
		sf.Description = describe(&sf)
		scored = append(scored, sf)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].ID < scored[j].ID })

	zap.L().Debug("score: findings deduplicated",
		zap.Int("raw", len(findings)),
		zap.Int("scored", len(scored)),
	)
	return scored
}

// priority bands the weighted magnitude |impact| x confidence into tiers.
// Raising |impact| at fixed confidence never lowers the tier.
func (s *Scorer) priority(impact, confidence float64) domain.Priority {
	weighted := abs(impact) * confidence
	switch {
	case weighted >= s.priorities.Critical:
		return domain.PriorityCritical
	case weighted >= s.priorities.High:
		return domain.PriorityHigh
	case weighted >= s.priorities.Medium:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func groupKey(e domain.EntityRef, kind domain.FindingKind) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		e.CustomerID, e.ServiceID,
		e.PeriodStart.Format("20060102"), e.PeriodEnd.Format("20060102"),
		kind,
	)
}

// identifyingKeys are the evidence fields that name the concrete source
// rows a finding was raised from. Overlap is judged on these: two
// findings referencing the same invoice or charge group share a root
// cause, while incidental equal values on descriptive fields (a shared
// rate, an equal occurrence count) must not collapse independent
// findings.
var identifyingKeys = []string{"invoice_id", "invoice_ids", "charge_code", "agreed_terms_id"}

// identifierValues collects the row identifiers out of an evidence set.
// Comma-joined lists (invoice_ids) are split into their elements.
func identifierValues(ev map[string]string) map[string]bool {
	ids := make(map[string]bool)
	for _, k := range identifyingKeys {
		for _, part := range strings.Split(ev[k], ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids[part] = true
			}
		}
	}
	return ids
}

// evidenceOverlaps reports whether two evidence sets point at a common
// root cause. When both sides carry row identifiers, those decide; kinds
// whose evidence has no row identifiers fall back to shared field
// values. An empty bucket never blocks its first member.
func evidenceOverlaps(a, b map[string]string) bool {
	ai, bi := identifierValues(a), identifierValues(b)
	if len(ai) > 0 && len(bi) > 0 {
		for v := range bi {
			if ai[v] {
				return true
			}
		}
		return false
	}
	if len(a) == 0 || len(b) == 0 {
		return len(a) == 0 && len(b) == 0
	}
	for k, v := range b {
		if av, ok := a[k]; ok && av == v {
			return true
		}
	}
	return false
}

// mergeEvidence folds one member's evidence into the bucket union.
// Every member's values survive the merge: a key already present keeps
// its value and appends any new ones comma-joined.
func mergeEvidence(dst, src map[string]string) {
	for k, v := range src {
		cur, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		for _, part := range strings.Split(v, ",") {
			if !hasPart(cur, part) {
				cur += "," + part
			}
		}
		dst[k] = cur
	}
}

func hasPart(list, part string) bool {
	for _, p := range strings.Split(list, ",") {
		if p == part {
			return true
		}
	}
	return false
}

func describe(f *domain.ScoredFinding) string {
	direction := "underbilled"
	if f.FinancialImpact < 0 {
		direction = "overbilled"
	}
	switch f.Kind {
	case domain.KindMissingCharge:
		return fmt.Sprintf("No charge billed for %s/%s despite contract and recorded usage; estimated %.2f unbilled",
			f.Entity.CustomerID, f.Entity.ServiceID, f.FinancialImpact)
	case domain.KindRateMismatch:
		return fmt.Sprintf("Billed rate differs from contracted rate for %s/%s; customer %s by %.2f",
			f.Entity.CustomerID, f.Entity.ServiceID, direction, abs(f.FinancialImpact))
	case domain.KindUsageMismatch:
		return fmt.Sprintf("Metered usage disagrees with billed usage for %s/%s; customer %s by %.2f",
			f.Entity.CustomerID, f.Entity.ServiceID, direction, abs(f.FinancialImpact))
	case domain.KindDuplicateEntry:
		return fmt.Sprintf("Duplicate billing entries for %s/%s; %.2f charged beyond the first occurrence",
			f.Entity.CustomerID, f.Entity.ServiceID, abs(f.FinancialImpact))
	}
	return ""
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
