package match

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/revguard/reconciler/internal/config"
	"github.com/revguard/reconciler/internal/domain"
)

// Matcher joins normalized records from all four sources into
// ReconciledEntity groups keyed by (customer, service, period).
//
// Identifier matching is exact equality after canonicalization (trim,
// collapse whitespace, uppercase). No probabilistic string matching:
// every join must be auditable from the key values alone.
type Matcher struct {
	cfg config.EngineConfig
}

// New creates a Matcher with the given engine settings.
func New(cfg config.EngineConfig) *Matcher {
	return &Matcher{cfg: cfg}
}

// Result carries the built entities plus the records that could not be
// placed anywhere. Every input record appears in exactly one entity or
// in Unmatched; nothing is dropped.
type Result struct {
	Entities  []domain.ReconciledEntity
	Unmatched []domain.UnmatchedRecord
}

// CanonicalKey normalizes an identifier for exact-key matching.
func CanonicalKey(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Match partitions records by canonical (customer, service) key, then
// aligns periods within each partition: a record joins the cluster whose
// canonical period it overlaps (the canonical period is the intersection
// of its overlapping members), or, absent any overlap, the nearest
// cluster within the gap tolerance that is still missing the record's
// source type. Records left over start their own cluster, which is what
// produces the partial entities the missing-charge detector needs.
func (m *Matcher) Match(records []domain.NormalizedRecord) Result {
	type partKey struct{ customer, service string }

	parts := make(map[partKey][]domain.NormalizedRecord)
	var order []partKey
	var unmatched []domain.UnmatchedRecord

	for _, rec := range records {
		customer, service := rec.Key()
		key := partKey{CanonicalKey(customer), CanonicalKey(service)}
		if key.customer == "" || key.service == "" {
			unmatched = append(unmatched, domain.UnmatchedRecord{
				Ref:    rec.Ref(),
				Reason: "empty customer or service identifier after canonicalization",
			})
			continue
		}
		if _, seen := parts[key]; !seen {
			order = append(order, key)
		}
		parts[key] = append(parts[key], rec)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].customer != order[j].customer {
			return order[i].customer < order[j].customer
		}
		return order[i].service < order[j].service
	})

	var entities []domain.ReconciledEntity
	for _, key := range order {
		entities = append(entities, m.cluster(key.customer, key.service, parts[key])...)
	}

	sort.Slice(entities, func(i, j int) bool {
		a, b := &entities[i], &entities[j]
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		if a.ServiceID != b.ServiceID {
			return a.ServiceID < b.ServiceID
		}
		if !a.PeriodStart.Equal(b.PeriodStart) {
			return a.PeriodStart.Before(b.PeriodStart)
		}
		return a.PeriodEnd.Before(b.PeriodEnd)
	})

	zap.L().Debug("match: built entities",
		zap.Int("records", len(records)),
		zap.Int("entities", len(entities)),
		zap.Int("unmatched", len(unmatched)),
	)

	return Result{Entities: entities, Unmatched: unmatched}
}

// cluster groups one partition's records into period-aligned entities.
type cluster struct {
	start, end time.Time
	members    []domain.NormalizedRecord
	sources    map[domain.SourceType]bool
}

func (m *Matcher) cluster(customer, service string, recs []domain.NormalizedRecord) []domain.ReconciledEntity {
	// Deterministic processing order regardless of input row order.
	sort.Slice(recs, func(i, j int) bool {
		si, ei := recs[i].Period()
		sj, ej := recs[j].Period()
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		ri, rj := recs[i].Ref(), recs[j].Ref()
		if ri.Source != rj.Source {
			return ri.Source < rj.Source
		}
		return ri.Line < rj.Line
	})

	gap := time.Duration(m.cfg.GapDays) * 24 * time.Hour
	var clusters []*cluster

	for _, rec := range recs {
		start, end := rec.Period()

		// First choice: the cluster with the largest period overlap.
		var best *cluster
		var bestOverlap time.Duration
		for _, c := range clusters {
			if ov := overlap(start, end, c.start, c.end); ov > bestOverlap {
				best, bestOverlap = c, ov
			}
		}
		if best != nil {
			best.add(rec, start, end, true)
			continue
		}

		// Fallback: nearest-adjacent cluster within the gap tolerance,
		// but only one that is still missing this record's source. The
		// tolerance exists to pair a stray record with its counterpart
		// period, not to chain consecutive periods of the same source
		// into one entity.
		var nearest *cluster
		var nearestDist time.Duration
		for _, c := range clusters {
			if c.sources[rec.Source] {
				continue
			}
			if d := distance(start, end, c.start, c.end); d <= gap && (nearest == nil || d < nearestDist) {
				nearest, nearestDist = c, d
			}
		}
		if nearest != nil {
			nearest.add(rec, start, end, false)
			continue
		}

		clusters = append(clusters, &cluster{
			start:   start,
			end:     end,
			members: []domain.NormalizedRecord{rec},
			sources: map[domain.SourceType]bool{rec.Source: true},
		})
	}

	entities := make([]domain.ReconciledEntity, 0, len(clusters))
	for _, c := range clusters {
		e := domain.ReconciledEntity{
			CustomerID:  customer,
			ServiceID:   service,
			PeriodStart: c.start,
			PeriodEnd:   c.end,
		}
		for _, rec := range c.members {
			switch rec.Source {
			case domain.SourceBilling:
				b := *rec.Billing
				b.CustomerID, b.ServiceID = customer, service
				e.Billing = append(e.Billing, b)
			case domain.SourceContract:
				ct := *rec.Contract
				ct.CustomerID, ct.ServiceID = customer, service
				e.Contracts = append(e.Contracts, ct)
			case domain.SourceUsage:
				u := *rec.Usage
				u.CustomerID, u.ServiceID = customer, service
				e.Usage = append(e.Usage, u)
			case domain.SourceService:
				s := *rec.Service
				s.CustomerID, s.ServiceID = customer, service
				e.Services = append(e.Services, s)
			}
		}
		entities = append(entities, e)
	}
	return entities
}

// add places a record into the cluster. Overlapping members shrink the
// canonical period to the intersection as long as it stays non-empty;
// gap-joined members leave it untouched.
func (c *cluster) add(rec domain.NormalizedRecord, start, end time.Time, overlapping bool) {
	c.members = append(c.members, rec)
	c.sources[rec.Source] = true
	if !overlapping {
		return
	}
	s, e := c.start, c.end
	if start.After(s) {
		s = start
	}
	if end.Before(e) {
		e = end
	}
	if s.Before(e) {
		c.start, c.end = s, e
	}
}

// overlap returns the overlap duration of [s1,e1) and [s2,e2), zero when
// disjoint.
func overlap(s1, e1, s2, e2 time.Time) time.Duration {
	s := s1
	if s2.After(s) {
		s = s2
	}
	e := e1
	if e2.Before(e) {
		e = e2
	}
	if !s.Before(e) {
		return 0
	}
	return e.Sub(s)
}

// distance returns the gap between two disjoint intervals, zero when they
// touch or overlap.
func distance(s1, e1, s2, e2 time.Time) time.Duration {
	if overlap(s1, e1, s2, e2) > 0 {
		return 0
	}
	if d := s2.Sub(e1); d >= 0 {
		return d
	}
	return s1.Sub(e2)
}
