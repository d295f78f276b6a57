package detect

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/revguard/reconciler/internal/config"
	"github.com/revguard/reconciler/internal/domain"
)

// sink collects findings from concurrent detector workers.
type sink struct {
	mu       sync.Mutex
	findings []domain.DiscrepancyFinding
}

func (s *sink) emit(fs []domain.DiscrepancyFinding) {
	if len(fs) == 0 {
		return
	}
	s.mu.Lock()
	s.findings = append(s.findings, fs...)
	s.mu.Unlock()
}

// Run fans the detector bank out across entities on a bounded worker
// pool. Detectors are pure functions of one entity, so entities are
// processed in arbitrary order; the collected findings are re-sorted by
// ID before returning so output is deterministic regardless of
// scheduling.
//
// When ctx expires mid-run the remaining entities are skipped and
// truncated is true: partial results instead of a hang.
func Run(ctx context.Context, entities []domain.ReconciledEntity, cfg config.EngineConfig) (findings []domain.DiscrepancyFinding, truncated bool) {
	bank := Bank()
	out := &sink{}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var skipped sync.Once
	g := &errgroup.Group{}
	g.SetLimit(workers)

	for i := range entities {
		if ctx.Err() != nil {
			skipped.Do(func() { truncated = true })
			break
		}
		e := &entities[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped.Do(func() { truncated = true })
				return nil
			}
			for _, d := range bank {
				out.emit(d.Detect(e, cfg))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out.findings, func(i, j int) bool {
		return out.findings[i].ID < out.findings[j].ID
	})

	if truncated {
		zap.L().Warn("detect: run truncated by deadline",
			zap.Int("entities", len(entities)),
			zap.Int("findings", len(out.findings)),
		)
	}
	return out.findings, truncated
}
