package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revguard/reconciler/internal/aggregate"
	"github.com/revguard/reconciler/internal/config"
	"github.com/revguard/reconciler/internal/detect"
	"github.com/revguard/reconciler/internal/domain"
	"github.com/revguard/reconciler/internal/match"
	"github.com/revguard/reconciler/internal/normalize"
	"github.com/revguard/reconciler/internal/score"
)

// Input is one run's raw rows, one slice per source dataset.
type Input struct {
	Billing  []normalize.RawRow
	Contract []normalize.RawRow
	Usage    []normalize.RawRow
	Service  []normalize.RawRow
}

// Report is the full result of a reconciliation run: the ordered leakage
// cases plus the run-level summary. It is fully traversable without
// re-running detection.
type Report struct {
	RunID   string               `json:"run_id"`
	Cases   []domain.LeakageCase `json:"cases"`
	Summary domain.RunSummary    `json:"summary"`
}

// Engine runs the full reconciliation pass: normalize, match, detect,
// score, aggregate. It is stateless per run; identical inputs and
// configuration produce identical cases.
type Engine struct {
	cfg *config.Config
}

// New creates an Engine with the given configuration.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Run normalizes the raw inputs and reconciles them. A row that fails
// normalization is excluded and reported; the run only fails when no
// source yields a single valid record.
func (e *Engine) Run(ctx context.Context, in Input) (*Report, error) {
	n := normalize.New(e.cfg)

	var (
		records []domain.NormalizedRecord
		rowErrs []domain.RowError
	)
	for _, src := range []struct {
		source domain.SourceType
		rows   []normalize.RawRow
	}{
		{domain.SourceBilling, in.Billing},
		{domain.SourceContract, in.Contract},
		{domain.SourceUsage, in.Usage},
		{domain.SourceService, in.Service},
	} {
		recs, errs := n.Normalize(src.source, src.rows)
		records = append(records, recs...)
		rowErrs = append(rowErrs, errs...)
	}

	return e.RunRecords(ctx, records, rowErrs)
}

// RunRecords reconciles already-normalized records. Used by Run and by
// the store-backed path where normalization happened at ingest time.
func (e *Engine) RunRecords(ctx context.Context, records []domain.NormalizedRecord, rowErrs []domain.RowError) (*Report, error) {
	started := time.Now().UTC()

	if len(records) == 0 {
		return nil, &normalize.InsufficientDataError{RowErrors: len(rowErrs)}
	}

	counts := make(map[domain.SourceType]int)
	for i := range records {
		counts[records[i].Source]++
	}

	matched := match.New(e.cfg.Engine).Match(records)

	findings, truncated := detect.Run(ctx, matched.Entities, e.cfg.Engine)
	scored := score.New(e.cfg.Priority).Score(findings)
	cases := aggregate.Cases(scored)

	summary := domain.RunSummary{
		RunID:         uuid.NewString(),
		StartedAt:     started,
		FinishedAt:    time.Now().UTC(),
		RecordCounts:  counts,
		EntityCount:   len(matched.Entities),
		FindingCounts: make(map[domain.FindingKind]int),
		CaseCount:     len(cases),
		RowErrors:     rowErrs,
		Unmatched:     matched.Unmatched,
		Truncated:     truncated,
	}
	for _, f := range scored {
		summary.FindingCounts[f.Kind]++
		if f.FinancialImpact >= 0 {
			summary.TotalRecoverable += f.FinancialImpact
		} else {
			summary.TotalOverbilled += -f.FinancialImpact
		}
	}

	zap.L().Info("engine: run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("entities", summary.EntityCount),
		zap.Int("findings", len(scored)),
		zap.Int("cases", summary.CaseCount),
		zap.Float64("recoverable", summary.TotalRecoverable),
		zap.Float64("overbilled", summary.TotalOverbilled),
		zap.Bool("truncated", summary.Truncated),
	)

	return &Report{RunID: summary.RunID, Cases: cases, Summary: summary}, nil
}
