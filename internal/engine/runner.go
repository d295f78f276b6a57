package engine

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/revguard/reconciler/internal/repository"
)

// Runner executes reconciliation over the record store and persists the
// result, which is what the HTTP API serves. The engine itself stays
// pure; all store access lives here.
type Runner struct {
	engine      *Engine
	recordRepo  *repository.RecordRepo
	findingRepo *repository.FindingRepo
	runRepo     *repository.RunRepo
}

// NewRunner wires an engine to the stores.
func NewRunner(e *Engine, records *repository.RecordRepo, findings *repository.FindingRepo, runs *repository.RunRepo) *Runner {
	return &Runner{engine: e, recordRepo: records, findingRepo: findings, runRepo: runs}
}

// RunFromStore loads all ingested records, reconciles them and persists
// the run, its findings and its ordered cases.
func (r *Runner) RunFromStore(ctx context.Context) (*Report, error) {
	records, err := r.recordRepo.GetAllRecords()
	if err != nil {
		return nil, eris.Wrap(err, "runner: load records")
	}

	report, err := r.engine.RunRecords(ctx, records, nil)
	if err != nil {
		return nil, err
	}

	if err := r.runRepo.InsertRun(&report.Summary); err != nil {
		return nil, eris.Wrap(err, "runner: insert run")
	}

	for _, c := range report.Cases {
		if _, err := r.findingRepo.BulkInsert(report.RunID, c.Findings); err != nil {
			return nil, eris.Wrap(err, "runner: insert findings")
		}
	}

	if err := r.runRepo.InsertCases(report.RunID, report.Cases); err != nil {
		return nil, eris.Wrap(err, "runner: insert cases")
	}

	return report, nil
}
