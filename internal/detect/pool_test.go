package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revguard/reconciler/internal/config"
	"github.com/revguard/reconciler/internal/domain"
)

func leakyEntities(n int) []domain.ReconciledEntity {
	entities := make([]domain.ReconciledEntity, 0, n)
	for i := 0; i < n; i++ {
		e := entity()
		e.CustomerID = e.CustomerID + string(rune('A'+i%26))
		withUsage(withContract(e, 10), 5)
		entities = append(entities, *e)
	}
	return entities
}

func TestRun_CollectsFindingsFromAllEntities(t *testing.T) {
	cfg := config.Default().Engine
	entities := leakyEntities(10)

	findings, truncated := Run(context.Background(), entities, cfg)
	assert.False(t, truncated)
	assert.Len(t, findings, 10)
	for _, f := range findings {
		assert.Equal(t, domain.KindMissingCharge, f.Kind)
	}
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	entities := leakyEntities(26)

	serial := config.Default().Engine
	serial.Workers = 1
	parallel := config.Default().Engine
	parallel.Workers = 8

	a, _ := Run(context.Background(), entities, serial)
	b, _ := Run(context.Background(), entities, parallel)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].RawDelta, b[i].RawDelta)
	}
}

func TestRun_TruncatesOnExpiredContext(t *testing.T) {
	cfg := config.Default().Engine
	entities := leakyEntities(10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	findings, truncated := Run(ctx, entities, cfg)
	assert.True(t, truncated)
	assert.Empty(t, findings)
}

func TestRun_EmptyInput(t *testing.T) {
	findings, truncated := Run(context.Background(), nil, config.Default().Engine)
	assert.False(t, truncated)
	assert.Empty(t, findings)
}

func TestRun_ZeroWorkersStillRuns(t *testing.T) {
	cfg := config.Default().Engine
	cfg.Workers = 0

	findings, truncated := Run(context.Background(), leakyEntities(3), cfg)
	assert.False(t, truncated)
	assert.Len(t, findings, 3)
}
