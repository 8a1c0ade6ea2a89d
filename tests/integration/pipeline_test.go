package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labor/internal/ldt"
	"labor/internal/message"
	"labor/internal/owner"
	"labor/internal/pipeline"
	"labor/internal/quarantine"
	"labor/internal/result"
	"labor/pkg/models"
)

var practiceOwner = owner.Owner{
	ID:       "owner-1",
	TenantID: "tenant-1",
	UserID:   "user-1",
	BSNR:     "93860200",
	LANR:     "72720053",
}

func TestPipeline_StoresResultAtomically(t *testing.T) {
	infra := setupInfra(t, withPostgres)
	seedOwner(t, infra.PostgresDB, practiceOwner)
	p := buildPipeline(t, infra, createTestConfig())
	ctx := context.Background()

	out, err := p.Service.Ingest(ctx, createTestDelivery("msg-1", validPayload))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeStored, out.Status)
	assert.Equal(t, "owner-1", out.OwnerID)
	assert.Equal(t, result.ResultID(out.RawMessageID), out.ResultID)
	assert.Equal(t, string(message.StatusStored), rawStatus(t, infra.PostgresDB, out.RawMessageID))

	var ownerID, tenantID, bsnr, lanr, bsnrSource, lastName string
	err = infra.PostgresDB.QueryRowContext(ctx,
		`SELECT owner_id, tenant_id, bsnr, lanr, bsnr_source, patient_last_name FROM results WHERE id = $1`,
		out.ResultID).Scan(&ownerID, &tenantID, &bsnr, &lanr, &bsnrSource, &lastName)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", ownerID)
	assert.Equal(t, "tenant-1", tenantID)
	assert.Equal(t, "93860200", bsnr)
	assert.Equal(t, "72720053", lanr)
	assert.Equal(t, string(ldt.SourcePositional), bsnrSource)
	assert.Equal(t, "Mustermann", lastName)

	results, observations, err := result.NewRepository(infra.PostgresDB).CountByRawMessageID(ctx, out.RawMessageID)
	require.NoError(t, err)
	assert.Equal(t, 1, results)
	assert.Positive(t, observations)
	assert.Zero(t, countRows(t, infra.PostgresDB, "quarantine_entries"))
}

func TestPipeline_UnknownOwnerStoresUnassigned(t *testing.T) {
	infra := setupInfra(t, withPostgres)
	p := buildPipeline(t, infra, createTestConfig())
	ctx := context.Background()

	out, err := p.Service.Ingest(ctx, createTestDelivery("msg-1", validPayload))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStored, out.Status)
	assert.Empty(t, out.OwnerID)

	var unassigned int
	err = infra.PostgresDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM results WHERE owner_id IS NULL`).Scan(&unassigned)
	require.NoError(t, err)
	assert.Equal(t, 1, unassigned)
}

func TestPipeline_DuplicateDeliveryReturnsOriginal(t *testing.T) {
	infra := setupInfra(t, withPostgres)
	p := buildPipeline(t, infra, createTestConfig())
	ctx := context.Background()

	first, err := p.Service.Ingest(ctx, createTestDelivery("msg-1", validPayload))
	require.NoError(t, err)

	second, err := p.Service.Ingest(ctx, createTestDelivery("msg-2", validPayload))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeDuplicate, second.Status)
	assert.Equal(t, first.RawMessageID, second.RawMessageID)
	assert.Equal(t, first.ResultID, second.ResultID)
	assert.Equal(t, 1, countRows(t, infra.PostgresDB, "raw_messages"))
	assert.Equal(t, 1, countRows(t, infra.PostgresDB, "results"))
}

func TestPipeline_ConcurrentDuplicatesStoreOneResult(t *testing.T) {
	infra := setupInfra(t, withPostgres)
	p := buildPipeline(t, infra, createTestConfig())

	const deliveries = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[string]int{}
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := createTestDelivery("msg", validPayload)
			d.IdempotencyKey = "transport-key-1"
			out, err := p.Service.Ingest(context.Background(), d)
			assert.NoError(t, err)
			mu.Lock()
			statuses[out.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[models.OutcomeStored])
	assert.Equal(t, deliveries-1, statuses[models.OutcomeDuplicate])
	assert.Equal(t, 1, countRows(t, infra.PostgresDB, "results"))
}

func TestPipeline_BrokenMessageIsQuarantinedAndRetried(t *testing.T) {
	infra := setupInfra(t, withPostgres)
	cfg := createTestConfig()
	p := buildPipeline(t, infra, cfg)
	ctx := context.Background()

	out, err := p.Service.Ingest(ctx, createTestDelivery("msg-1", brokenPayload))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeQuarantined, out.Status)
	assert.Equal(t, quarantine.ReasonDecodeError, out.Reason)
	assert.Zero(t, countRows(t, infra.PostgresDB, "results"))

	dup, err := p.Service.Ingest(ctx, createTestDelivery("msg-2", brokenPayload))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, dup.Status)
	assert.Equal(t, string(message.StatusQuarantined), dup.Reason)

	worker := quarantine.NewWorker(p.Quarantine, p.Service, nil, cfg.Worker, createTestLogger())
	for attempt := 1; attempt <= cfg.Ingestion.MaxRetries+1; attempt++ {
		time.Sleep(50 * time.Millisecond)
		n, err := worker.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "attempt %d", attempt)
	}

	entry, err := p.Quarantine.GetByRawMessageID(ctx, out.RawMessageID)
	require.NoError(t, err)
	assert.Equal(t, quarantine.StatusPermanentlyFailed, entry.Status)
	assert.Equal(t, cfg.Ingestion.MaxRetries+1, entry.RetryCount)
	assert.Equal(t, string(message.StatusPermanentlyFailed), rawStatus(t, infra.PostgresDB, out.RawMessageID))

	time.Sleep(50 * time.Millisecond)
	n, err := worker.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipeline_ForcedOwnerResolvesEntry(t *testing.T) {
	infra := setupInfra(t, withPostgres)
	seedOwner(t, infra.PostgresDB, practiceOwner)
	p := buildPipeline(t, infra, createTestConfig())
	ctx := context.Background()

	out, err := p.Service.Ingest(ctx, createTestDelivery("msg-1", brokenPayload))
	require.NoError(t, err)
	entry, err := p.Quarantine.GetByRawMessageID(ctx, out.RawMessageID)
	require.NoError(t, err)

	// The payload never decodes, so a forced owner cannot resolve it either.
	forced, err := p.Service.RetryWithForcedOwner(ctx, entry.ID, practiceOwner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeQuarantined, forced.Status)
	assert.Equal(t, 1, forced.RetryCount)

	// Simulate a decoder fix by repairing the stored payload.
	_, err = infra.PostgresDB.ExecContext(ctx,
		`UPDATE raw_messages SET payload = $2 WHERE id = $1`, out.RawMessageID, []byte(validPayload))
	require.NoError(t, err)

	resolved, err := p.Service.RetryWithForcedOwner(ctx, entry.ID, practiceOwner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStored, resolved.Status)
	assert.Equal(t, practiceOwner.ID, resolved.OwnerID)
	assert.Equal(t, result.ResultID(out.RawMessageID), resolved.ResultID)

	entry, err = p.Quarantine.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, quarantine.StatusResolved, entry.Status)
	assert.Equal(t, string(message.StatusStored), rawStatus(t, infra.PostgresDB, out.RawMessageID))

	_, err = p.Service.RetryWithForcedOwner(ctx, entry.ID, practiceOwner.ID)
	require.Error(t, err, "resolved entries cannot be replayed")
}

func TestPipeline_EmptyPayloadIsQuarantined(t *testing.T) {
	infra := setupInfra(t, withPostgres)
	p := buildPipeline(t, infra, createTestConfig())

	var ingester pipeline.Ingester = p.Service
	out, err := ingester.Ingest(context.Background(), createTestDelivery("msg-1", ""))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeQuarantined, out.Status)
	assert.Equal(t, quarantine.ReasonEmptyMessage, out.Reason)

	d := createTestDelivery("msg-2", validPayload)
	d.Source = ""
	_, err = ingester.Ingest(context.Background(), d)
	require.Error(t, err, "a delivery without a source is rejected before it is claimed")
	assert.Equal(t, 1, countRows(t, infra.PostgresDB, "raw_messages"))
}
