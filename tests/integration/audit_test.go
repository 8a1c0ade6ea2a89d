package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labor/internal/audit"
	"labor/pkg/migrations"
	"labor/pkg/models"
)

func TestMongoRecorder_TrailIsOrdered(t *testing.T) {
	infra := setupInfra(t, withMongo)
	ctx := context.Background()

	require.NoError(t, migrations.EnsureAuditIndexes(ctx, infra.MongoDB, "ingestion_audit"))
	recorder := audit.NewMongoRecorder(infra.MongoDB, "ingestion_audit")

	base := time.Now().UTC().Truncate(time.Millisecond)
	events := []models.AuditEvent{
		{EventType: models.AuditEventReplayed, RawMessageID: "raw-1", Status: models.OutcomeStored, Source: models.SourceRetry, Timestamp: base.Add(time.Second)},
		{EventType: models.AuditEventIngested, RawMessageID: "raw-1", Status: models.OutcomeQuarantined, Source: models.SourceHTTP, Timestamp: base},
		{EventType: models.AuditEventIngested, RawMessageID: "raw-2", Status: models.OutcomeStored, Source: models.SourceHTTP, Timestamp: base},
	}
	for _, e := range events {
		require.NoError(t, recorder.Record(ctx, e))
	}

	trail, err := recorder.ByRawMessage(ctx, "raw-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, models.AuditEventIngested, trail[0].EventType)
	assert.Equal(t, models.AuditEventReplayed, trail[1].EventType)

	none, err := recorder.ByRawMessage(ctx, "raw-missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPipeline_RecordsAuditTrail(t *testing.T) {
	infra := setupInfra(t, withPostgres|withMongo)
	p := buildPipeline(t, infra, createTestConfig())
	require.NotNil(t, p.Audit)
	ctx := context.Background()

	out, err := p.Service.Ingest(ctx, createTestDelivery("msg-1", validPayload))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = p.Service.Ingest(ctx, createTestDelivery("msg-2", validPayload))
	require.NoError(t, err)

	trail, err := p.Audit.ByRawMessage(ctx, out.RawMessageID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, models.OutcomeStored, trail[0].Status)
	assert.Equal(t, out.ResultID, trail[0].ResultID)
	assert.Equal(t, models.OutcomeDuplicate, trail[1].Status)
	assert.Equal(t, "msg-2", trail[1].MessageID)
}
