package result

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"labor/internal/ldt"
	"labor/internal/logger"
	"labor/internal/message"
	"labor/internal/owner"
	"labor/internal/storage"
	"labor/pkg/tracing"
)

type Materializer struct {
	repo   Repository
	tx     storage.TxRunner
	logger logger.Logger
	now    func() time.Time
}

func NewMaterializer(repo Repository, tx storage.TxRunner, log logger.Logger) *Materializer {
	return &Materializer{
		repo:   repo,
		tx:     tx,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Materializer) Build(fm ldt.FieldMap, ids ldt.Identifiers, o *owner.Owner, raw *message.Raw) *Result {
	return Build(fm, ids, o, raw)
}

// Commit writes res and its observations and marks the raw message stored, all in one
// transaction. The raw message must still be in one of the expected statuses. Each of
// within runs inside the same transaction after the rows are written; any error rolls
// everything back.
func (m *Materializer) Commit(ctx context.Context, res *Result, expected []message.Status, within ...func(ctx context.Context) error) error {
	ctx, span := tracing.GetTracer("result").Start(ctx, "result.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("result.id", res.ID),
		attribute.Int("result.observations", len(res.Observations)),
	)

	res.CreatedAt = m.now()
	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.repo.MarkRawStored(ctx, res.SourceMessageID, res.ID, expected...); err != nil {
			return err
		}
		if err := m.repo.InsertResult(ctx, res); err != nil {
			return err
		}
		if err := m.repo.InsertObservations(ctx, res.Observations); err != nil {
			return err
		}
		for _, fn := range within {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("commit result for raw message %s: %w", res.SourceMessageID, err)
	}

	m.logger.DebugwCtx(ctx, "Result committed",
		"result_id", res.ID,
		"observations", len(res.Observations),
		"assigned", res.OwnerID != nil,
	)
	return nil
}
