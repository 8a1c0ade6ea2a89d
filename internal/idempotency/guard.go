package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"labor/internal/config"
	"labor/internal/ldt"
	"labor/internal/logger"
	"labor/internal/message"
	"labor/pkg/metrics"
	"labor/pkg/models"
	"labor/pkg/tracing"
)

// Claim is the result of presenting a delivery to the guard. When Acquired is true the
// caller owns Raw and must drive it to a terminal status or release it. Otherwise Raw is
// the earlier delivery with the same key.
type Claim struct {
	Raw       *message.Raw
	Acquired  bool
	Reclaimed bool
}

// Guard deduplicates deliveries on their idempotency key. The unique index on
// raw_messages.idempotency_key is the only arbiter between concurrent deliveries.
type Guard struct {
	repo     Repository
	hasher   *Hasher
	claimTTL time.Duration
	logger   logger.Logger
	now      func() time.Time
}

func NewGuard(repo Repository, cfg config.IngestionConfig, log logger.Logger) *Guard {
	return &Guard{
		repo:     repo,
		hasher:   NewHasher(cfg.HashAlgorithm),
		claimTTL: cfg.ClaimTTL,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (g *Guard) Claim(ctx context.Context, d *models.Delivery) (Claim, error) {
	ctx, span := tracing.GetTracer("idempotency").Start(ctx, "idempotency.claim")
	defer span.End()

	now := g.now()
	receivedAt := d.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}

	raw := &message.Raw{
		ID:                 uuid.NewString(),
		IdempotencyKey:     g.hasher.Key(d.IdempotencyKey, d.Payload),
		TransportMessageID: d.MessageID,
		Source:             d.Source,
		Payload:            d.Payload,
		Hints:              ldt.Hints{BSNR: d.BSNRHint, LANR: d.LANRHint},
		Status:             message.StatusReceived,
		ReceivedAt:         receivedAt,
		ClaimedAt:          now,
	}
	span.SetAttributes(attribute.String("idempotency.key", raw.IdempotencyKey))

	inserted, err := g.repo.Insert(ctx, raw)
	if err != nil {
		metrics.IncIdempotencyClaim("error")
		return Claim{}, fmt.Errorf("claim %s: %w", raw.IdempotencyKey, err)
	}
	if inserted {
		metrics.IncIdempotencyClaim("acquired")
		return Claim{Raw: raw, Acquired: true}, nil
	}

	reclaimed, err := g.repo.Reclaim(ctx, raw.IdempotencyKey, now.Add(-g.claimTTL), now)
	if err != nil {
		metrics.IncIdempotencyClaim("error")
		return Claim{}, fmt.Errorf("reclaim %s: %w", raw.IdempotencyKey, err)
	}
	if reclaimed != nil {
		metrics.IncIdempotencyClaim("reclaimed")
		g.logger.InfowCtx(ctx, "Reclaimed abandoned raw message claim",
			"raw_message_id", reclaimed.ID,
			"idempotency_key", reclaimed.IdempotencyKey,
		)
		return Claim{Raw: reclaimed, Acquired: true, Reclaimed: true}, nil
	}

	existing, err := g.repo.GetByKey(ctx, raw.IdempotencyKey)
	if err != nil {
		metrics.IncIdempotencyClaim("error")
		return Claim{}, fmt.Errorf("load original for %s: %w", raw.IdempotencyKey, err)
	}
	metrics.IncIdempotencyClaim("duplicate")
	span.SetAttributes(attribute.Bool("idempotency.duplicate", true))
	return Claim{Raw: existing}, nil
}

// Release gives up an acquired claim so that a redelivery can take it over. ctx should
// outlive the request that failed.
func (g *Guard) Release(ctx context.Context, raw *message.Raw) error {
	if err := g.repo.Release(ctx, raw.ID); err != nil {
		return fmt.Errorf("release claim %s: %w", raw.ID, err)
	}
	return nil
}

func (g *Guard) Get(ctx context.Context, id string) (*message.Raw, error) {
	return g.repo.GetByID(ctx, id)
}
