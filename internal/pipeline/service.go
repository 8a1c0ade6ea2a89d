// Package pipeline drives a delivery from its idempotency claim to a terminal outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/encoding/charmap"

	"labor/internal/audit"
	"labor/internal/config"
	"labor/internal/idempotency"
	"labor/internal/ldt"
	"labor/internal/logger"
	"labor/internal/message"
	"labor/internal/owner"
	"labor/internal/quarantine"
	"labor/internal/result"
	apperrors "labor/pkg/errors"
	"labor/pkg/logging"
	"labor/pkg/metrics"
	"labor/pkg/models"
	"labor/pkg/tracing"
)

type Claimer interface {
	Claim(ctx context.Context, d *models.Delivery) (idempotency.Claim, error)
	Release(ctx context.Context, raw *message.Raw) error
	Get(ctx context.Context, id string) (*message.Raw, error)
}

type OwnerMatcher interface {
	Match(ctx context.Context, bsnr, lanr *string) (*owner.Owner, error)
	Get(ctx context.Context, id string) (*owner.Owner, error)
}

type Quarantiner interface {
	Quarantine(ctx context.Context, raw *message.Raw, cause error) (*quarantine.Entry, error)
	RecordFailure(ctx context.Context, entry *quarantine.Entry, cause error) (*quarantine.Entry, error)
	Resolve(ctx context.Context, entry *quarantine.Entry) error
	ReleaseLease(ctx context.Context, entry *quarantine.Entry) error
	Lease(ctx context.Context, id string) (*quarantine.Entry, error)
	GetByRawMessageID(ctx context.Context, rawMessageID string) (*quarantine.Entry, error)
}

type Committer interface {
	Build(fm ldt.FieldMap, ids ldt.Identifiers, o *owner.Owner, raw *message.Raw) *result.Result
	Commit(ctx context.Context, res *result.Result, expected []message.Status, within ...func(ctx context.Context) error) error
}

type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, event models.OutcomeEvent) error
}

type Service struct {
	guard        Claimer
	matcher      OwnerMatcher
	quarantine   Quarantiner
	materializer Committer
	publisher    OutcomePublisher
	recorder     audit.Recorder
	storeTimeout time.Duration
	charset      *charmap.Charmap
	logger       logger.Logger
	now          func() time.Time
}

type Option func(*Service)

// WithPublisher publishes every terminal outcome. Publishing is best effort.
func WithPublisher(p OutcomePublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithRecorder(r audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func NewService(guard Claimer, matcher OwnerMatcher, q Quarantiner, materializer Committer, cfg config.IngestionConfig, log logger.Logger, opts ...Option) *Service {
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	charset, ok := ldt.LookupCharset(cfg.FallbackCharset)
	if !ok {
		charset = charmap.ISO8859_15
	}
	s := &Service{
		guard:        guard,
		matcher:      matcher,
		quarantine:   q,
		materializer: materializer,
		recorder:     audit.NopRecorder{},
		storeTimeout: storeTimeout,
		charset:      charset,
		logger:       log,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest processes one delivery. The returned outcome is final; a non-nil error means no
// outcome was reached and the transport must redeliver.
func (s *Service) Ingest(ctx context.Context, d *models.Delivery) (Outcome, error) {
	start := time.Now()
	ctx, span := tracing.GetTracer("pipeline").Start(ctx, "pipeline.ingest")
	defer span.End()

	if err := models.ValidateDelivery(d); err != nil {
		return Outcome{}, apperrors.ErrInvalidPayload.WithCause(err)
	}
	ctx = logging.WithMessageID(ctx, d.MessageID)

	claim, err := s.guard.Claim(ctx, d)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.ObserveIngestion(d.Source, "error", time.Since(start))
		return Outcome{}, err
	}
	raw := claim.Raw
	ctx = logging.WithRawMessageID(ctx, raw.ID)
	ctx = logging.WithIdempotencyKey(ctx, raw.IdempotencyKey)
	span.SetAttributes(attribute.String("raw_message.id", raw.ID))

	var outcome Outcome
	if !claim.Acquired {
		outcome = s.duplicate(ctx, raw, d)
	} else {
		outcome, err = s.process(ctx, raw)
		if err != nil {
			s.release(ctx, raw)
			tracing.RecordError(span, err)
			metrics.ObserveIngestion(d.Source, "error", time.Since(start))
			return Outcome{}, err
		}
	}
	outcome.MessageID = d.MessageID
	outcome.Source = d.Source

	span.SetAttributes(attribute.String("outcome.status", outcome.Status))
	metrics.ObserveIngestion(d.Source, outcome.Status, time.Since(start))
	s.announce(ctx, models.AuditEventIngested, raw.IdempotencyKey, outcome)
	return outcome, nil
}

// process runs decode, assemble, resolve, match and materialize for a freshly claimed
// raw message.
func (s *Service) process(ctx context.Context, raw *message.Raw) (Outcome, error) {
	records, text, err := ldt.DecodePayload(raw.Payload, s.charset)
	if err != nil {
		return s.quarantineNew(ctx, raw, err)
	}

	fm, ids := s.normalize(records, text, raw.Hints)
	o, err := s.matcher.Match(ctx, ids.BSNR, ids.LANR)
	if err != nil {
		return Outcome{}, err
	}

	res := s.materializer.Build(fm, ids, o, raw)
	if err := s.materializer.Commit(ctx, res, []message.Status{message.StatusReceived}); err != nil {
		if rejectedByStore(err) {
			return s.quarantineNew(ctx, raw, err)
		}
		return Outcome{}, err
	}

	if o == nil {
		s.logger.InfowCtx(ctx, "Result stored unassigned",
			"result_id", res.ID,
			"bsnr", deref(ids.BSNR),
			"lanr", deref(ids.LANR),
		)
	}
	return storedOutcome(raw, res, ids), nil
}

func (s *Service) quarantineNew(ctx context.Context, raw *message.Raw, cause error) (Outcome, error) {
	s.countDecodeFailure(cause)

	entry, err := s.quarantine.Quarantine(ctx, raw, cause)
	if err != nil {
		return Outcome{}, err
	}
	s.logger.WarnwCtx(ctx, "Message quarantined",
		"quarantine_entry_id", entry.ID,
		"error", cause,
	)
	return Outcome{
		Status:       models.OutcomeQuarantined,
		RawMessageID: raw.ID,
		Reason:       entry.Reason,
		RetryCount:   entry.RetryCount,
	}, nil
}

func (s *Service) duplicate(ctx context.Context, raw *message.Raw, d *models.Delivery) Outcome {
	s.logger.InfowCtx(ctx, "Duplicate delivery ignored",
		"original_status", raw.Status,
		"transport_message_id", d.MessageID,
	)
	out := Outcome{
		Status:       models.OutcomeDuplicate,
		RawMessageID: raw.ID,
		ResultID:     deref(raw.ResultID),
	}
	if raw.Status == message.StatusQuarantined || raw.Status == message.StatusPermanentlyFailed {
		out.Reason = string(raw.Status)
	}
	return out
}

func (s *Service) normalize(records []ldt.Record, text string, hints ldt.Hints) (ldt.FieldMap, ldt.Identifiers) {
	fm := ldt.Assemble(records)
	metrics.AddLengthMismatches(fm.LengthMismatches)

	ids := ldt.ResolveIdentifiers(fm, text, hints)
	metrics.IncIdentifierResolution("bsnr", string(ids.BSNRSource))
	metrics.IncIdentifierResolution("lanr", string(ids.LANRSource))
	return fm, ids
}

// Replay implements quarantine.Replayer.
func (s *Service) Replay(ctx context.Context, entry *quarantine.Entry) error {
	_, err := s.ReplayEntry(ctx, entry)
	return err
}

// ReplayEntry reprocesses a leased quarantine entry.
func (s *Service) ReplayEntry(ctx context.Context, entry *quarantine.Entry) (Outcome, error) {
	return s.replay(ctx, entry, nil, models.AuditEventReplayed)
}

// RetryWithForcedOwner replays a quarantine entry and assigns the result to ownerID
// instead of the owner the identifiers resolve to.
func (s *Service) RetryWithForcedOwner(ctx context.Context, entryID, ownerID string) (Outcome, error) {
	ctx = logging.WithQuarantineID(ctx, entryID)

	o, err := s.matcher.Get(ctx, ownerID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return Outcome{}, apperrors.ErrValidation.WithCause(err).WithDetail("owner_id", ownerID)
		}
		return Outcome{}, err
	}

	entry, err := s.quarantine.Lease(ctx, entryID)
	if err != nil {
		return Outcome{}, err
	}
	return s.replay(ctx, entry, o, models.AuditEventOwnerAssigned)
}

func (s *Service) replay(ctx context.Context, entry *quarantine.Entry, forced *owner.Owner, eventType string) (Outcome, error) {
	start := time.Now()
	ctx, span := tracing.GetTracer("pipeline").Start(ctx, "pipeline.replay")
	defer span.End()
	span.SetAttributes(
		attribute.String("quarantine.entry_id", entry.ID),
		attribute.Int("quarantine.retry_count", entry.RetryCount),
	)
	ctx = logging.WithQuarantineID(ctx, entry.ID)
	ctx = logging.WithRawMessageID(ctx, entry.RawMessageID)

	outcome, raw, err := s.replayLeased(ctx, entry, forced)
	if err != nil {
		s.releaseLease(ctx, entry)
		tracing.RecordError(span, err)
		metrics.IncQuarantineRetry("error")
		metrics.ObserveIngestion(models.SourceRetry, "error", time.Since(start))
		return Outcome{}, err
	}

	outcome.MessageID = raw.TransportMessageID
	outcome.Source = models.SourceRetry
	metrics.IncQuarantineRetry(outcome.Status)
	metrics.ObserveIngestion(models.SourceRetry, outcome.Status, time.Since(start))
	s.announce(ctx, eventType, raw.IdempotencyKey, outcome)
	return outcome, nil
}

func (s *Service) replayLeased(ctx context.Context, entry *quarantine.Entry, forced *owner.Owner) (Outcome, *message.Raw, error) {
	raw, err := s.guard.Get(ctx, entry.RawMessageID)
	if err != nil {
		return Outcome{}, nil, fmt.Errorf("load raw message %s: %w", entry.RawMessageID, err)
	}

	records, text, err := ldt.DecodePayload(raw.Payload, s.charset)
	if err != nil {
		return s.recordFailure(ctx, entry, raw, err)
	}

	fm, ids := s.normalize(records, text, raw.Hints)
	o := forced
	if o == nil {
		if o, err = s.matcher.Match(ctx, ids.BSNR, ids.LANR); err != nil {
			return Outcome{}, nil, err
		}
	}

	res := s.materializer.Build(fm, ids, o, raw)
	expected := []message.Status{message.StatusQuarantined, message.StatusPermanentlyFailed}
	err = s.materializer.Commit(ctx, res, expected, func(ctx context.Context) error {
		return s.quarantine.Resolve(ctx, entry)
	})
	if err != nil {
		if rejectedByStore(err) {
			return s.recordFailure(ctx, entry, raw, err)
		}
		return Outcome{}, nil, err
	}

	s.logger.InfowCtx(ctx, "Quarantined message resolved",
		"result_id", res.ID,
		"retry_count", entry.RetryCount,
		"forced_owner", forced != nil,
	)
	outcome := storedOutcome(raw, res, ids)
	outcome.RetryCount = entry.RetryCount
	return outcome, raw, nil
}

// recordFailure counts a failed replay. The entry stays quarantined or becomes
// permanently failed; either way the replay reached an outcome.
func (s *Service) recordFailure(ctx context.Context, entry *quarantine.Entry, raw *message.Raw, cause error) (Outcome, *message.Raw, error) {
	s.countDecodeFailure(cause)
	updated, err := s.quarantine.RecordFailure(ctx, entry, cause)
	if err != nil {
		return Outcome{}, nil, err
	}
	status := models.OutcomeQuarantined
	if updated.Status == quarantine.StatusPermanentlyFailed {
		status = models.OutcomePermanentlyFailed
	}
	return Outcome{
		Status:       status,
		RawMessageID: raw.ID,
		Reason:       updated.Reason,
		RetryCount:   updated.RetryCount,
	}, raw, nil
}

// rejectedByStore reports text the database refuses to store. Redelivering the same
// bytes cannot succeed, so the message is quarantined instead of released.
func rejectedByStore(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrInvalidPayload)
}

func storedOutcome(raw *message.Raw, res *result.Result, ids ldt.Identifiers) Outcome {
	return Outcome{
		Status:       models.OutcomeStored,
		RawMessageID: raw.ID,
		ResultID:     res.ID,
		OwnerID:      deref(res.OwnerID),
		BSNR:         deref(ids.BSNR),
		LANR:         deref(ids.LANR),
		Identifiers:  ids,
	}
}

func (s *Service) countDecodeFailure(err error) {
	var decodeErr *ldt.DecodeError
	if errors.As(err, &decodeErr) {
		metrics.IncDecodeFailure(string(decodeErr.Reason))
	}
}

// release gives up the claim on a store failure. It runs detached from ctx, which may
// already be cancelled.
func (s *Service) release(ctx context.Context, raw *message.Raw) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.guard.Release(releaseCtx, raw); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to release raw message claim", "error", err)
	}
}

func (s *Service) releaseLease(ctx context.Context, entry *quarantine.Entry) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.quarantine.ReleaseLease(releaseCtx, entry); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to release quarantine lease", "error", err)
	}
}

func (s *Service) announce(ctx context.Context, eventType, idempotencyKey string, outcome Outcome) {
	now := s.now()
	traceID := tracing.TraceIDFromContext(ctx)

	_ = s.recorder.Record(ctx, outcome.AuditEvent(eventType, idempotencyKey, traceID, now))

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOutcome(ctx, outcome.Event(traceID, now)); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish outcome event",
			"status", outcome.Status,
			"error", err,
		)
	}
}
