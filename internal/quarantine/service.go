package quarantine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"labor/internal/config"
	"labor/internal/constants"
	"labor/internal/logger"
	"labor/internal/message"
	"labor/internal/storage"
	apperrors "labor/pkg/errors"
	"labor/pkg/retry"
)

// Service owns the quarantine state machine:
//
//	pending --(replay fails, retry_count <= max)--> pending
//	pending --(replay fails, retry_count > max)--> permanently_failed
//	pending | permanently_failed --(replay stores a result)--> resolved
type Service struct {
	repo       Repository
	tx         storage.TxRunner
	policy     retry.Policy
	maxRetries int
	leaseFor   time.Duration
	logger     logger.Logger
	now        func() time.Time
}

func NewService(repo Repository, tx storage.TxRunner, ingestion config.IngestionConfig, worker config.WorkerConfig, log logger.Logger) *Service {
	// Zero is a valid bound: the first failed replay is final.
	maxRetries := ingestion.MaxRetries
	if maxRetries < 0 {
		maxRetries = constants.DefaultMaxRetries
	}
	leaseFor := worker.LeaseDuration
	if leaseFor <= 0 {
		leaseFor = time.Minute
	}
	policy := retry.DefaultPolicy()
	if b := ingestion.RetryBackoff; b.InitialInterval > 0 && b.Multiplier >= 1 {
		policy.InitialInterval = b.InitialInterval
		policy.MaxInterval = b.MaxInterval
		policy.Multiplier = b.Multiplier
	}
	return &Service{
		repo:       repo,
		tx:         tx,
		policy:     policy,
		maxRetries: maxRetries,
		leaseFor:   leaseFor,
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) MaxRetries() int {
	return s.maxRetries
}

// Quarantine records the first failure of a claimed raw message and moves the message
// to quarantined in the same transaction.
func (s *Service) Quarantine(ctx context.Context, raw *message.Raw, cause error) (*Entry, error) {
	now := s.now()
	next := s.policy.NextAttemptAt(now, 0)
	details := DetailsFromError(cause)

	entry := &Entry{
		ID:           uuid.NewString(),
		RawMessageID: raw.ID,
		Reason:       details.Kind,
		ErrorDetails: details,
		Status:       StatusPending,
		NextRetryAt:  &next,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, entry); err != nil {
			return err
		}
		return s.repo.SetRawStatus(ctx, raw.ID, message.StatusQuarantined, message.StatusReceived)
	})
	if err != nil {
		return nil, fmt.Errorf("quarantine raw message %s: %w", raw.ID, err)
	}

	s.logger.InfowCtx(ctx, "Raw message quarantined",
		"quarantine_entry_id", entry.ID,
		"reason", entry.Reason,
		"line", details.Line,
		"next_retry_at", next,
	)
	return entry, nil
}

// RecordFailure counts one more failed replay of a leased entry. Once the count exceeds
// the configured maximum the entry and its raw message become permanently failed and
// are no longer leased by the worker.
func (s *Service) RecordFailure(ctx context.Context, entry *Entry, cause error) (*Entry, error) {
	now := s.now()
	details := DetailsFromError(cause)

	updated := *entry
	updated.RetryCount++
	updated.LastRetryAt = &now
	updated.Reason = details.Kind
	updated.ErrorDetails = details
	updated.LeaseUntil = nil
	updated.UpdatedAt = now

	if updated.RetryCount > s.maxRetries {
		updated.Status = StatusPermanentlyFailed
		updated.NextRetryAt = nil
	} else {
		next := s.policy.NextAttemptAt(now, updated.RetryCount)
		updated.Status = StatusPending
		updated.NextRetryAt = &next
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateAttempt(ctx, &updated); err != nil {
			return err
		}
		if updated.Status == StatusPermanentlyFailed && entry.Status != StatusPermanentlyFailed {
			return s.repo.SetRawStatus(ctx, entry.RawMessageID, message.StatusPermanentlyFailed, message.StatusQuarantined)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record failed replay of %s: %w", entry.ID, err)
	}

	if updated.Status == StatusPermanentlyFailed {
		s.logger.WarnwCtx(ctx, "Quarantine entry permanently failed",
			"quarantine_entry_id", entry.ID,
			"retry_count", updated.RetryCount,
			"max_retries", s.maxRetries,
		)
	}
	return &updated, nil
}

// Resolve marks a leased entry resolved. It must run inside the transaction that
// commits the replayed result.
func (s *Service) Resolve(ctx context.Context, entry *Entry) error {
	return s.repo.Resolve(ctx, entry)
}

// ReleaseLease gives up a lease without counting an attempt, e.g. after a store failure.
func (s *Service) ReleaseLease(ctx context.Context, entry *Entry) error {
	if err := s.repo.ReleaseLease(ctx, entry); err != nil && !apperrors.IsConflict(err) {
		return fmt.Errorf("release lease on %s: %w", entry.ID, err)
	}
	return nil
}

func (s *Service) LeaseDue(ctx context.Context, limit int) ([]*Entry, error) {
	now := s.now()
	return s.repo.LeaseDue(ctx, now, now.Add(s.leaseFor), limit)
}

// Lease takes the lease on one entry for a manual replay.
func (s *Service) Lease(ctx context.Context, id string) (*Entry, error) {
	now := s.now()
	return s.repo.Lease(ctx, id, now, now.Add(s.leaseFor))
}

func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByRawMessageID(ctx context.Context, rawMessageID string) (*Entry, error) {
	return s.repo.GetByRawMessageID(ctx, rawMessageID)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = constants.DefaultLimit
	}
	if filter.Limit > constants.MaxLimit {
		filter.Limit = constants.MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperrors.ErrValidation.WithDetail("field", "status").WithDetail("value", string(filter.Status))
	}
	return s.repo.List(ctx, filter)
}
