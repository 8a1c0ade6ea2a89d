package pipeline

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"

	"labor/internal/config"
	"labor/internal/idempotency"
	"labor/internal/ldt"
	"labor/internal/logger"
	"labor/internal/message"
	"labor/internal/owner"
	"labor/internal/quarantine"
	"labor/internal/result"
	apperrors "labor/pkg/errors"
	"labor/pkg/models"
)

const (
	validPayload = "01380008230\n0180201793860200\n0180212772720053\n0173101Mustermann\n0138410GLUC\n01284200054"
	shortLine    = "0180201793860200\n01234\n0180212772720053"
)

// memoryStore plays every store the service talks to. Commit applies all rows or none.
type memoryStore struct {
	hasher     *idempotency.Hasher
	maxRetries int

	raws    map[string]*message.Raw
	byKey   map[string]string
	results map[string]*result.Result
	entries map[string]*quarantine.Entry
	leased  map[string]bool
	owners  map[string]*owner.Owner

	commitErr      error
	matchErr       error
	released       []string
	leasesReleased []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		hasher:     idempotency.NewHasher("sha256"),
		maxRetries: 3,
		raws:       map[string]*message.Raw{},
		byKey:      map[string]string{},
		results:    map[string]*result.Result{},
		entries:    map[string]*quarantine.Entry{},
		leased:     map[string]bool{},
		owners:     map[string]*owner.Owner{},
	}
}

func (s *memoryStore) addOwner(o *owner.Owner) {
	s.owners[o.ID] = o
}

func (s *memoryStore) setRawStatus(id string, status message.Status) {
	cp := *s.raws[id]
	cp.Status = status
	s.raws[id] = &cp
}

func (s *memoryStore) Claim(_ context.Context, d *models.Delivery) (idempotency.Claim, error) {
	key := s.hasher.Key(d.IdempotencyKey, d.Payload)
	if id, ok := s.byKey[key]; ok {
		existing := *s.raws[id]
		if existing.Status == message.StatusReleased {
			s.setRawStatus(id, message.StatusReceived)
			reclaimed := *s.raws[id]
			return idempotency.Claim{Raw: &reclaimed, Acquired: true, Reclaimed: true}, nil
		}
		return idempotency.Claim{Raw: &existing}, nil
	}

	raw := &message.Raw{
		ID:                 uuid.NewString(),
		IdempotencyKey:     key,
		TransportMessageID: d.MessageID,
		Source:             d.Source,
		Payload:            d.Payload,
		Hints:              ldt.Hints{BSNR: d.BSNRHint, LANR: d.LANRHint},
		Status:             message.StatusReceived,
		ReceivedAt:         d.ReceivedAt,
	}
	stored := *raw
	s.raws[raw.ID] = &stored
	s.byKey[key] = raw.ID
	return idempotency.Claim{Raw: raw, Acquired: true}, nil
}

func (s *memoryStore) Release(_ context.Context, raw *message.Raw) error {
	s.released = append(s.released, raw.ID)
	s.setRawStatus(raw.ID, message.StatusReleased)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*message.Raw, error) {
	raw, ok := s.raws[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *raw
	return &cp, nil
}

func (s *memoryStore) Match(_ context.Context, bsnr, lanr *string) (*owner.Owner, error) {
	if s.matchErr != nil {
		return nil, s.matchErr
	}
	if bsnr == nil || lanr == nil {
		return nil, nil
	}
	for _, o := range s.owners {
		if o.BSNR == *bsnr && o.LANR == *lanr {
			return o, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) Quarantine(_ context.Context, raw *message.Raw, cause error) (*quarantine.Entry, error) {
	if s.raws[raw.ID].Status != message.StatusReceived {
		return nil, apperrors.ErrStaleClaim
	}
	details := quarantine.DetailsFromError(cause)
	entry := &quarantine.Entry{
		ID:           uuid.NewString(),
		RawMessageID: raw.ID,
		Reason:       details.Kind,
		ErrorDetails: details,
		Status:       quarantine.StatusPending,
		Version:      1,
	}
	stored := *entry
	s.entries[entry.ID] = &stored
	s.setRawStatus(raw.ID, message.StatusQuarantined)
	return entry, nil
}

func (s *memoryStore) RecordFailure(_ context.Context, entry *quarantine.Entry, cause error) (*quarantine.Entry, error) {
	cp := *entry
	cp.RetryCount++
	cp.ErrorDetails = quarantine.DetailsFromError(cause)
	if cp.RetryCount > s.maxRetries {
		cp.Status = quarantine.StatusPermanentlyFailed
		s.setRawStatus(cp.RawMessageID, message.StatusPermanentlyFailed)
	}
	stored := cp
	s.entries[cp.ID] = &stored
	delete(s.leased, cp.ID)
	return &cp, nil
}

func (s *memoryStore) Resolve(_ context.Context, entry *quarantine.Entry) error {
	cp := *s.entries[entry.ID]
	cp.Status = quarantine.StatusResolved
	s.entries[entry.ID] = &cp
	return nil
}

func (s *memoryStore) ReleaseLease(_ context.Context, entry *quarantine.Entry) error {
	s.leasesReleased = append(s.leasesReleased, entry.ID)
	delete(s.leased, entry.ID)
	return nil
}

func (s *memoryStore) Lease(_ context.Context, id string) (*quarantine.Entry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if s.leased[id] {
		return nil, apperrors.ErrLeaseLost
	}
	s.leased[id] = true
	cp := *entry
	return &cp, nil
}

func (s *memoryStore) GetByRawMessageID(_ context.Context, rawMessageID string) (*quarantine.Entry, error) {
	for _, e := range s.entries {
		if e.RawMessageID == rawMessageID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memoryStore) Build(fm ldt.FieldMap, ids ldt.Identifiers, o *owner.Owner, raw *message.Raw) *result.Result {
	return result.Build(fm, ids, o, raw)
}

func (s *memoryStore) Commit(ctx context.Context, res *result.Result, expected []message.Status, within ...func(ctx context.Context) error) error {
	raws, results, entries := maps.Clone(s.raws), maps.Clone(s.results), maps.Clone(s.entries)
	rollback := func(err error) error {
		s.raws, s.results, s.entries = raws, results, entries
		return err
	}

	if !slices.Contains(expected, s.raws[res.SourceMessageID].Status) {
		return apperrors.ErrStaleClaim
	}
	s.setRawStatus(res.SourceMessageID, message.StatusStored)
	resultID := res.ID
	s.raws[res.SourceMessageID].ResultID = &resultID

	if s.commitErr != nil {
		return rollback(s.commitErr)
	}
	if _, exists := s.results[res.ID]; exists {
		return rollback(apperrors.ErrConflict)
	}
	s.results[res.ID] = res

	for _, fn := range within {
		if err := fn(ctx); err != nil {
			return rollback(err)
		}
	}
	return nil
}

// ownerLookup adapts memoryStore to OwnerMatcher; Get collides with the raw message getter.
type ownerLookup struct{ *memoryStore }

func (l ownerLookup) Get(_ context.Context, id string) (*owner.Owner, error) {
	o, ok := l.owners[id]
	if !ok {
		return nil, owner.ErrOwnerNotFound
	}
	return o, nil
}

type recordingPublisher struct {
	events []models.OutcomeEvent
	err    error
}

func (p *recordingPublisher) PublishOutcome(_ context.Context, event models.OutcomeEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type recordingRecorder struct {
	events []models.AuditEvent
}

func (r *recordingRecorder) Record(_ context.Context, event models.AuditEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	store     *memoryStore
	publisher *recordingPublisher
	recorder  *recordingRecorder
	service   *Service
}

func newFixture() *fixture {
	store := newMemoryStore()
	publisher := &recordingPublisher{}
	recorder := &recordingRecorder{}
	svc := NewService(store, ownerLookup{store}, store, store, config.IngestionConfig{}, logger.NopLogger(),
		WithPublisher(publisher),
		WithRecorder(recorder),
	)
	return &fixture{store: store, publisher: publisher, recorder: recorder, service: svc}
}

func delivery(payload string) *models.Delivery {
	return models.NewDeliveryBuilder(models.SourceHTTP).
		WithMessageID("msg-1").
		WithPayload([]byte(payload)).
		Build()
}

// seedQuarantined stores payload as a quarantined raw message with a pending entry, as
// an earlier decoder would have left it.
func (f *fixture) seedQuarantined(payload string) *quarantine.Entry {
	raw := &message.Raw{
		ID:             uuid.NewString(),
		IdempotencyKey: f.store.hasher.Key("", []byte(payload)),
		Source:         models.SourceKafka,
		Payload:        []byte(payload),
		Status:         message.StatusQuarantined,
	}
	f.store.raws[raw.ID] = raw
	f.store.byKey[raw.IdempotencyKey] = raw.ID

	entry := &quarantine.Entry{
		ID:           uuid.NewString(),
		RawMessageID: raw.ID,
		Reason:       quarantine.ReasonDecodeError,
		Status:       quarantine.StatusPending,
		RetryCount:   1,
		Version:      2,
	}
	f.store.entries[entry.ID] = entry
	return entry
}
