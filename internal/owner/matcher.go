package owner

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"labor/internal/logger"
	"labor/pkg/metrics"
	"labor/pkg/tracing"
)

// Matcher maps a resolved identifier pair to an owner.
type Matcher struct {
	dir    Directory
	logger logger.Logger
}

func NewMatcher(dir Directory, log logger.Logger) *Matcher {
	return &Matcher{dir: dir, logger: log}
}

// Match returns nil without an error when either identifier is missing or no owner is
// registered for the pair. A non-nil error is always a store failure.
func (m *Matcher) Match(ctx context.Context, bsnr, lanr *string) (*Owner, error) {
	if bsnr == nil || lanr == nil || *bsnr == "" || *lanr == "" {
		metrics.IncOwnerLookup("skipped")
		return nil, nil
	}

	ctx, span := tracing.GetTracer("owner").Start(ctx, "owner.match")
	defer span.End()
	span.SetAttributes(attribute.String("ldt.bsnr", *bsnr), attribute.String("ldt.lanr", *lanr))

	o, err := m.dir.LookupOwner(ctx, *bsnr, *lanr)
	if IsNotFound(err) {
		metrics.IncOwnerLookup("unmatched")
		m.logger.DebugwCtx(ctx, "No owner registered for identifier pair", "bsnr", *bsnr, "lanr", *lanr)
		return nil, nil
	}
	if err != nil {
		metrics.IncOwnerLookup("error")
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("match owner %s/%s: %w", *bsnr, *lanr, err)
	}

	metrics.IncOwnerLookup("matched")
	span.SetAttributes(attribute.String("owner.id", o.ID))
	return o, nil
}

// Get loads an owner by id for forced assignment.
func (m *Matcher) Get(ctx context.Context, id string) (*Owner, error) {
	return m.dir.GetOwner(ctx, id)
}
