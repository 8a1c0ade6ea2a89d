// Package owner resolves an identifier pair to the tenant and user a result belongs to.
// Owners are maintained outside the pipeline; nothing here creates them.
package owner

import (
	"context"

	apperrors "labor/pkg/errors"
)

type Owner struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	BSNR     string `json:"bsnr"`
	LANR     string `json:"lanr"`
}

// ErrOwnerNotFound is returned by a Directory when no owner is registered. It carries
// the NOT_FOUND code so circuit breakers do not count misses as failures.
var ErrOwnerNotFound = apperrors.ErrNotFound.WithDetail("resource", "owner")

// Directory is the owner store. Implementations return ErrOwnerNotFound for misses
// and a store failure for anything else.
type Directory interface {
	LookupOwner(ctx context.Context, bsnr, lanr string) (*Owner, error)
	GetOwner(ctx context.Context, id string) (*Owner, error)
}

func IsNotFound(err error) bool {
	return apperrors.IsNotFound(err)
}
