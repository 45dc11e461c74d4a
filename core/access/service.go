package access

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	pkgerrors "github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound = errors.New("grant not found")
)

type (
	Repository interface {
		// UpsertGrant overwrites any previous grant for the same key
		// (last-writer-wins; overlapping durations are not merged).
		UpsertGrant(ctx context.Context, grant Grant) (Grant, error)
		GetGrant(ctx context.Context, key Key) (Grant, error)
		// ExpireGrant sets the grant's expiry to `at` and flags it
		// revoked. Returns ErrNotFound when no row matches.
		ExpireGrant(ctx context.Context, key Key, at time.Time) error
		DeleteExpiredGrants(ctx context.Context, cutoff time.Time) (int, error)
	}

	PlanRepository interface {
		QueryPlanTiers(ctx context.Context) ([]PlanTier, error)
		UpsertPlanTier(ctx context.Context, plan PlanTier) (PlanTier, error)
	}

	Service struct {
		repo Repository
		now  func() time.Time
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// UpsertGrant writes the grant for the key, replacing whatever was
// there. Safe to retry; two racing upserts resolve to whichever write
// lands last in the store.
func (svc *Service) UpsertGrant(ctx context.Context, key Key, expiry time.Time, message string) (Grant, error) {
	now := svc.now().UTC()
	grant := Grant{
		Subject:   key.Subject,
		Feature:   key.Feature,
		FeatureID: key.FeatureID,
		Expiry:    expiry.UTC(),
		Message:   null.NewString(message, message != ""),
		CreatedAt: now,
		UpdatedAt: now,
	}
	grant, err := svc.repo.UpsertGrant(ctx, grant)
	return grant, pkgerrors.Wrap(err, "upserting grant")
}

// RevokeGrant soft-revokes by moving expiry to now, keeping the row
// for its audit window. Revoking an absent grant is a no-op success.
func (svc *Service) RevokeGrant(ctx context.Context, key Key) error {
	if err := svc.repo.ExpireGrant(ctx, key, svc.now().UTC()); err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return nil
		}
		return pkgerrors.Wrap(err, "expiring grant")
	}
	return nil
}

// GetGrant returns nil when the key has no grant or the grant has
// expired. Expired rows are never deleted here; SweepExpired does that
// separately and is not needed for correctness.
func (svc *Service) GetGrant(ctx context.Context, key Key) (*Grant, error) {
	grant, err := svc.repo.GetGrant(ctx, key)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, "getting grant")
	}
	if !grant.Active(svc.now()) {
		return nil, nil
	}
	return &grant, nil
}

// SweepExpired physically deletes rows whose expiry has passed.
func (svc *Service) SweepExpired(ctx context.Context) (int, error) {
	count, err := svc.repo.DeleteExpiredGrants(ctx, svc.now().UTC())
	return count, pkgerrors.Wrap(err, "sweeping expired grants")
}
