package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lawnetwork/lawnet/core/access"
)

type grantRepository struct {
	db *grantTable
}

var _ access.Repository = (*grantRepository)(nil) // interface compliance check

func NewGrantRepository(db *DB) *grantRepository {
	return &grantRepository{db: db.grant}
}

func (repo *grantRepository) UpsertGrant(_ context.Context, grant access.Grant) (access.Grant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := grant.Key()
	if prev, ok := repo.db.table[key]; ok {
		grant.ID = prev.ID
		grant.CreatedAt = prev.CreatedAt
	} else if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	grant.Revoked = false
	repo.db.table[key] = &grant
	return grant, nil
}

func (repo *grantRepository) GetGrant(_ context.Context, key access.Key) (access.Grant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if grant, ok := repo.db.table[key]; ok {
		return *grant, nil
	}
	return access.Grant{}, access.ErrNotFound
}

func (repo *grantRepository) ExpireGrant(_ context.Context, key access.Key, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	grant, ok := repo.db.table[key]
	if !ok {
		return access.ErrNotFound
	}
	grant.Expiry = at
	grant.Revoked = true
	grant.UpdatedAt = at
	return nil
}

func (repo *grantRepository) DeleteExpiredGrants(_ context.Context, cutoff time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var count int
	for key, grant := range repo.db.table {
		if !grant.Expiry.After(cutoff) {
			delete(repo.db.table, key)
			count++
		}
	}
	return count, nil
}
