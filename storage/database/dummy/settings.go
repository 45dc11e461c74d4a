package dummydb

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
)

type settingsRepository struct {
	db *settingsTable
}

var _ submission.SettingsRepository = (*settingsRepository)(nil) // interface compliance check

func NewSettingsRepository(db *DB) *settingsRepository {
	return &settingsRepository{db: db.settings}
}

func (repo *settingsRepository) AutoApprove(_ context.Context) (null.Bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.autoApprove, nil
}

func (repo *settingsRepository) SetAutoApprove(_ context.Context, enabled bool) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.autoApprove = null.BoolFrom(enabled)
	return nil
}

type planRepository struct {
	db *settingsTable
}

var _ access.PlanRepository = (*planRepository)(nil) // interface compliance check

func NewPlanRepository(db *DB) *planRepository {
	return &planRepository{db: db.settings}
}

func (repo *planRepository) QueryPlanTiers(_ context.Context) ([]access.PlanTier, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	plans := make([]access.PlanTier, 0, len(repo.db.plans))
	for _, p := range repo.db.plans {
		plans = append(plans, p)
	}
	return plans, nil
}

func (repo *planRepository) UpsertPlanTier(_ context.Context, plan access.PlanTier) (access.PlanTier, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.plans[plan.Tier] = plan
	return plan, nil
}
