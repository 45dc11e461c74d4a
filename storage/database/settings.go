package database

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
)

const autoApproveKey = "auto_approve"

type settingsRepository struct {
	db *sqlx.DB
}

var _ submission.SettingsRepository = (*settingsRepository)(nil) // interface compliance check

func NewSettingsRepository(db *sqlx.DB) *settingsRepository {
	return &settingsRepository{db: db}
}

func (repo settingsRepository) AutoApprove(ctx context.Context) (null.Bool, error) {
	var value string
	err := repo.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = $1`, autoApproveKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return null.Bool{}, nil // never set; config default applies
		}
		return null.Bool{}, errors.Wrap(err, "reading auto-approve setting")
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return null.Bool{}, errors.Wrap(err, "parsing auto-approve setting")
	}
	return null.BoolFrom(enabled), nil
}

func (repo settingsRepository) SetAutoApprove(ctx context.Context, enabled bool) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		autoApproveKey, strconv.FormatBool(enabled),
	)
	return errors.Wrap(err, "writing auto-approve setting")
}

type planRepository struct {
	db *sqlx.DB
}

var _ access.PlanRepository = (*planRepository)(nil) // interface compliance check

func NewPlanRepository(db *sqlx.DB) *planRepository {
	return &planRepository{db: db}
}

func (repo planRepository) QueryPlanTiers(ctx context.Context) ([]access.PlanTier, error) {
	var rows []struct {
		Tier            string `db:"tier"`
		DurationSeconds int64  `db:"duration_seconds"`
	}
	err := repo.db.SelectContext(ctx, &rows, `SELECT tier, duration_seconds FROM plan_tier ORDER BY duration_seconds`)
	if err != nil {
		return nil, errors.Wrap(err, "querying plan tiers")
	}
	plans := make([]access.PlanTier, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, access.PlanTier{
			Tier:     row.Tier,
			Duration: time.Duration(row.DurationSeconds) * time.Second,
		})
	}
	return plans, nil
}

func (repo planRepository) UpsertPlanTier(ctx context.Context, plan access.PlanTier) (access.PlanTier, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO plan_tier (tier, duration_seconds) VALUES ($1, $2)
		ON CONFLICT (tier) DO UPDATE SET duration_seconds = EXCLUDED.duration_seconds`,
		plan.Tier, int64(plan.Duration/time.Second),
	)
	if err != nil {
		return access.PlanTier{}, errors.Wrap(err, "upserting plan tier")
	}
	return plan, nil
}
