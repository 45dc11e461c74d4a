package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lawnetwork/lawnet/core/access"
)

type grantRow struct {
	ID        string      `db:"id"`
	Subject   string      `db:"subject"`
	Feature   string      `db:"feature"`
	FeatureID string      `db:"feature_id"`
	Expiry    time.Time   `db:"expiry"`
	Message   null.String `db:"message"`
	Revoked   bool        `db:"revoked"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r grantRow) grant() access.Grant {
	return access.Grant{
		ID:        r.ID,
		Subject:   r.Subject,
		Feature:   r.Feature,
		FeatureID: r.FeatureID,
		Expiry:    r.Expiry.UTC(),
		Message:   r.Message,
		Revoked:   r.Revoked,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type grantRepository struct {
	db *sqlx.DB
}

var _ access.Repository = (*grantRepository)(nil) // interface compliance check

func NewGrantRepository(db *sqlx.DB) *grantRepository {
	return &grantRepository{db: db}
}

// UpsertGrant relies on the (subject, feature, feature_id) unique
// constraint: a conflicting write overwrites expiry and message and
// clears any previous revocation, making racing approvals resolve to
// whichever write lands last.
func (repo grantRepository) UpsertGrant(ctx context.Context, grant access.Grant) (access.Grant, error) {
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}

	var row grantRow
	err := repo.db.QueryRowxContext(ctx, `
		INSERT INTO access_grant (id, subject, feature, feature_id, expiry, message, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $7)
		ON CONFLICT (subject, feature, feature_id) DO UPDATE
		    SET expiry = EXCLUDED.expiry,
		        message = EXCLUDED.message,
		        revoked = false,
		        updated_at = EXCLUDED.updated_at
		RETURNING id, subject, feature, feature_id, expiry, message, revoked, created_at, updated_at`,
		grant.ID, grant.Subject, grant.Feature, grant.FeatureID, grant.Expiry, grant.Message, grant.UpdatedAt,
	).StructScan(&row)
	if err != nil {
		return access.Grant{}, errors.Wrap(err, "upserting grant")
	}
	return row.grant(), nil
}

func (repo grantRepository) GetGrant(ctx context.Context, key access.Key) (access.Grant, error) {
	var row grantRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, subject, feature, feature_id, expiry, message, revoked, created_at, updated_at
		FROM access_grant
		WHERE subject = $1 AND feature = $2 AND feature_id = $3`,
		key.Subject, key.Feature, key.FeatureID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return access.Grant{}, access.ErrNotFound
		}
		return access.Grant{}, errors.Wrap(err, "getting grant")
	}
	return row.grant(), nil
}

func (repo grantRepository) ExpireGrant(ctx context.Context, key access.Key, at time.Time) error {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE access_grant
		SET expiry = $4, revoked = true, updated_at = $4
		WHERE subject = $1 AND feature = $2 AND feature_id = $3`,
		key.Subject, key.Feature, key.FeatureID, at,
	)
	if err != nil {
		return errors.Wrap(err, "expiring grant")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "expiring grant")
	}
	if n == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (repo grantRepository) DeleteExpiredGrants(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM access_grant WHERE expiry <= $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired grants")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired grants")
	}
	return int(n), nil
}
