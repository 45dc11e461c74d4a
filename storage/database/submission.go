package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lawnetwork/lawnet/core/submission"
)

const submissionColumns = "id, subject, feature, feature_id, plan_tier, proof_ref, contact, status, decided_at, message, created_at, updated_at"

type submissionRow struct {
	ID        string      `db:"id"`
	Subject   string      `db:"subject"`
	Feature   string      `db:"feature"`
	FeatureID string      `db:"feature_id"`
	PlanTier  string      `db:"plan_tier"`
	ProofRef  string      `db:"proof_ref"`
	Contact   string      `db:"contact"`
	Status    string      `db:"status"`
	DecidedAt null.Time   `db:"decided_at"`
	Message   null.String `db:"message"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r submissionRow) submission() submission.Submission {
	return submission.Submission{
		ID:        r.ID,
		Subject:   r.Subject,
		Feature:   r.Feature,
		FeatureID: r.FeatureID,
		PlanTier:  r.PlanTier,
		ProofRef:  r.ProofRef,
		Contact:   r.Contact,
		Status:    r.Status,
		DecidedAt: r.DecidedAt,
		Message:   r.Message,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type submissionRepository struct {
	db *sqlx.DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) *submissionRepository {
	return &submissionRepository{db: db}
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	sub.ID = uuid.New().String()

	var row submissionRow
	err := repo.db.QueryRowxContext(ctx, `
		INSERT INTO submission (id, subject, feature, feature_id, plan_tier, proof_ref, contact, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+submissionColumns,
		sub.ID, sub.Subject, sub.Feature, sub.FeatureID, sub.PlanTier, sub.ProofRef, sub.Contact, sub.Status, sub.CreatedAt,
	).StructScan(&row)
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return row.submission(), nil
}

func (repo submissionRepository) GetSubmissionByID(ctx context.Context, id string) (submission.Submission, error) {
	var row submissionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+submissionColumns+` FROM submission WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return submission.Submission{}, submission.ErrNotFound
		}
		return submission.Submission{}, errors.Wrap(err, "getting submission")
	}
	return row.submission(), nil
}

func (repo submissionRepository) FilterSubmissions(ctx context.Context, filter submission.QueryFilter) ([]submission.Submission, error) {
	var conds []string
	var args []interface{}
	add := func(col, val string) {
		if val != "" {
			args = append(args, val)
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("status", filter.Status)
	add("subject", filter.Subject)
	add("feature", filter.Feature)
	add("feature_id", filter.FeatureID)

	query := `SELECT ` + submissionColumns + ` FROM submission`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var rows []submissionRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.submission())
	}
	return subs, nil
}

func (repo submissionRepository) SetSubmissionStatus(
	ctx context.Context,
	id, status string,
	decidedAt time.Time,
	message null.String,
) (submission.Submission, error) {
	var row submissionRow
	err := repo.db.QueryRowxContext(ctx, `
		UPDATE submission
		SET status = $2, decided_at = $3, message = $4, updated_at = $3
		WHERE id = $1
		RETURNING `+submissionColumns,
		id, status, decidedAt, message,
	).StructScan(&row)
	if err != nil {
		if err == sql.ErrNoRows {
			return submission.Submission{}, submission.ErrNotFound
		}
		return submission.Submission{}, errors.Wrap(err, "updating submission status")
	}
	return row.submission(), nil
}

func (repo submissionRepository) DeleteSubmissionsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM submission WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting submissions")
	}
	return nil
}
