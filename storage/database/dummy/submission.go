package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/lawnetwork/lawnet/core/submission"
)

type submissionRepository struct {
	db *submissionTable
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) *submissionRepository {
	return &submissionRepository{db: db.submission}
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub.ID = uuid.New().String()
	repo.db.table[sub.ID] = &sub
	repo.db.seq = append(repo.db.seq, sub.ID)
	return sub, nil
}

func (repo *submissionRepository) GetSubmissionByID(_ context.Context, id string) (submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.table[id]; ok {
		return *sub, nil
	}
	return submission.Submission{}, submission.ErrNotFound
}

func (repo *submissionRepository) FilterSubmissions(_ context.Context, filter submission.QueryFilter) ([]submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	// newest first
	subs := make([]submission.Submission, 0, len(repo.db.seq))
	for i := len(repo.db.seq) - 1; i >= 0; i-- {
		sub := repo.db.table[repo.db.seq[i]]
		if sub == nil || !matches(*sub, filter) {
			continue
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}

func matches(sub submission.Submission, filter submission.QueryFilter) bool {
	if filter.Status != "" && sub.Status != filter.Status {
		return false
	}
	if filter.Subject != "" && sub.Subject != filter.Subject {
		return false
	}
	if filter.Feature != "" && sub.Feature != filter.Feature {
		return false
	}
	if filter.FeatureID != "" && sub.FeatureID != filter.FeatureID {
		return false
	}
	return true
}

func (repo *submissionRepository) SetSubmissionStatus(
	_ context.Context,
	id, status string,
	decidedAt time.Time,
	message null.String,
) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.table[id]
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}
	sub.Status = status
	sub.DecidedAt = null.TimeFrom(decidedAt)
	sub.Message = message
	sub.UpdatedAt = decidedAt
	return *sub, nil
}

func (repo *submissionRepository) DeleteSubmissionsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
