// Package dummydb provides in-memory repositories for tests.
package dummydb

import (
	"sync"

	"github.com/volatiletech/null/v8"

	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
)

type (
	DB struct {
		grant      *grantTable
		submission *submissionTable
		settings   *settingsTable
	}

	grantTable struct {
		sync.RWMutex
		table map[access.Key]*access.Grant
	}

	submissionTable struct {
		sync.RWMutex
		table map[string]*submission.Submission
		seq   []string // insertion order
	}

	settingsTable struct {
		sync.RWMutex
		autoApprove null.Bool
		plans       map[string]access.PlanTier
	}
)

func Open() (*DB, error) {
	db := &DB{
		grant:      &grantTable{table: make(map[access.Key]*access.Grant)},
		submission: &submissionTable{table: make(map[string]*submission.Submission)},
		settings:   &settingsTable{plans: make(map[string]access.PlanTier)},
	}
	return db, nil
}
