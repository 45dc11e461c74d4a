package submission

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
)

// Statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusRevoked  = "revoked"
)

var Statuses = []string{StatusPending, StatusApproved, StatusRejected, StatusRevoked}

// CanTransition reports whether a submission may move between the two
// statuses. Transitions are one-directional except re-approval
// (approved -> approved extends the grant) and there is no way back
// out of rejected or revoked; admins create a fresh submission instead.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusApproved || to == StatusRevoked
	}
	return false
}

// Submission is a proof-of-payment request for a Grant. Unlike grants
// it is not time-governed: it stays around until an admin deletes it.
type Submission struct {
	ID        string      `json:"id"`
	Subject   string      `json:"subject"`
	Feature   string      `json:"feature"`
	FeatureID string      `json:"feature_id"`
	PlanTier  string      `json:"plan_tier"`
	ProofRef  string      `json:"proof_ref"`
	Contact   string      `json:"contact,omitempty"`
	Status    string      `json:"status"`
	DecidedAt null.Time   `json:"decided_at,omitempty"`
	Message   null.String `json:"message,omitempty"`
	CreatedAt time.Time   `json:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at"` // UTC
}

func (s Submission) Key() access.Key {
	return access.Key{Subject: s.Subject, Feature: s.Feature, FeatureID: s.FeatureID}
}

func (s Submission) IsPending() bool { return s.Status == StatusPending }

// NewSubmission contains information needed to create a new Submission.
// Feature aliases must already be resolved to canonical ids; intake
// rejects unknown feature kinds but performs no alias resolution.
type NewSubmission struct {
	Subject   string `json:"subject" validate:"required,email"`
	Feature   string `json:"feature" validate:"required,feature"`
	FeatureID string `json:"feature_id" validate:"required"`
	PlanTier  string `json:"plan_tier"`
	ProofRef  string `json:"proof_ref" validate:"required"`
	Contact   string `json:"contact"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Subject = core.CleanString(ns.Subject, true /* lower */)
	ns.Feature = core.CleanString(ns.Feature, true /* lower */)
	ns.FeatureID = core.CleanString(ns.FeatureID)
	ns.PlanTier = core.CleanString(ns.PlanTier, true /* lower */)
	ns.ProofRef = core.CleanString(ns.ProofRef)
	ns.Contact = core.CleanString(ns.Contact)
	return validate.Struct(ns)
}

type QueryFilter struct {
	Status    string `query:"status"`
	Subject   string `query:"subject"`
	Feature   string `query:"feature"`
	FeatureID string `query:"feature_id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Status == "" && qf.Subject == "" && qf.Feature == "" && qf.FeatureID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Subject = core.CleanString(qf.Subject, true /* lower */)
	qf.Feature = core.CleanString(qf.Feature, true /* lower */)
	qf.FeatureID = core.CleanString(qf.FeatureID)
}
