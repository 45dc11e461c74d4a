package submission

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
)

var (
	// errors
	ErrNotFound          = errors.New("submission not found")
	ErrInvalidTransition = errors.New("submission status does not allow this operation")
)

type (
	Repository interface {
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmissionByID(ctx context.Context, id string) (Submission, error)
		// FilterSubmissions applies AND operation on available QueryFilter fields,
		// newest first.
		FilterSubmissions(ctx context.Context, filter QueryFilter) ([]Submission, error)
		SetSubmissionStatus(ctx context.Context, id, status string, decidedAt time.Time, message null.String) (Submission, error)
		DeleteSubmissionsByID(ctx context.Context, ids ...string) error
	}

	// SettingsRepository persists the admin-mutable auto-approval flag
	// so a restart keeps the admin's choice. An unset value falls back
	// to the config default.
	SettingsRepository interface {
		AutoApprove(ctx context.Context) (null.Bool, error)
		SetAutoApprove(ctx context.Context, enabled bool) error
	}

	Service struct {
		repo      Repository
		accessSvc *access.Service
		plans     access.PlanRepository
		settings  SettingsRepository
		broker    access.Broker
		mailSvc   core.EmailService
		conf      *core.Config
		logger    core.Logger
		now       func() time.Time
	}
)

func NewService(
	repo Repository,
	accessSvc *access.Service,
	plans access.PlanRepository,
	settings SettingsRepository,
	broker access.Broker,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:      repo,
		accessSvc: accessSvc,
		plans:     plans,
		settings:  settings,
		broker:    broker,
		mailSvc:   mailSvc,
		conf:      conf,
		logger:    logger,
		now:       time.Now,
	}
}

// Create stores a new pending submission. Under the auto-approval
// policy the submission is approved before returning, with a duration
// derived from its plan tier; the returned grant is nil otherwise.
func (svc *Service) Create(ctx context.Context, ns NewSubmission) (Submission, *access.Grant, error) {
	now := svc.now().UTC()
	sub := Submission{
		Subject:   ns.Subject,
		Feature:   ns.Feature,
		FeatureID: ns.FeatureID,
		PlanTier:  ns.PlanTier,
		ProofRef:  ns.ProofRef,
		Contact:   ns.Contact,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sub, err := svc.repo.CreateSubmission(ctx, sub)
	if err != nil {
		return Submission{}, nil, pkgerrors.Wrap(err, "creating submission")
	}

	auto, err := svc.AutoApprove(ctx)
	if err != nil {
		// intake must not fail on a settings read; fall back to config
		svc.logger.Warn("reading auto-approve setting", err)
		auto = svc.conf.AutoApprove
	}
	if !auto {
		return sub, nil, nil
	}

	duration, err := svc.planDuration(ctx, sub.PlanTier)
	if err != nil {
		svc.logger.Warn("reading plan tiers", err)
		duration = access.TierDuration(sub.PlanTier)
	}
	sub, grant, err := svc.approve(ctx, sub, duration, "")
	if err != nil {
		return Submission{}, nil, err
	}
	return sub, &grant, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmissionByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Submission, error) {
	return svc.repo.FilterSubmissions(ctx, filter)
}

// Approve grants timed access for the submission's key. Re-approving
// an already-approved submission simply overwrites the grant expiry.
func (svc *Service) Approve(ctx context.Context, id string, duration time.Duration, message string) (access.Grant, error) {
	sub, err := svc.repo.GetSubmissionByID(ctx, id)
	if err != nil {
		return access.Grant{}, pkgerrors.Wrap(err, "finding submission")
	}
	_, grant, err := svc.approve(ctx, sub, duration, message)
	return grant, err
}

// approve writes the grant before the status flip: a failed grant
// write leaves the submission untouched, and a failed status flip
// leaves an extra grant that a retry of the whole operation overwrites.
// The event only goes out once both writes are durable.
func (svc *Service) approve(ctx context.Context, sub Submission, duration time.Duration, message string) (Submission, access.Grant, error) {
	if !CanTransition(sub.Status, StatusApproved) {
		return Submission{}, access.Grant{}, ErrInvalidTransition
	}

	now := svc.now().UTC()
	grant, err := svc.accessSvc.UpsertGrant(ctx, sub.Key(), now.Add(duration), message)
	if err != nil {
		return Submission{}, access.Grant{}, pkgerrors.Wrap(err, "upserting grant")
	}

	sub, err = svc.repo.SetSubmissionStatus(ctx, sub.ID, StatusApproved, now, null.NewString(message, message != ""))
	if err != nil {
		return Submission{}, access.Grant{}, pkgerrors.Wrap(err, "marking submission approved")
	}

	svc.publish(ctx, access.GrantEvent(grant))
	svc.notifyApproved(sub, grant)
	return sub, grant, nil
}

// Reject closes a pending submission without granting anything.
func (svc *Service) Reject(ctx context.Context, id string) (Submission, error) {
	sub, err := svc.repo.GetSubmissionByID(ctx, id)
	if err != nil {
		return Submission{}, pkgerrors.Wrap(err, "finding submission")
	}
	if !CanTransition(sub.Status, StatusRejected) {
		return Submission{}, ErrInvalidTransition
	}
	sub, err = svc.repo.SetSubmissionStatus(ctx, sub.ID, StatusRejected, svc.now().UTC(), null.String{})
	return sub, pkgerrors.Wrap(err, "marking submission rejected")
}

// Revoke force-expires the submission's grant. The grant goes first so
// a partial failure never leaves a revoked submission with live
// access; retrying the whole operation is always safe.
func (svc *Service) Revoke(ctx context.Context, id string) error {
	sub, err := svc.repo.GetSubmissionByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(err, "finding submission")
	}
	if sub.Status == StatusRevoked { // idempotent
		return nil
	}
	if !CanTransition(sub.Status, StatusRevoked) {
		return ErrInvalidTransition
	}

	if err = svc.accessSvc.RevokeGrant(ctx, sub.Key()); err != nil {
		return pkgerrors.Wrap(err, "revoking grant")
	}
	if _, err = svc.repo.SetSubmissionStatus(ctx, sub.ID, StatusRevoked, svc.now().UTC(), null.String{}); err != nil {
		return pkgerrors.Wrap(err, "marking submission revoked")
	}

	svc.publish(ctx, access.RevokeEvent(sub.Key()))
	return nil
}

// RevokeKey revokes whatever grant exists for the key directly,
// flipping any approved submissions for it along the way. Used by the
// admin revoke endpoint's subject+feature+featureId form.
func (svc *Service) RevokeKey(ctx context.Context, key access.Key) error {
	if err := svc.accessSvc.RevokeGrant(ctx, key); err != nil {
		return pkgerrors.Wrap(err, "revoking grant")
	}

	subs, err := svc.repo.FilterSubmissions(ctx, QueryFilter{
		Status:    StatusApproved,
		Subject:   key.Subject,
		Feature:   key.Feature,
		FeatureID: key.FeatureID,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "finding approved submissions")
	}
	now := svc.now().UTC()
	for _, sub := range subs {
		if _, err = svc.repo.SetSubmissionStatus(ctx, sub.ID, StatusRevoked, now, null.String{}); err != nil {
			return pkgerrors.Wrap(err, "marking submission revoked")
		}
	}

	svc.publish(ctx, access.RevokeEvent(key))
	return nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteSubmissionsByID(ctx, ids...)
}

// AutoApprove returns the effective auto-approval policy: the
// persisted setting when present, the config default otherwise.
func (svc *Service) AutoApprove(ctx context.Context) (bool, error) {
	val, err := svc.settings.AutoApprove(ctx)
	if err != nil {
		return false, pkgerrors.Wrap(err, "reading auto-approve setting")
	}
	if !val.Valid {
		return svc.conf.AutoApprove, nil
	}
	return val.Bool, nil
}

func (svc *Service) SetAutoApprove(ctx context.Context, enabled bool) error {
	return pkgerrors.Wrap(svc.settings.SetAutoApprove(ctx, enabled), "writing auto-approve setting")
}

// planDuration consults admin-edited plan tiers, falling back to the
// built-in weekly/monthly/yearly table.
func (svc *Service) planDuration(ctx context.Context, tier string) (time.Duration, error) {
	plans, err := svc.plans.QueryPlanTiers(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range plans {
		if p.Tier == tier {
			return p.Duration, nil
		}
	}
	return access.TierDuration(tier), nil
}

// publish is fire-and-forget: the confirming read on the client side
// covers any lost event, so delivery failures are logged and ignored.
func (svc *Service) publish(ctx context.Context, ev access.Event) {
	if svc.broker == nil {
		return
	}
	if err := svc.broker.Publish(ctx, ev); err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing %s event for %s", ev.Type, ev.Subject), err)
	}
}

func (svc *Service) notifyApproved(sub Submission, grant access.Grant) {
	if svc.mailSvc == nil {
		return
	}
	body := fmt.Sprintf(
		"Your access request for %s %q has been approved.\nAccess expires on %s.",
		sub.Feature, sub.FeatureID, grant.Expiry.Format(time.RFC1123),
	)
	if grant.Message.String != "" {
		body += "\n\n" + grant.Message.String
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:          []mail.Address{{Address: sub.Subject}},
		Subject:     "Access approved",
		TextContent: body,
	})
}
