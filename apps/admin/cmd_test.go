package main

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	memorybroker "github.com/lawnetwork/lawnet/broker/memory"
	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
	dummydb "github.com/lawnetwork/lawnet/storage/database/dummy"
)

func setup(t *testing.T) (*commandLine, *submission.Service) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	conf := &core.Config{TestMode: true}

	hub := memorybroker.NewHub(0)
	t.Cleanup(func() { _ = hub.Close() })

	planRepo := dummydb.NewPlanRepository(db)
	accessSvc := access.NewService(dummydb.NewGrantRepository(db))
	subSvc := submission.NewService(
		dummydb.NewSubmissionRepository(db), accessSvc, planRepo,
		dummydb.NewSettingsRepository(db), hub, nil, conf, core.NopLogger{},
	)

	return &commandLine{
		accessSvc:     accessSvc,
		submissionSvc: subSvc,
		planRepo:      planRepo,
	}, subSvc
}

func createSubmission(t *testing.T, subSvc *submission.Service) submission.Submission {
	t.Helper()
	sub, _, err := subSvc.Create(context.Background(), submission.NewSubmission{
		Subject:   "dev@test.cd",
		Feature:   access.FeatureVideo,
		FeatureID: "vid-001",
		PlanTier:  access.PlanMonthly,
		ProofRef:  "mpesa-ref-123",
	})
	if err != nil {
		t.Fatalf("createSubmission() failed: %v", err)
	}
	return sub
}

type cliTest struct {
	name    string
	args    []string // without program name
	wantErr error
}

func Test_commandLine_usage(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "approve: no id", args: []string{"approve", "-seconds", "3600"}, wantErr: errHelp},
		{name: "approve: no seconds", args: []string{"approve", "-id", "some-id"}, wantErr: errHelp},
		{name: "reject: no id", args: []string{"reject"}, wantErr: errHelp},
		{name: "revoke: no id", args: []string{"revoke"}, wantErr: errHelp},
		{name: "revokekey: missing parts", args: []string{"revokekey", "-subject", "dev@test.cd"}, wantErr: errHelp},
		{name: "autoapprove: bad value", args: []string{"autoapprove", "lol"}, wantErr: errHelp},
		{name: "plans: tier without seconds", args: []string{"plans", "-tier", "weekly"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	prev := migrateFunc
	defer func() { migrateFunc = prev }()

	var called bool
	migrateFunc = func(db *sqlx.DB) error {
		called = true
		return nil
	}

	if err := cli.run([]string{"admin", "migrate"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	if !called {
		t.Error("migrate never ran")
	}
}

func Test_commandLine_decisions(t *testing.T) {
	cli, subSvc := setup(t)
	ctx := context.Background()

	sub := createSubmission(t, subSvc)

	if err := cli.run([]string{"admin", "approve", "-id", sub.ID, "-seconds", "3600", "-message", "karibu"}); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	grant, err := cli.accessSvc.GetGrant(ctx, sub.Key())
	if err != nil {
		t.Fatalf("GetGrant() failed: %v", err)
	}
	if grant == nil {
		t.Fatal("no grant after approve")
	}
	if until := time.Until(grant.Expiry); until <= 0 || until > time.Hour {
		t.Errorf("grant expiry = %s, want within the hour", grant.Expiry)
	}

	if err = cli.run([]string{"admin", "revoke", "-id", sub.ID}); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if grant, _ = cli.accessSvc.GetGrant(ctx, sub.Key()); grant != nil {
		t.Errorf("grant still live after revoke: %+v", grant)
	}

	// reject a fresh one
	sub2 := createSubmission(t, subSvc)
	if err = cli.run([]string{"admin", "reject", "-id", sub2.ID}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	refreshed, _ := subSvc.GetByID(ctx, sub2.ID)
	if refreshed.Status != submission.StatusRejected {
		t.Errorf("Status = %s, want %s", refreshed.Status, submission.StatusRejected)
	}
}

func Test_commandLine_revokeKey(t *testing.T) {
	cli, subSvc := setup(t)
	ctx := context.Background()

	sub := createSubmission(t, subSvc)
	if _, err := subSvc.Approve(ctx, sub.ID, time.Hour, ""); err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}

	args := []string{"admin", "revokekey", "-subject", "dev@test.cd", "-feature", "video", "-feature-id", "vid-001"}
	if err := cli.run(args); err != nil {
		t.Fatalf("revokekey failed: %v", err)
	}
	if grant, _ := cli.accessSvc.GetGrant(ctx, sub.Key()); grant != nil {
		t.Errorf("grant still live: %+v", grant)
	}
	refreshed, _ := subSvc.GetByID(ctx, sub.ID)
	if refreshed.Status != submission.StatusRevoked {
		t.Errorf("Status = %s, want %s", refreshed.Status, submission.StatusRevoked)
	}
}

func Test_commandLine_autoApproveAndPlans(t *testing.T) {
	cli, subSvc := setup(t)
	ctx := context.Background()

	if err := cli.run([]string{"admin", "autoapprove", "on"}); err != nil {
		t.Fatalf("autoapprove on failed: %v", err)
	}
	enabled, err := subSvc.AutoApprove(ctx)
	if err != nil {
		t.Fatalf("AutoApprove() failed: %v", err)
	}
	if !enabled {
		t.Error("AutoApprove() = false after 'autoapprove on'")
	}
	if err = cli.run([]string{"admin", "autoapprove"}); err != nil {
		t.Errorf("autoapprove status failed: %v", err)
	}

	if err = cli.run([]string{"admin", "plans", "-tier", "weekly", "-seconds", "864000"}); err != nil {
		t.Fatalf("plans set failed: %v", err)
	}
	plans, err := cli.planRepo.QueryPlanTiers(ctx)
	if err != nil {
		t.Fatalf("QueryPlanTiers() failed: %v", err)
	}
	if len(plans) != 1 || plans[0].Duration != 10*24*time.Hour {
		t.Errorf("plans = %+v, want weekly override of 10 days", plans)
	}
	if err = cli.run([]string{"admin", "plans"}); err != nil {
		t.Errorf("plans list failed: %v", err)
	}
}
