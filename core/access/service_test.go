package access

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeGrantRepo is an in-memory Repository for white-box service tests.
type fakeGrantRepo struct {
	grants map[Key]Grant
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: make(map[Key]Grant)}
}

func (r *fakeGrantRepo) UpsertGrant(ctx context.Context, grant Grant) (Grant, error) {
	key := grant.Key()
	if prev, ok := r.grants[key]; ok {
		grant.ID = prev.ID
		grant.CreatedAt = prev.CreatedAt
	} else {
		grant.ID = uuid.NewString()
	}
	grant.Revoked = false
	r.grants[key] = grant
	return grant, nil
}

func (r *fakeGrantRepo) GetGrant(ctx context.Context, key Key) (Grant, error) {
	grant, ok := r.grants[key]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return grant, nil
}

func (r *fakeGrantRepo) ExpireGrant(ctx context.Context, key Key, at time.Time) error {
	grant, ok := r.grants[key]
	if !ok {
		return ErrNotFound
	}
	grant.Expiry = at
	grant.Revoked = true
	r.grants[key] = grant
	return nil
}

func (r *fakeGrantRepo) DeleteExpiredGrants(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	for key, grant := range r.grants {
		if grant.Expiry.Before(cutoff) || grant.Expiry.Equal(cutoff) {
			delete(r.grants, key)
			count++
		}
	}
	return count, nil
}

func testService(repo Repository, now time.Time) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return now }
	return svc
}

var testKey = Key{Subject: "dev@test.cd", Feature: FeatureVideo, FeatureID: "vid-001"}

func Test_Service_GetGrant_expiryBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeGrantRepo()
	svc := testService(repo, now)

	expiry := now.Add(time.Hour)
	if _, err := svc.UpsertGrant(ctx, testKey, expiry, ""); err != nil {
		t.Fatalf("UpsertGrant() failed: %v", err)
	}

	tests := []struct {
		name     string
		at       time.Time
		wantLive bool
	}{
		{name: "well before expiry", at: now, wantLive: true},
		{name: "1ms before expiry", at: expiry.Add(-time.Millisecond), wantLive: true},
		{name: "exactly at expiry", at: expiry, wantLive: false},
		{name: "1ms after expiry", at: expiry.Add(time.Millisecond), wantLive: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.now = func() time.Time { return tt.at }
			grant, err := svc.GetGrant(ctx, testKey)
			if err != nil {
				t.Fatalf("GetGrant() failed: %v", err)
			}
			if got := grant != nil; got != tt.wantLive {
				t.Errorf("GetGrant() live = %v, want %v", got, tt.wantLive)
			}
		})
	}
}

func Test_Service_GetGrant_absent(t *testing.T) {
	svc := testService(newFakeGrantRepo(), time.Now())

	grant, err := svc.GetGrant(context.Background(), testKey)
	if err != nil {
		t.Fatalf("GetGrant() failed: %v", err)
	}
	if grant != nil {
		t.Errorf("GetGrant() = %+v, want nil", grant)
	}
}

func Test_Service_UpsertGrant_lastWriterWins(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	repo := newFakeGrantRepo()
	svc := testService(repo, now)

	first, err := svc.UpsertGrant(ctx, testKey, now.Add(30*24*time.Hour), "")
	if err != nil {
		t.Fatalf("UpsertGrant() failed: %v", err)
	}
	// a shorter grant landing later replaces the longer one outright
	second, err := svc.UpsertGrant(ctx, testKey, now.Add(time.Hour), "downgraded")
	if err != nil {
		t.Fatalf("UpsertGrant() failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("re-upsert changed grant identity: %s != %s", second.ID, first.ID)
	}
	grant, err := svc.GetGrant(ctx, testKey)
	if err != nil {
		t.Fatalf("GetGrant() failed: %v", err)
	}
	if grant == nil {
		t.Fatal("GetGrant() = nil, want live grant")
	}
	if !grant.Expiry.Equal(now.Add(time.Hour)) {
		t.Errorf("Expiry = %s, want %s", grant.Expiry, now.Add(time.Hour))
	}
	if grant.Message.String != "downgraded" {
		t.Errorf("Message = %q, want %q", grant.Message.String, "downgraded")
	}
}

func Test_Service_UpsertGrant_reinstatesRevoked(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	repo := newFakeGrantRepo()
	svc := testService(repo, now)

	if _, err := svc.UpsertGrant(ctx, testKey, now.Add(time.Hour), ""); err != nil {
		t.Fatalf("UpsertGrant() failed: %v", err)
	}
	if err := svc.RevokeGrant(ctx, testKey); err != nil {
		t.Fatalf("RevokeGrant() failed: %v", err)
	}
	if grant, _ := svc.GetGrant(ctx, testKey); grant != nil {
		t.Fatal("GetGrant() after revoke should be nil")
	}

	// a fresh approval after a revoke reopens access
	if _, err := svc.UpsertGrant(ctx, testKey, now.Add(time.Hour), ""); err != nil {
		t.Fatalf("UpsertGrant() failed: %v", err)
	}
	grant, err := svc.GetGrant(ctx, testKey)
	if err != nil {
		t.Fatalf("GetGrant() failed: %v", err)
	}
	if grant == nil {
		t.Fatal("GetGrant() = nil, want reinstated grant")
	}
}

func Test_Service_RevokeGrant_idempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	repo := newFakeGrantRepo()
	svc := testService(repo, now)

	// absent grant: no-op success
	if err := svc.RevokeGrant(ctx, testKey); err != nil {
		t.Errorf("RevokeGrant() on absent grant failed: %v", err)
	}

	if _, err := svc.UpsertGrant(ctx, testKey, now.Add(time.Hour), ""); err != nil {
		t.Fatalf("UpsertGrant() failed: %v", err)
	}
	if err := svc.RevokeGrant(ctx, testKey); err != nil {
		t.Fatalf("RevokeGrant() failed: %v", err)
	}
	if err := svc.RevokeGrant(ctx, testKey); err != nil {
		t.Errorf("second RevokeGrant() failed: %v", err)
	}

	// the row stays for auditing but reads as locked
	if _, ok := repo.grants[testKey]; !ok {
		t.Error("revoke deleted the grant row")
	}
	if grant, _ := svc.GetGrant(ctx, testKey); grant != nil {
		t.Error("GetGrant() after revoke should be nil")
	}
}

func Test_Service_SweepExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	repo := newFakeGrantRepo()
	svc := testService(repo, now)

	live := Key{Subject: "dev@test.cd", Feature: FeaturePodcast, FeatureID: "pod-1"}
	if _, err := svc.UpsertGrant(ctx, testKey, now.Add(-time.Minute), ""); err != nil {
		t.Fatalf("UpsertGrant() failed: %v", err)
	}
	if _, err := svc.UpsertGrant(ctx, live, now.Add(time.Hour), ""); err != nil {
		t.Fatalf("UpsertGrant() failed: %v", err)
	}

	count, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("SweepExpired() = %d, want 1", count)
	}
	if _, ok := repo.grants[testKey]; ok {
		t.Error("expired grant row survived the sweep")
	}
	if grant, _ := svc.GetGrant(ctx, live); grant == nil {
		t.Error("live grant was swept")
	}
}

func Test_TierDuration(t *testing.T) {
	tests := []struct {
		tier string
		want time.Duration
	}{
		{tier: PlanWeekly, want: 7 * 24 * time.Hour},
		{tier: PlanMonthly, want: 30 * 24 * time.Hour},
		{tier: PlanYearly, want: 365 * 24 * time.Hour},
		{tier: "", want: DefaultPlanDuration},
		{tier: "lol", want: DefaultPlanDuration},
	}
	for _, tt := range tests {
		if got := TierDuration(tt.tier); got != tt.want {
			t.Errorf("TierDuration(%q) = %s, want %s", tt.tier, got, tt.want)
		}
	}
}
