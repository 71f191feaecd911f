package service

import (
	"context"
	"testing"

	apperrors "github.com/orderlink/be-plan-amendments/internal/errors"
	"github.com/orderlink/be-plan-amendments/internal/repository"
)

func newSubmissionFixture() (*SubmissionService, *ledgerFixture) {
	f := newLedgerFixture()
	svc := NewSubmissionService(f.submissions, f.amendments, f.hierarchy, f.plans, nil, testLogger())
	return svc, f
}

func TestAdvance_HappyPathThroughHierarchy(t *testing.T) {
	svc, _ := newSubmissionFixture()
	ctx := context.Background()

	state, err := svc.Advance(ctx, testStore, testWeek, repository.LevelStore, storeManager)
	if err != nil {
		t.Fatalf("store advance failed: %v", err)
	}
	if !state.Store.Submitted() {
		t.Fatal("expected store level submitted")
	}
	if state.Area.Submitted() {
		t.Fatal("area level must not be submitted yet")
	}

	state, err = svc.Advance(ctx, testStore, testWeek, repository.LevelArea, areaManager)
	if err != nil {
		t.Fatalf("area advance failed: %v", err)
	}
	if !state.Area.Submitted() {
		t.Fatal("expected area level submitted")
	}

	state, err = svc.Advance(ctx, testStore, testWeek, repository.LevelRegional, regionalManager)
	if err != nil {
		t.Fatalf("regional advance failed: %v", err)
	}
	if !state.Regional.Submitted() {
		t.Fatal("expected regional level submitted")
	}

	state, err = svc.Advance(ctx, testStore, testWeek, repository.LevelAdmin, admin)
	if err != nil {
		t.Fatalf("admin advance failed: %v", err)
	}
	if !state.Admin.Submitted() {
		t.Fatal("expected admin level submitted")
	}
}

// Retrying an advance after a network failure must be a harmless no-op: the
// first submission's timestamp and amendment count are kept.
func TestAdvance_Idempotent(t *testing.T) {
	svc, f := newSubmissionFixture()
	ctx := context.Background()

	// One effective store-manager amendment to snapshot.
	f.propose(t, "SKU-100", 12, storeManager)

	first, err := svc.Advance(ctx, testStore, testWeek, repository.LevelStore, storeManager)
	if err != nil {
		t.Fatalf("first advance failed: %v", err)
	}
	if first.Store.AmendmentCount != 1 {
		t.Fatalf("expected amendment count snapshot 1, got %d", first.Store.AmendmentCount)
	}

	// A second effective amendment lands before the retry; the snapshot must
	// not move.
	f.propose(t, "SKU-200", 6, storeManager)

	second, err := svc.Advance(ctx, testStore, testWeek, repository.LevelStore, storeManager)
	if err != nil {
		t.Fatalf("repeat advance failed: %v", err)
	}
	if !second.Store.Submitted() {
		t.Fatal("expected store level still submitted")
	}
	if second.Store.AmendmentCount != 1 {
		t.Fatalf("retry must keep the first snapshot, got count %d", second.Store.AmendmentCount)
	}
	if !second.Store.SubmittedAt.Equal(*first.Store.SubmittedAt) {
		t.Fatalf("retry must keep the first timestamp: %v vs %v", second.Store.SubmittedAt, first.Store.SubmittedAt)
	}
}

func TestAdvance_OrderingEnforced(t *testing.T) {
	svc, _ := newSubmissionFixture()
	ctx := context.Background()

	_, err := svc.Advance(ctx, testStore, testWeek, repository.LevelArea, areaManager)
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT advancing area before store, got %s: %v", code, err)
	}

	_, err = svc.Advance(ctx, testStore, testWeek, repository.LevelRegional, regionalManager)
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT advancing regional before area, got %s: %v", code, err)
	}
}

func TestAdvance_AdminForcesAnyLevel(t *testing.T) {
	svc, _ := newSubmissionFixture()
	ctx := context.Background()

	// Nothing below is submitted; the admin may still force the regional gate.
	state, err := svc.Advance(ctx, testStore, testWeek, repository.LevelRegional, admin)
	if err != nil {
		t.Fatalf("admin force advance failed: %v", err)
	}
	if !state.Regional.Submitted() {
		t.Fatal("expected regional level submitted")
	}
	if state.Store.Submitted() {
		t.Fatal("forcing one level must not touch the others")
	}
}

func TestAdvance_RoleLevelMismatch(t *testing.T) {
	svc, _ := newSubmissionFixture()
	ctx := context.Background()

	tests := []struct {
		name  string
		level repository.Level
		actor Actor
	}{
		{"store manager cannot advance area", repository.LevelArea, storeManager},
		{"area manager cannot advance store", repository.LevelStore, areaManager},
		{"regional manager cannot advance admin", repository.LevelAdmin, regionalManager},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Advance(ctx, testStore, testWeek, tt.level, tt.actor)
			if code := apperrors.CodeOf(err); code != apperrors.ErrCodeUnauthorized {
				t.Fatalf("expected UNAUTHORIZED, got %s: %v", code, err)
			}
		})
	}
}

func TestAdvance_Validation(t *testing.T) {
	svc, _ := newSubmissionFixture()
	ctx := context.Background()

	_, err := svc.Advance(ctx, testStore, testWeek, repository.Level("district"), admin)
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeValidation {
		t.Fatalf("expected VALIDATION for unknown level, got %s: %v", code, err)
	}

	_, err = svc.Advance(ctx, testStore, "2025-W99", repository.LevelStore, storeManager)
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND for unknown week, got %s: %v", code, err)
	}

	_, err = svc.Advance(ctx, testStore, testWeek, repository.LevelStore, Actor{ID: "outsider", Role: repository.RoleStoreManager})
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED for outsider, got %s: %v", code, err)
	}
}

func TestListForWeek_TrackingOverview(t *testing.T) {
	svc, f := newSubmissionFixture()
	ctx := context.Background()

	f.hierarchy.AddStore(&repository.StoreNode{
		StoreID:        "store-2",
		StoreCode:      "S002",
		StoreName:      "Station Parade",
		StoreManagerID: "sm-2",
	})

	if _, err := svc.Advance(ctx, testStore, testWeek, repository.LevelStore, storeManager); err != nil {
		t.Fatalf("store advance failed: %v", err)
	}
	if _, err := svc.Advance(ctx, "store-2", testWeek, repository.LevelStore, Actor{ID: "sm-2", Role: repository.RoleStoreManager}); err != nil {
		t.Fatalf("second store advance failed: %v", err)
	}
	if _, err := svc.Advance(ctx, testStore, testWeek, repository.LevelArea, areaManager); err != nil {
		t.Fatalf("area advance failed: %v", err)
	}

	states, err := svc.ListForWeek(ctx, testWeek)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 tracked stores, got %d", len(states))
	}
	if states[0].StoreID != testStore || states[1].StoreID != "store-2" {
		t.Fatalf("expected store order [%s store-2], got [%s %s]",
			testStore, states[0].StoreID, states[1].StoreID)
	}
	if !states[0].Area.Submitted() {
		t.Fatal("expected first store's area level submitted")
	}
	if states[1].Area.Submitted() {
		t.Fatal("second store's area level must not be submitted")
	}

	if _, err := svc.ListForWeek(ctx, "2025-W99"); apperrors.CodeOf(err) != apperrors.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND for unknown week, got %v", err)
	}
}

func TestGet_ZeroStateForUntrackedStore(t *testing.T) {
	svc, _ := newSubmissionFixture()

	state, err := svc.Get(context.Background(), testStore, testWeek)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	for _, level := range []repository.Level{
		repository.LevelStore, repository.LevelArea, repository.LevelRegional, repository.LevelAdmin,
	} {
		if state.LevelState(level).Submitted() {
			t.Errorf("expected %s level not_submitted", level)
		}
	}
}
