package service

import (
	"math/rand"
	"testing"

	apperrors "github.com/orderlink/be-plan-amendments/internal/errors"
	"github.com/orderlink/be-plan-amendments/internal/repository"
)

func machineAmendment(status repository.Status) *repository.Amendment {
	return &repository.Amendment{
		ID:            "amd-1",
		StoreID:       "store-1",
		StockCode:     "SKU-100",
		WeekReference: "2025-W36",
		AmendedQty:    12,
		Justification: "promo uplift",
		Status:        status,
		CreatedBy:     "sm-1",
		CreatedByRole: repository.RoleStoreManager,
	}
}

func TestNextStatus_Transitions(t *testing.T) {
	storeManager := Actor{ID: "sm-1", Role: repository.RoleStoreManager}
	areaManager := Actor{ID: "am-1", Role: repository.RoleAreaManager}
	regionalManager := Actor{ID: "rm-1", Role: repository.RoleRegionalManager}
	admin := Actor{ID: "ad-1", Role: repository.RoleAdmin}

	tests := []struct {
		name     string
		status   repository.Status
		action   repository.Action
		actor    Actor
		want     repository.Status
		wantCode apperrors.Code
	}{
		{"owner submits pending", repository.StatusPending, repository.ActionSubmit, storeManager, repository.StatusSubmitted, ""},
		{"higher role submits on behalf", repository.StatusPending, repository.ActionSubmit, areaManager, repository.StatusSubmitted, ""},
		{"submit twice", repository.StatusSubmitted, repository.ActionSubmit, storeManager, "", apperrors.ErrCodeStateConflict},
		{"stranger cannot submit", repository.StatusPending, repository.ActionSubmit, Actor{ID: "other", Role: repository.RoleStoreManager}, "", apperrors.ErrCodeUnauthorized},

		{"area manager endorses submitted", repository.StatusSubmitted, repository.ActionEndorse, areaManager, repository.StatusAreaManagerApproved, ""},
		{"area manager cannot endorse pending", repository.StatusPending, repository.ActionEndorse, areaManager, "", apperrors.ErrCodeStateConflict},
		{"regional endorses submitted directly", repository.StatusSubmitted, repository.ActionEndorse, regionalManager, repository.StatusRegionalDirect, ""},
		{"regional endorses area-approved", repository.StatusAreaManagerApproved, repository.ActionEndorse, regionalManager, repository.StatusAreaDirect, ""},
		{"store manager cannot endorse", repository.StatusSubmitted, repository.ActionEndorse, storeManager, "", apperrors.ErrCodeUnauthorized},
		{"admin cannot endorse", repository.StatusSubmitted, repository.ActionEndorse, admin, "", apperrors.ErrCodeUnauthorized},

		{"admin approves pending", repository.StatusPending, repository.ActionApprove, admin, repository.StatusAdminApproved, ""},
		{"admin approves submitted", repository.StatusSubmitted, repository.ActionApprove, admin, repository.StatusAdminApproved, ""},
		{"admin rejects area-approved", repository.StatusAreaManagerApproved, repository.ActionReject, admin, repository.StatusAdminRejected, ""},
		{"admin modifies regional-direct", repository.StatusRegionalDirect, repository.ActionModify, admin, repository.StatusAdminModified, ""},
		{"admin approves area-direct", repository.StatusAreaDirect, repository.ActionApprove, admin, repository.StatusAdminApproved, ""},
		{"non-admin cannot approve", repository.StatusSubmitted, repository.ActionApprove, regionalManager, "", apperrors.ErrCodeUnauthorized},
		{"non-admin cannot modify", repository.StatusSubmitted, repository.ActionModify, areaManager, "", apperrors.ErrCodeUnauthorized},

		{"terminal approved is frozen", repository.StatusApproved, repository.ActionApprove, admin, "", apperrors.ErrCodeStateConflict},
		{"terminal rejected is frozen", repository.StatusRejected, repository.ActionSubmit, storeManager, "", apperrors.ErrCodeStateConflict},
		{"terminal admin_approved is frozen", repository.StatusAdminApproved, repository.ActionModify, admin, "", apperrors.ErrCodeStateConflict},
		{"terminal admin_modified is frozen", repository.StatusAdminModified, repository.ActionEndorse, regionalManager, "", apperrors.ErrCodeStateConflict},

		{"unknown action", repository.StatusPending, repository.Action("escalate"), admin, "", apperrors.ErrCodeValidation},
		{"unknown role", repository.StatusPending, repository.ActionSubmit, Actor{ID: "x", Role: "intern"}, "", apperrors.ErrCodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(machineAmendment(tt.status), tt.action, tt.actor)
			if tt.wantCode != "" {
				if err == nil {
					t.Fatalf("expected %s error, got status %s", tt.wantCode, got)
				}
				if code := apperrors.CodeOf(err); code != tt.wantCode {
					t.Fatalf("expected %s error, got %s: %v", tt.wantCode, code, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected status %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNextStatus_SubmitRequiresJustification(t *testing.T) {
	a := machineAmendment(repository.StatusPending)
	a.Justification = ""

	_, err := NextStatus(a, repository.ActionSubmit, Actor{ID: "sm-1", Role: repository.RoleStoreManager})
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeValidation {
		t.Fatalf("expected VALIDATION, got %s: %v", code, err)
	}
}

// TestNextStatus_Closure drives every (status, action, role) combination and
// checks that successful transitions only ever land on defined statuses and
// that nothing leaves a terminal status.
func TestNextStatus_Closure(t *testing.T) {
	statuses := []repository.Status{
		repository.StatusPending, repository.StatusSubmitted,
		repository.StatusAreaManagerApproved, repository.StatusRegionalDirect,
		repository.StatusAreaDirect, repository.StatusApproved,
		repository.StatusRejected, repository.StatusAdminApproved,
		repository.StatusAdminRejected, repository.StatusAdminModified,
	}
	actions := []repository.Action{
		repository.ActionSubmit, repository.ActionEndorse,
		repository.ActionApprove, repository.ActionReject, repository.ActionModify,
	}
	roles := []repository.Role{
		repository.RoleStoreManager, repository.RoleAreaManager,
		repository.RoleRegionalManager, repository.RoleAdmin,
	}

	for _, status := range statuses {
		for _, action := range actions {
			for _, role := range roles {
				next, err := NextStatus(machineAmendment(status), action, Actor{ID: "sm-1", Role: role})
				if err != nil {
					continue
				}
				if !next.Valid() {
					t.Errorf("%s + %s by %s produced undefined status %q", status, action, role, next)
				}
				if status.Terminal() {
					t.Errorf("terminal status %s allowed %s by %s", status, action, role)
				}
			}
		}
	}
}

// TestNextStatus_RandomLegalSequences walks random legal action sequences and
// checks that an amendment only ever occupies defined statuses and freezes
// once terminal.
func TestNextStatus_RandomLegalSequences(t *testing.T) {
	actions := []repository.Action{
		repository.ActionSubmit, repository.ActionEndorse,
		repository.ActionApprove, repository.ActionReject, repository.ActionModify,
	}
	roles := []repository.Role{
		repository.RoleStoreManager, repository.RoleAreaManager,
		repository.RoleRegionalManager, repository.RoleAdmin,
	}

	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 200; run++ {
		a := machineAmendment(repository.StatusPending)
		for step := 0; step < 10; step++ {
			action := actions[rng.Intn(len(actions))]
			role := roles[rng.Intn(len(roles))]
			next, err := NextStatus(a, action, Actor{ID: "sm-1", Role: role})
			if err != nil {
				continue
			}
			if a.Status.Terminal() {
				t.Fatalf("run %d: left terminal status %s via %s by %s", run, a.Status, action, role)
			}
			if !next.Valid() {
				t.Fatalf("run %d: undefined status %q", run, next)
			}
			a.Status = next
		}
	}
}
