package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/orderlink/be-plan-amendments/internal/logger"
	"github.com/orderlink/be-plan-amendments/internal/repository"
	"github.com/orderlink/be-plan-amendments/internal/repository/memory"
	"github.com/orderlink/be-plan-amendments/internal/service"
)

func newTestHandler() (*HTTPHandler, *memory.PlanSource, *memory.HierarchyDirectory) {
	amendments := memory.NewAmendmentStore()
	plans := memory.NewPlanSource()
	hierarchy := memory.NewHierarchyDirectory()
	audit := memory.NewAuditLog()
	submissions := memory.NewSubmissionStore()

	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})

	ledger := service.NewLedgerService(amendments, plans, hierarchy, audit, nil, nil, log)
	subs := service.NewSubmissionService(submissions, amendments, hierarchy, plans, nil, log)
	rollups := service.NewRollupService(plans, hierarchy, amendments, 0, 0, nil, log)

	return NewHTTPHandler(ledger, subs, rollups, log), plans, hierarchy
}

func seedWeekAndStore(plans *memory.PlanSource, hierarchy *memory.HierarchyDirectory) {
	plans.AddWeek(&repository.WeekSelection{
		WeekReference: "2025-W36", IsCurrent: true, IsActive: true, WeekStatus: "open",
	})
	hierarchy.AddStore(&repository.StoreNode{
		StoreID: "store-1", StoreCode: "S001",
		StoreManagerID: "sm-1", AreaManagerID: "am-1", RegionalManagerID: "rm-1",
	})
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestProposeEndpoint_CreatesAmendment(t *testing.T) {
	h, plans, hierarchy := newTestHandler()
	seedWeekAndStore(plans, hierarchy)

	rec := doJSON(t, h.Amendments, http.MethodPost, "/api/v1/amendments",
		`{"store_id":"store-1","stock_code":"SKU-100","week_reference":"2025-W36","amended_qty":9,"justification":"demand spike"}`,
		map[string]string{"X-User-ID": "sm-1", "X-User-Role": "store_manager"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var a repository.Amendment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if a.ID == "" || a.Status != repository.StatusPending {
		t.Errorf("unexpected amendment: %+v", a)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	h, plans, hierarchy := newTestHandler()
	seedWeekAndStore(plans, hierarchy)

	tests := []struct {
		name       string
		body       string
		headers    map[string]string
		wantStatus int
		wantCode   string
	}{
		{
			"validation maps to 400",
			`{"store_id":"store-1","stock_code":"SKU-100","week_reference":"2025-W36","amended_qty":-3,"justification":"x"}`,
			map[string]string{"X-User-ID": "sm-1", "X-User-Role": "store_manager"},
			http.StatusBadRequest, "VALIDATION",
		},
		{
			"unauthorized maps to 403",
			`{"store_id":"store-1","stock_code":"SKU-100","week_reference":"2025-W36","amended_qty":3,"justification":"x"}`,
			map[string]string{"X-User-ID": "stranger", "X-User-Role": "store_manager"},
			http.StatusForbidden, "UNAUTHORIZED",
		},
		{
			"not found maps to 404",
			`{"store_id":"store-404","stock_code":"SKU-100","week_reference":"2025-W36","amended_qty":3,"justification":"x"}`,
			map[string]string{"X-User-ID": "sm-1", "X-User-Role": "store_manager"},
			http.StatusNotFound, "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h.Amendments, http.MethodPost, "/api/v1/amendments", tt.body, tt.headers)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			var payload map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if payload["code"] != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, payload["code"])
			}
		})
	}
}

func TestStateConflictMapsTo409(t *testing.T) {
	h, plans, hierarchy := newTestHandler()
	seedWeekAndStore(plans, hierarchy)

	body := `{"store_id":"store-1","stock_code":"SKU-100","week_reference":"2025-W36","amended_qty":5,"justification":"x"}`
	headers := map[string]string{"X-User-ID": "sm-1", "X-User-Role": "store_manager"}

	if rec := doJSON(t, h.Amendments, http.MethodPost, "/api/v1/amendments", body, headers); rec.Code != http.StatusCreated {
		t.Fatalf("seed propose failed: %d", rec.Code)
	}
	rec := doJSON(t, h.Amendments, http.MethodPost, "/api/v1/amendments", body, headers)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate key, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMethodGuards(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h.SubmitAmendment, http.MethodGet, "/api/v1/amendments/submit", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}

	rec = doJSON(t, h.Rollup, http.MethodPost, "/api/v1/rollup", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRollupEndpoint_RequiresWeek(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h.Rollup, http.MethodGet, "/api/v1/rollup", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without week_reference, got %d", rec.Code)
	}
}

func TestSubmissionEndpoint_ZeroState(t *testing.T) {
	h, plans, hierarchy := newTestHandler()
	seedWeekAndStore(plans, hierarchy)

	rec := doJSON(t, h.GetSubmission, http.MethodGet,
		"/api/v1/submissions?store_id=store-1&week_reference=2025-W36", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var state repository.SubmissionState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Store.Submitted() {
		t.Error("expected not_submitted store level for untracked pair")
	}
}

func TestSubmissionEndpoint_WeekOverview(t *testing.T) {
	h, plans, hierarchy := newTestHandler()
	seedWeekAndStore(plans, hierarchy)

	rec := doJSON(t, h.AdvanceSubmission, http.MethodPost, "/api/v1/submissions/advance",
		`{"store_id":"store-1","week_reference":"2025-W36","level":"store"}`,
		map[string]string{"X-User-ID": "sm-1", "X-User-Role": "store_manager"})
	if rec.Code != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h.GetSubmission, http.MethodGet,
		"/api/v1/submissions?week_reference=2025-W36", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var overview struct {
		WeekReference string                        `json:"week_reference"`
		Submissions   []*repository.SubmissionState `json:"submissions"`
		Total         int                           `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &overview); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if overview.Total != 1 || len(overview.Submissions) != 1 {
		t.Fatalf("expected one tracked store, got %s", rec.Body.String())
	}
	if overview.Submissions[0].StoreID != "store-1" || !overview.Submissions[0].Store.Submitted() {
		t.Fatalf("unexpected overview row: %+v", overview.Submissions[0])
	}
}
