package handler

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/orderlink/be-plan-amendments/internal/errors"
	"github.com/orderlink/be-plan-amendments/internal/logger"
	"github.com/orderlink/be-plan-amendments/internal/middleware"
	"github.com/orderlink/be-plan-amendments/internal/repository"
	"github.com/orderlink/be-plan-amendments/internal/service"
)

// HTTPHandler handles HTTP requests for the amendment ledger, the submission
// gate tracker and the rollup engine.
type HTTPHandler struct {
	ledger      *service.LedgerService
	submissions *service.SubmissionService
	rollups     *service.RollupService
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	ledger *service.LedgerService,
	submissions *service.SubmissionService,
	rollups *service.RollupService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		ledger:      ledger,
		submissions: submissions,
		rollups:     rollups,
		log:         log,
	}
}

// Register wires all routes onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/amendments", h.Amendments)
	mux.HandleFunc("/api/v1/amendments/submit", h.SubmitAmendment)
	mux.HandleFunc("/api/v1/amendments/endorse", h.EndorseAmendment)
	mux.HandleFunc("/api/v1/amendments/resolve", h.ResolveAmendment)
	mux.HandleFunc("/api/v1/amendments/effective", h.EffectiveAmendment)
	mux.HandleFunc("/api/v1/amendments/history", h.AmendmentHistory)
	mux.HandleFunc("/api/v1/submissions/advance", h.AdvanceSubmission)
	mux.HandleFunc("/api/v1/submissions", h.GetSubmission)
	mux.HandleFunc("/api/v1/rollup", h.Rollup)
}

// actorFrom reads the caller identity from the trusted gateway headers.
func actorFrom(r *http.Request) service.Actor {
	return service.Actor{
		ID:   r.Header.Get("X-User-ID"),
		Name: r.Header.Get("X-User-Name"),
		Role: repository.Role(r.Header.Get("X-User-Role")),
	}
}

// Amendments dispatches POST (propose) and GET (role-scoped review list).
func (h *HTTPHandler) Amendments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.proposeAmendment(w, r)
	case http.MethodGet:
		h.listAmendments(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) proposeAmendment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StoreID       string `json:"store_id"`
		StockCode     string `json:"stock_code"`
		WeekReference string `json:"week_reference"`
		AmendedQty    int    `json:"amended_qty"`
		Justification string `json:"justification"`
		Category      string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.ledger.Propose(r.Context(), &service.ProposeRequest{
		StoreID:       body.StoreID,
		StockCode:     body.StockCode,
		WeekReference: body.WeekReference,
		AmendedQty:    body.AmendedQty,
		Justification: body.Justification,
		Category:      body.Category,
		Actor:         actorFrom(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, a)
}

func (h *HTTPHandler) listAmendments(w http.ResponseWriter, r *http.Request) {
	weekRef := r.URL.Query().Get("week_reference")
	if weekRef == "" {
		http.Error(w, "week_reference is required", http.StatusBadRequest)
		return
	}

	amendments, err := h.ledger.ListForReview(r.Context(), weekRef, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"amendments": amendments,
		"total":      len(amendments),
	})
}

// SubmitAmendment moves a pending amendment into the approval flow.
func (h *HTTPHandler) SubmitAmendment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.Submit)
}

// EndorseAmendment records an area or regional manager endorsement.
func (h *HTTPHandler) EndorseAmendment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.Endorse)
}

func (h *HTTPHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string, service.Actor) (*repository.Amendment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.ID == "" {
		http.Error(w, "Amendment ID is required", http.StatusBadRequest)
		return
	}

	a, err := op(r.Context(), body.ID, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, a)
}

// ResolveAmendment applies an admin approve, reject or modify decision.
func (h *HTTPHandler) ResolveAmendment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID     string  `json:"id"`
		Action string  `json:"action"`
		NewQty *int    `json:"new_qty"`
		Notes  *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.ID == "" || body.Action == "" {
		http.Error(w, "Amendment ID and action are required", http.StatusBadRequest)
		return
	}

	result, err := h.ledger.Resolve(r.Context(), &service.ResolveRequest{
		AmendmentID: body.ID,
		Action:      repository.Action(body.Action),
		NewQty:      body.NewQty,
		Notes:       body.Notes,
		Actor:       actorFrom(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// EffectiveAmendment returns the single effective amendment for a key, or
// 404 when the baseline applies unchanged.
func (h *HTTPHandler) EffectiveAmendment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	storeID, stockCode, weekRef := q.Get("store_id"), q.Get("stock_code"), q.Get("week_reference")
	if storeID == "" || stockCode == "" || weekRef == "" {
		http.Error(w, "store_id, stock_code and week_reference are required", http.StatusBadRequest)
		return
	}

	a, err := h.ledger.EffectiveAmendmentFor(r.Context(), storeID, stockCode, weekRef)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if a == nil {
		http.Error(w, "No effective amendment for key", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, a)
}

// AmendmentHistory returns the audit trail for one amendment.
func (h *HTTPHandler) AmendmentHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Amendment ID is required", http.StatusBadRequest)
		return
	}

	entries, err := h.ledger.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"amendment_id": id,
		"entries":      entries,
	})
}

// AdvanceSubmission marks one hierarchy level submitted for a store/week.
func (h *HTTPHandler) AdvanceSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		StoreID       string `json:"store_id"`
		WeekReference string `json:"week_reference"`
		Level         string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.StoreID == "" || body.WeekReference == "" || body.Level == "" {
		http.Error(w, "store_id, week_reference and level are required", http.StatusBadRequest)
		return
	}

	state, err := h.submissions.Advance(r.Context(), body.StoreID, body.WeekReference, repository.Level(body.Level), actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// GetSubmission returns the submission state for a store/week, or the
// week-wide overview when store_id is omitted. A store with no record yet
// reports every level not_submitted.
func (h *HTTPHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	storeID, weekRef := q.Get("store_id"), q.Get("week_reference")
	if weekRef == "" {
		http.Error(w, "week_reference is required", http.StatusBadRequest)
		return
	}

	// Without a store the response is the week-wide tracking overview.
	if storeID == "" {
		states, err := h.submissions.ListForWeek(r.Context(), weekRef)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"week_reference": weekRef,
			"submissions":    states,
			"total":          len(states),
		})
		return
	}

	state, err := h.submissions.Get(r.Context(), storeID, weekRef)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// Rollup recomputes the revised totals for a week, optionally narrowed to a
// store, area manager or regional manager.
func (h *HTTPHandler) Rollup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	weekRef := q.Get("week_reference")
	if weekRef == "" {
		http.Error(w, "week_reference is required", http.StatusBadRequest)
		return
	}

	result, err := h.rollups.Rollup(r.Context(), weekRef, service.Scope{
		StoreID:           q.Get("store_id"),
		AreaManagerID:     q.Get("area_manager_id"),
		RegionalManagerID: q.Get("regional_manager_id"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps the service error taxonomy onto HTTP status codes in one
// place.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)

	var status int
	switch code {
	case apperrors.ErrCodeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeStateConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeConsistency:
		status = http.StatusUnprocessableEntity
	case apperrors.ErrCodeTransient:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}
