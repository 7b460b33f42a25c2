package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"log"
	"net/http"
	"strings"

	"antrian/antrian-service/internal/auth"
	"antrian/antrian-service/internal/models"
	"antrian/antrian-service/internal/queue"
	"antrian/antrian-service/internal/store"
)

const maxBodyBytes = 1 << 20

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service      *queue.Service
	health       Pinger
	verifier     auth.TokenVerifier
	authDisabled bool
}

type Options struct {
	// Verifier guards every mutating route and /api/external.
	Verifier auth.TokenVerifier
	// AuthDisabled lets guarded routes through without a token. Development only.
	AuthDisabled bool
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dayParams struct {
	TenantID string `query:"id" validate:"required"`
	Date     string `query:"date" validate:"required,datetime=2006-01-02"`
}

type statusParams struct {
	TenantID string `query:"id" validate:"required"`
	Date     string `query:"date" validate:"required,datetime=2006-01-02"`
	Status   string `query:"status" validate:"required,oneof=Menunggu Aktif Selesai Dibatalkan"`
}

type existParams struct {
	TenantID string `query:"id" validate:"required"`
	Date     string `query:"date" validate:"required,datetime=2006-01-02"`
	Status   string `query:"status" validate:"required,oneof=Menunggu Aktif Selesai Dibatalkan"`
	UserID   string `query:"user_id" validate:"required"`
}

type userTicketsParams struct {
	UserID string `query:"userId" validate:"required"`
	Status string `query:"status" validate:"omitempty,oneof=Menunggu Aktif Selesai Dibatalkan"`
}

type cancelParams struct {
	TicketID string `query:"antrianId" validate:"required"`
}

func NewHandler(service *queue.Service, health Pinger, options Options) *Handler {
	return &Handler{
		service:      service,
		health:       health,
		verifier:     options.Verifier,
		authDisabled: options.AuthDisabled,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", expvar.Handler())
	mux.HandleFunc("GET /api/external", h.requireAuth(h.handleExternal))

	mux.HandleFunc("GET /api/tenant", h.handleListTenants)
	mux.HandleFunc("GET /api/tenant/{id}", h.handleGetTenant)

	mux.HandleFunc("GET /api/antrian/lastactive", h.handleLastActive)
	mux.HandleFunc("GET /api/antrian/activenow", h.handleActiveNow)
	mux.HandleFunc("GET /api/antrian/all", h.handleAllInDay)
	mux.HandleFunc("GET /api/antrian/last", h.handleLastByStatus)
	mux.HandleFunc("GET /api/antrian/selesai", h.handleAllByStatus)
	mux.HandleFunc("GET /api/antrian/allantri", h.handleQueuedByStatus)
	mux.HandleFunc("GET /api/antrian/exist", h.handleExists)
	mux.HandleFunc("GET /api/antrian/first", h.handleFirstWaiting)
	mux.HandleFunc("GET /api/antrian/riwayat/{idAntrian}", h.handleTicketHistory)
	mux.HandleFunc("GET /api/antrian/{userId}", h.handleUserTickets)
	mux.HandleFunc("POST /api/antrian/{tenantId}", h.requireAuth(h.handleCreateTicket))
	mux.HandleFunc("PUT /api/antrian/firstedit/{idAntrian}", h.requireAuth(h.handlePromote))
	mux.HandleFunc("PUT /api/antrian/ditangani/{idAntrian}", h.requireAuth(h.handleMarkHandled))
	mux.HandleFunc("PUT /api/antrian/cancel", h.requireAuth(h.handleCancel))
	mux.HandleFunc("PUT /api/antrian/next", h.requireAuth(h.handleCallNext))

	mux.HandleFunc("GET /api/rekam/{userId}", h.handleGetRecord)
	mux.HandleFunc("POST /api/rekam/{userId}", h.requireAuth(h.handleCreateRecord))
	mux.HandleFunc("PUT /api/rekam/{userId}", h.requireAuth(h.handleUpdateRecord))
	mux.HandleFunc("GET /api/rekamlast", h.handleLastRecord)
	return mux
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "API is Running")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		log.Printf("health check failed: %v", err)
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "store_unavailable", "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleExternal(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"msg": "Your access token was successfully validated!"}
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		response["sub"] = claims.Subject
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.ListTenants(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []models.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *Handler) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.service.GetTenant(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant.Data)
}

func (h *Handler) handleLastActive(w http.ResponseWriter, r *http.Request) {
	h.statusDayQuery(w, r, h.service.LastActive)
}

func (h *Handler) handleActiveNow(w http.ResponseWriter, r *http.Request) {
	h.statusDayQuery(w, r, h.service.ActiveNow)
}

func (h *Handler) handleLastByStatus(w http.ResponseWriter, r *http.Request) {
	h.statusDayQuery(w, r, h.service.LastByStatus)
}

func (h *Handler) handleAllByStatus(w http.ResponseWriter, r *http.Request) {
	h.statusDayQuery(w, r, h.service.AllByStatus)
}

func (h *Handler) handleQueuedByStatus(w http.ResponseWriter, r *http.Request) {
	h.statusDayQuery(w, r, h.service.QueuedByStatus)
}

func (h *Handler) handleAllInDay(w http.ResponseWriter, r *http.Request) {
	var params dayParams
	if !bindQuery(w, r, &params) {
		return
	}
	tickets, err := h.service.AllInDay(r.Context(), queue.DayQuery{TenantID: params.TenantID, Date: params.Date})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.WireTickets(tickets))
}

func (h *Handler) handleExists(w http.ResponseWriter, r *http.Request) {
	var params existParams
	if !bindQuery(w, r, &params) {
		return
	}
	tickets, err := h.service.ExistsForUser(r.Context(), queue.DayQuery{
		TenantID: params.TenantID,
		Date:     params.Date,
		Status:   params.Status,
		UserID:   params.UserID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.WireTickets(tickets))
}

func (h *Handler) statusDayQuery(w http.ResponseWriter, r *http.Request, query func(context.Context, queue.DayQuery) ([]models.Ticket, error)) {
	var params statusParams
	if !bindQuery(w, r, &params) {
		return
	}
	tickets, err := query(r.Context(), queue.DayQuery{
		TenantID: params.TenantID,
		Date:     params.Date,
		Status:   params.Status,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.WireTickets(tickets))
}

func (h *Handler) handleFirstWaiting(w http.ResponseWriter, r *http.Request) {
	var params dayParams
	if !bindQuery(w, r, &params) {
		return
	}
	ticket, err := h.service.FirstWaiting(r.Context(), params.TenantID, params.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket.Wire())
}

func (h *Handler) handleUserTickets(w http.ResponseWriter, r *http.Request) {
	var params userTicketsParams
	if !decodeQuery(w, r, &params) {
		return
	}
	params.UserID = strings.TrimSpace(r.PathValue("userId"))
	if !validateParams(w, r, &params) {
		return
	}
	tickets, err := h.service.TicketsForUser(r.Context(), params.UserID, params.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.WireTickets(tickets))
}

func (h *Handler) handleTicketHistory(w http.ResponseWriter, r *http.Request) {
	ticketID := r.PathValue("idAntrian")
	events, status, err := h.service.TicketHistory(r.Context(), ticketID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []store.TicketEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     ticketID,
		"status": status,
		"events": events,
	})
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	ticket, err := h.service.CreateTicket(r.Context(), r.PathValue("tenantId"), fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket.Wire())
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, r.PathValue("idAntrian"), h.service.PromoteNext)
}

func (h *Handler) handleMarkHandled(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, r.PathValue("idAntrian"), h.service.MarkHandled)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var params cancelParams
	if !bindQuery(w, r, &params) {
		return
	}
	h.transition(w, r, params.TicketID, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, ticketID string, apply func(context.Context, string) (models.Ticket, error)) {
	ticket, err := apply(r.Context(), ticketID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket.Wire())
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	var params dayParams
	if !bindQuery(w, r, &params) {
		return
	}
	ticket, err := h.service.CallNext(r.Context(), params.TenantID, params.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket.Wire())
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.LookupRecord(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record.Document())
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	record, err := h.service.CreateRecord(r.Context(), r.PathValue("userId"), fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record.Document())
}

func (h *Handler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	record, err := h.service.UpdateRecord(r.Context(), r.PathValue("userId"), fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record.Document())
}

func (h *Handler) handleLastRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.NextRecordNumber(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record.Document())
}

// decodeDocument reads a free-form JSON object. Numbers stay json.Number so record
// numbers survive without float rounding.
func decodeDocument(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.UseNumber()
	var fields map[string]interface{}
	if err := decoder.Decode(&fields); err != nil || fields == nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "request body must be a JSON object")
		return nil, false
	}
	return fields, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	requestID := requestIDFromRequest(r)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed method=%s path=%s request_id=%s error=%v", r.Method, r.URL.Path, requestID, err)
	}
	writeError(w, requestID, status, code, msg)
}

// statusClientClosedRequest is returned when the caller went away before the store answered.
const statusClientClosedRequest = 499

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, queue.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), queue.ErrInvalidRequest.Error()+": ")
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case errors.Is(err, queue.ErrQueueEmpty):
		return http.StatusNotFound, "queue_empty", "no waiting ticket"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrTenantNotFound):
		return http.StatusNotFound, "tenant_not_found", "tenant not found"
	case errors.Is(err, store.ErrRecordNotFound):
		return http.StatusNotFound, "record_not_found", "medical record not found"
	case errors.Is(err, store.ErrActiveExists):
		return http.StatusConflict, "active_exists", "another ticket is already active for this tenant and day"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "ticket state does not allow this action"
	case errors.Is(err, store.ErrRecordExists):
		return http.StatusConflict, "record_exists", "medical record already exists for user"
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "store_unavailable", "store unavailable"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "request_canceled", "request canceled"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
