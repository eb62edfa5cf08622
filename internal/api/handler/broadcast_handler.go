package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apimw "github.com/remindhub/messaging-scheduler/internal/api/middleware"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
	"github.com/remindhub/messaging-scheduler/internal/service"
)

// BroadcastHandler handles the broadcast CRUD endpoints.
type BroadcastHandler struct {
	svc    *service.BroadcastService
	logger *zap.Logger
}

func NewBroadcastHandler(svc *service.BroadcastService, logger *zap.Logger) *BroadcastHandler {
	return &BroadcastHandler{svc: svc, logger: logger}
}

// broadcastResponse is the JSON shape returned for a broadcast.
type broadcastResponse struct {
	ID         string                 `json:"id"`
	Domain     string                 `json:"domain"`
	Name       string                 `json:"name"`
	Kind       string                 `json:"kind"`
	ScheduleID string                 `json:"schedule_id"`
	Recipients []scheduling.Recipient `json:"recipients"`
	StartDate  string                 `json:"start_date,omitempty"`
	LastSent   *time.Time             `json:"last_sent,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

func toBroadcastResponse(b *scheduling.Broadcast) broadcastResponse {
	resp := broadcastResponse{
		ID:         b.ID.String(),
		Domain:     b.Domain,
		Name:       b.Name,
		Kind:       string(b.Kind),
		ScheduleID: b.ScheduleID.String(),
		Recipients: b.Recipients,
		CreatedAt:  b.CreatedAt,
	}
	if !b.StartDate.IsZero() {
		resp.StartDate = b.StartDate.Format("2006-01-02")
	}
	if !b.LastSentTimestamp.IsZero() {
		sent := b.LastSentTimestamp
		resp.LastSent = &sent
	}
	return resp
}

// CreateImmediate handles POST /api/v1/broadcasts/immediate
//
// @Summary     Create an immediate broadcast
// @Tags        broadcasts
// @Accept      json
// @Produce     json
// @Param       body  body      service.ImmediateBroadcastRequest  true  "Broadcast payload"
// @Success     201   {object}  broadcastResponse
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/broadcasts/immediate [post]
func (h *BroadcastHandler) CreateImmediate(w http.ResponseWriter, r *http.Request) {
	var req service.ImmediateBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := h.svc.CreateImmediate(r.Context(), req)
	if err != nil {
		h.logger.Warn("create immediate broadcast failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toBroadcastResponse(b))
}

// CreateScheduled handles POST /api/v1/broadcasts/scheduled
//
// @Summary     Create a scheduled broadcast
// @Tags        broadcasts
// @Accept      json
// @Produce     json
// @Param       body  body      service.ScheduledBroadcastRequest  true  "Broadcast payload"
// @Success     201   {object}  broadcastResponse
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/broadcasts/scheduled [post]
func (h *BroadcastHandler) CreateScheduled(w http.ResponseWriter, r *http.Request) {
	var req service.ScheduledBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := h.svc.CreateScheduled(r.Context(), req)
	if err != nil {
		h.logger.Warn("create scheduled broadcast failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toBroadcastResponse(b))
}

// GetByID handles GET /api/v1/broadcasts/{id}
//
// @Summary  Get a broadcast by ID
// @Tags     broadcasts
// @Produce  json
// @Param    id   path      string  true  "Broadcast UUID"
// @Success  200  {object}  broadcastResponse
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/broadcasts/{id} [get]
func (h *BroadcastHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid broadcast id")
		return
	}
	b, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBroadcastResponse(b))
}

// List handles GET /api/v1/broadcasts
//
// @Summary  List a domain's broadcasts with pagination
// @Tags     broadcasts
// @Produce  json
// @Param    domain  query     string  true   "Project domain"
// @Param    page    query     int     false  "Page number (default 1)"
// @Param    limit   query     int     false  "Items per page (default 20, max 100)"
// @Success  200     {object}  map[string]any
// @Router   /api/v1/broadcasts [get]
func (h *BroadcastHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	domain := q.Get("domain")
	if domain == "" {
		respondError(w, http.StatusBadRequest, "domain query parameter is required")
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	broadcasts, total, err := h.svc.List(r.Context(), domain, page, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list broadcasts")
		return
	}

	data := make([]broadcastResponse, 0, len(broadcasts))
	for _, b := range broadcasts {
		data = append(data, toBroadcastResponse(b))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  data,
		"total": total,
	})
}

// instanceResponse is the JSON shape returned for a schedule instance.
type instanceResponse struct {
	ID              string    `json:"id"`
	RecipientType   string    `json:"recipient_type"`
	RecipientID     string    `json:"recipient_id"`
	CaseID          string    `json:"case_id,omitempty"`
	CurrentEventNum int       `json:"current_event_num"`
	IterationNum    int       `json:"schedule_iteration_num"`
	NextEventDue    time.Time `json:"next_event_due"`
	Active          bool      `json:"active"`
}

// ListInstances handles GET /api/v1/broadcasts/{id}/instances
//
// @Summary  List a broadcast's per-recipient instances
// @Tags     broadcasts
// @Produce  json
// @Param    id   path      string  true  "Broadcast UUID"
// @Success  200  {object}  map[string]any
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/broadcasts/{id}/instances [get]
func (h *BroadcastHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid broadcast id")
		return
	}
	instances, content, err := h.svc.ListInstances(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}

	data := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		data = append(data, instanceResponse{
			ID:              inst.ID.String(),
			RecipientType:   string(inst.RecipientType),
			RecipientID:     inst.RecipientID,
			CaseID:          inst.CaseID,
			CurrentEventNum: inst.CurrentEventNum,
			IterationNum:    inst.ScheduleIterationNum,
			NextEventDue:    inst.NextEventDue,
			Active:          inst.Active,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"content": content,
		"data":    data,
		"total":   len(data),
	})
}

// Update handles PUT /api/v1/broadcasts/{id}
//
// @Summary  Replace a scheduled broadcast's definition
// @Tags     broadcasts
// @Accept   json
// @Produce  json
// @Param    id    path      string                             true  "Broadcast UUID"
// @Param    body  body      service.ScheduledBroadcastRequest  true  "New definition"
// @Success  200   {object}  broadcastResponse
// @Failure  404   {object}  map[string]string
// @Failure  409   {object}  map[string]string  "Immediate broadcasts cannot be edited"
// @Router   /api/v1/broadcasts/{id} [put]
func (h *BroadcastHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid broadcast id")
		return
	}
	var req service.ScheduledBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := h.svc.UpdateScheduled(r.Context(), id, req)
	if err != nil {
		h.logger.Warn("update broadcast failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("broadcast_id", id.String()),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBroadcastResponse(b))
}

// SetActive handles POST /api/v1/broadcasts/{id}/activate and /deactivate.
//
// @Summary  Activate or deactivate a scheduled broadcast
// @Tags     broadcasts
// @Param    id   path  string  true  "Broadcast UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/broadcasts/{id}/activate [post]
func (h *BroadcastHandler) SetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid broadcast id")
			return
		}
		if err := h.svc.SetActive(r.Context(), id, active); err != nil {
			mapError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Delete handles DELETE /api/v1/broadcasts/{id}
//
// @Summary  Delete a broadcast
// @Tags     broadcasts
// @Param    id   path  string  true  "Broadcast UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/broadcasts/{id} [delete]
func (h *BroadcastHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid broadcast id")
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
