package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/remindhub/messaging-scheduler/internal/api/middleware"
	"github.com/remindhub/messaging-scheduler/internal/service"
)

// CaseHandler ingests case updates from the platform feed.
type CaseHandler struct {
	svc    *service.CaseService
	logger *zap.Logger
}

func NewCaseHandler(svc *service.CaseService, logger *zap.Logger) *CaseHandler {
	return &CaseHandler{svc: svc, logger: logger}
}

type upsertCaseRequest struct {
	Domain     string            `json:"domain"`
	Properties map[string]string `json:"properties"`
}

// Upsert handles PUT /api/v1/cases/{id}
//
// Stores the case's property bag and reconciles every schedule instance
// driven by the case: reset properties restart their schedule, changed
// send-time properties trigger a recalculation.
//
// @Summary  Upsert a case and refresh its schedule instances
// @Tags     cases
// @Accept   json
// @Param    id    path  string             true  "Case ID"
// @Param    body  body  upsertCaseRequest  true  "Case payload"
// @Success  204
// @Failure  400  {object}  map[string]string
// @Router   /api/v1/cases/{id} [put]
func (h *CaseHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	var req upsertCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Domain == "" {
		respondError(w, http.StatusBadRequest, "domain is required")
		return
	}

	if err := h.svc.UpsertCase(r.Context(), req.Domain, caseID, req.Properties); err != nil {
		h.logger.Warn("case upsert failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("case_id", caseID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
