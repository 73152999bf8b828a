package handler

import (
	"net/http"
	"strconv"
	"time"

	"stash-api/internal/domain"
	"stash-api/internal/gate"
	"stash-api/internal/middleware"
	"stash-api/internal/service"
	"stash-api/internal/sse"
	"stash-api/pkg/errors"
	"stash-api/pkg/logger"
)

// GateHandler exposes a visitor's quota and the live gate stream
type GateHandler struct {
	gates   *gate.Service
	broker  *service.AuthBroker
	hub     *sse.Hub
	tracker gate.Tracker
	logger  *logger.Logger
}

// NewGateHandler creates a new gate handler
func NewGateHandler(gates *gate.Service, broker *service.AuthBroker, hub *sse.Hub, tracker gate.Tracker, logger *logger.Logger) *GateHandler {
	return &GateHandler{
		gates:   gates,
		broker:  broker,
		hub:     hub,
		tracker: tracker,
		logger:  logger.Named("gate_handler"),
	}
}

// GateViewRequest is the body of POST /api/gate/views
type GateViewRequest struct {
	Type domain.VisitorType `json:"type"`
}

// SuppressRequest is the body of POST /api/gate/suppress
type SuppressRequest struct {
	DurationMs int64 `json:"duration_ms"`
}

// SuppressResponse reports when gating resumes
type SuppressResponse struct {
	SuppressUntil time.Time `json:"suppressUntil"`
}

// ModalResponse reports the open streams a modal command reached and the
// state each was left in
type ModalResponse struct {
	Streams int             `json:"streams"`
	States  []gate.Snapshot `json:"states"`
}

func modalResponse(controllers []*gate.Controller) ModalResponse {
	states := make([]gate.Snapshot, 0, len(controllers))
	for _, ctrl := range controllers {
		states = append(states, ctrl.Snapshot())
	}
	return ModalResponse{Streams: len(controllers), States: states}
}

// Check handles GET /api/gate/check?type&total
func (h *GateHandler) Check(w http.ResponseWriter, r *http.Request) {
	check, appErr := h.parseCheck(r)
	if appErr != nil {
		writeErrorResponse(w, r, appErr, h.logger)
		return
	}

	if middleware.IsAuthenticated(r) {
		respondJSON(w, http.StatusOK, domain.Open())
		return
	}

	decision := h.visitorGate(r).ShouldGate(r.Context(), check)
	respondJSON(w, http.StatusOK, decision)
}

// RecordView handles POST /api/gate/views. Signed-in visitors are not
// counted.
func (h *GateHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	var req GateViewRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeErrorResponse(w, r, appErr, h.logger)
		return
	}
	if !req.Type.Valid() {
		writeErrorResponse(w, r, errors.NewValidationError("type must be list or detail", nil), h.logger)
		return
	}

	g := h.visitorGate(r)
	if !middleware.IsAuthenticated(r) {
		g.RecordView(r.Context(), req.Type)
	}
	respondJSON(w, http.StatusOK, g.Counts(r.Context()))
}

// Suppress handles POST /api/gate/suppress. Prompts on the visitor's open
// streams are dismissed.
func (h *GateHandler) Suppress(w http.ResponseWriter, r *http.Request) {
	var req SuppressRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeErrorResponse(w, r, appErr, h.logger)
		return
	}
	if req.DurationMs < 0 {
		writeErrorResponse(w, r, errors.NewValidationError("duration_ms must not be negative", nil), h.logger)
		return
	}

	ctx := r.Context()
	until := h.visitorGate(r).Suppress(ctx, time.Duration(req.DurationMs)*time.Millisecond)
	for _, ctrl := range h.hub.Controllers(middleware.VisitorFromContext(ctx).ID) {
		ctrl.HideModal(ctx, 0)
	}

	respondJSON(w, http.StatusOK, SuppressResponse{SuppressUntil: until})
}

// ClearSuppression handles DELETE /api/gate/suppress
func (h *GateHandler) ClearSuppression(w http.ResponseWriter, r *http.Request) {
	h.visitorGate(r).ClearSuppression(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ShowModal handles POST /api/gate/modal, forcing the prompt open on every
// open stream of the visitor
func (h *GateHandler) ShowModal(w http.ResponseWriter, r *http.Request) {
	controllers := h.hub.Controllers(middleware.VisitorFromContext(r.Context()).ID)
	for _, ctrl := range controllers {
		ctrl.ShowModal()
	}
	respondJSON(w, http.StatusOK, modalResponse(controllers))
}

// HideModal handles DELETE /api/gate/modal
func (h *GateHandler) HideModal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	controllers := h.hub.Controllers(middleware.VisitorFromContext(ctx).ID)
	for _, ctrl := range controllers {
		ctrl.HideModal(ctx, 0)
	}
	respondJSON(w, http.StatusOK, modalResponse(controllers))
}

// Counts handles GET /api/gate/counts
func (h *GateHandler) Counts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.visitorGate(r).Counts(r.Context()))
}

// Reset handles DELETE /api/gate
func (h *GateHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.visitorGate(r).Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /api/gate/stream?type&total. A controller stays
// mounted for as long as the stream is open and every state change is sent
// as a "gate" event.
func (h *GateHandler) Stream(w http.ResponseWriter, r *http.Request) {
	check, appErr := h.parseCheck(r)
	if appErr != nil {
		writeErrorResponse(w, r, appErr, h.logger)
		return
	}

	ctx := r.Context()
	visitor := middleware.VisitorFromContext(ctx)

	client := h.hub.NewClient(visitor.ID)
	client.Controller = gate.NewController(
		h.gates.ForVisitor(visitor),
		h.broker.Source(visitor.ID, middleware.IsAuthenticated(r)),
		gate.ControllerOptions{
			Check: check,
			Listener: func(snap gate.Snapshot) {
				if !client.Send(snap) {
					h.logger.Warn("Dropping gate snapshot; outbound buffer full")
				}
			},
			Tracker: h.tracker,
		},
	)

	h.hub.Add(client)
	defer h.hub.Remove(client)

	client.Controller.Mount(ctx)
	h.hub.Serve(w, r, client)
}

func (h *GateHandler) visitorGate(r *http.Request) *gate.Gate {
	return h.gates.ForVisitor(middleware.VisitorFromContext(r.Context()))
}

// parseCheck reads type and total from the query. type defaults to the
// configured mode.
func (h *GateHandler) parseCheck(r *http.Request) (gate.Check, *errors.AppError) {
	q := r.URL.Query()

	check := gate.Check{Type: domain.VisitorType(h.gates.Config().Mode)}
	if raw := q.Get("type"); raw != "" {
		check.Type = domain.VisitorType(raw)
	}
	if !check.Type.Valid() {
		return gate.Check{}, errors.NewValidationError("type must be list or detail", nil)
	}

	if raw := q.Get("total"); raw != "" {
		total, err := strconv.Atoi(raw)
		if err != nil {
			return gate.Check{}, errors.NewValidationError("total must be an integer", nil)
		}
		check.TotalCount = &total
	}
	return check, nil
}
