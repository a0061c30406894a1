package oncall

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nightpage/oncall/internal/httpserver"
)

// Handler exposes the dashboard REST API over a Service: raising alerts,
// listing/reading them, and acknowledging by responder.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler over svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns the chi.Router to mount at the API's alerts path.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleRaise)
	r.Get("/", h.handleList)
	r.Get("/{alertID}", h.handleGet)
	r.Post("/{alertID}/acknowledge", h.handleAcknowledge)
	return r
}

type raiseRequest struct {
	Message  string   `json:"message" validate:"required"`
	Priority Priority `json:"priority" validate:"required,oneof=low medium high critical"`
}

func (h *Handler) handleRaise(w http.ResponseWriter, r *http.Request) {
	var req raiseRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	alert, err := h.svc.Raise(r.Context(), req.Message, req.Priority, time.Now().UTC())
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusCreated, alert.Redacted())
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var status *Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := Status(raw)
		status = &s
	}

	alerts, err := h.svc.List(r.Context(), status)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	redacted := make([]Alert, len(alerts))
	for i, a := range alerts {
		redacted[i] = a.Redacted()
	}
	httpserver.Respond(w, http.StatusOK, redacted)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "alertID must be a UUID")
		return
	}

	alert, ok, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "alert not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, alert.Redacted())
}

type acknowledgeRequest struct {
	ResponderID uuid.UUID `json:"responder_id" validate:"required"`
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "alertID must be a UUID")
		return
	}

	var req acknowledgeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := h.svc.AcknowledgeByResponder(r.Context(), alertID, req.ResponderID, time.Now().UTC())
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	switch outcome.Result {
	case AckAcknowledged, AckAlreadyAcknowledged:
		httpserver.Respond(w, http.StatusOK, outcome)
	default:
		httpserver.RespondError(w, http.StatusNotFound, string(outcome.Result), "alert or assignment not found")
	}
}
