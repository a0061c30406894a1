package voice

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nightpage/oncall/internal/httpserver"
)

// WebhookHandler exposes the "/prompt" and "/acknowledge" endpoints a
// voice provider calls back into while walking a call's DTMF tree.
type WebhookHandler struct {
	getter Getter
	ack    Acknowledger
	urls   URLBuilder
}

// NewWebhookHandler creates a WebhookHandler. base is the externally
// reachable callback base URL used to build further redirect URLs.
func NewWebhookHandler(getter Getter, ack Acknowledger, base string) *WebhookHandler {
	return &WebhookHandler{getter: getter, ack: ack, urls: URLBuilder{Base: base}}
}

// Routes returns the chi.Router to mount at the voice provider's
// configured path.
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/prompt", h.handlePrompt)
	r.Post("/acknowledge", h.handleAcknowledge)
	return r
}

func (h *WebhookHandler) parseIdentifiers(r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	alertID, err1 := uuid.Parse(r.URL.Query().Get("alertId"))
	token, err2 := uuid.Parse(r.URL.Query().Get("token"))
	return alertID, token, err1 == nil && err2 == nil
}

func (h *WebhookHandler) handlePrompt(w http.ResponseWriter, r *http.Request) {
	alertID, token, ok := h.parseIdentifiers(r)
	if !ok {
		httpserver.RespondXML(w, http.StatusOK, missingEntityDocument().String())
		return
	}

	doc := Prompt(r.Context(), h.getter, h.urls, alertID, token)
	httpserver.RespondXML(w, http.StatusOK, doc.String())
}

func (h *WebhookHandler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alertID, token, ok := h.parseIdentifiers(r)
	if !ok {
		httpserver.RespondXML(w, http.StatusOK, missingEntityDocument().String())
		return
	}

	if err := r.ParseForm(); err != nil {
		httpserver.RespondXML(w, http.StatusOK, invalidInputDocument(h.urls.PromptURL(alertID, token)).String())
		return
	}
	digits := r.FormValue("Digits")

	doc := Acknowledge(r.Context(), h.ack, h.getter, h.urls, alertID, token, digits, time.Now().UTC())
	httpserver.RespondXML(w, http.StatusOK, doc.String())
}
