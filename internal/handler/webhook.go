package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/mnamhq/channelsync/internal/dto"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/service"
)

// DefaultWebhookTokenHeader carries the shared webhook secret.
const DefaultWebhookTokenHeader = "X-MNAM-Webhook-Token"

const defaultWebhookMaxBody = 256 * 1024

// WebhookHandler ingests provider deliveries. It stores and answers;
// all domain work happens later in the webhook worker, so the provider
// sees a fast 200 even for payloads that will end up quarantined.
type WebhookHandler struct {
	receiver    *service.WebhookReceiver
	tokenHeader string
	maxBody     int64
}

func NewWebhookHandler(receiver *service.WebhookReceiver, tokenHeader string, maxBody int64) *WebhookHandler {
	if tokenHeader == "" {
		tokenHeader = DefaultWebhookTokenHeader
	}
	if maxBody <= 0 {
		maxBody = defaultWebhookMaxBody
	}
	return &WebhookHandler{
		receiver:    receiver,
		tokenHeader: tokenHeader,
		maxBody:     maxBody,
	}
}

// Receive handles POST /webhooks/channex.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		respondError(w, r, http.StatusBadRequest, "Could not read request body")
		return
	}
	if len(body) == 0 {
		respondError(w, r, http.StatusBadRequest, "Empty request body")
		return
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	result, err := h.receiver.Receive(r.Context(), service.ReceiveInput{
		Provider:  model.ProviderChannex,
		Body:      body,
		Headers:   headers,
		Signature: r.Header.Get(h.tokenHeader),
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to store webhook")
		return
	}
	respondJSON(w, http.StatusOK, dto.WebhookAckResponse{
		OK:               true,
		EventID:          result.Event.ID.String(),
		AlreadyProcessed: result.AlreadyProcessed,
	})
}
