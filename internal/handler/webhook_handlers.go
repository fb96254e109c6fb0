package handler

import (
	"net/http"

	"github.com/mtlprog/commandcenter/internal/handler/dto"
)

// handleWebhook turns an authenticated webhook call into a run. The trigger
// is resolved before the signature is checked, so unknown triggers are 404.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	triggerID, ok := extractID(w, r, "trigger")
	if !ok {
		return
	}

	trigger, err := h.webhookService.Authenticate(r.Context(), scope, triggerID, r.Header.Get(SignatureHeader))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	body := map[string]any{}
	if !decodeJSON(w, r, &body, true) {
		return
	}

	detail, err := h.webhookService.Trigger(r.Context(), scope, trigger, body)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusCreated, dto.WebhookRunResponse{
		RunID:  detail.Run.ID,
		Status: string(detail.Run.Status),
	})
}
