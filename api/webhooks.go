package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/xraph/referral/ingest"
)

// webhook verifies and processes one provider delivery. The provider
// retries anything that is not a 2xx, so only store failures are worth a
// retry status; rejected deliveries get a 400.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, ingest.ReasonMalformedPayload.String(), http.StatusBadRequest)
		return
	}

	if _, err := h.svc.Ingest(r.Context(), raw, r.Header); err != nil {
		if rej, ok := ingest.AsRejection(err); ok {
			http.Error(w, rej.Reason.String(), http.StatusBadRequest)
			return
		}
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
