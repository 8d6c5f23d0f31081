package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/auth"
)

// readyWait bounds how long a submission waits for the store to come up.
const readyWait = 5 * time.Second

type submitReferralRequest struct {
	RefCode      string `json:"refCode"`
	ReferralCode string `json:"referralCode"`
}

func (req submitReferralRequest) code() string {
	if c := strings.TrimSpace(req.RefCode); c != "" {
		return c
	}
	return strings.TrimSpace(req.ReferralCode)
}

type submitReferralResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type referralResponse struct {
	ReferralCode    *string `json:"referralCode"`
	ReferredAt      *string `json:"referredAt"`
	HasReferralCode bool    `json:"hasReferralCode"`
}

// submitReferral attaches a referral code to the caller. A caller that is
// already attributed gets the same success response; the first code stays.
func (h *Handler) submitReferral(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	if !h.limiter.Allow(userID, h.submitRate) {
		h.metrics.RecordRateLimited()
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req submitReferralRequest
	if err := decodeJSON(r, &req); err != nil || req.code() == "" {
		writeError(w, http.StatusBadRequest, "referral code is required")
		return
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), readyWait)
	defer cancel()
	if err := h.ready.Wait(waitCtx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}

	_, created, err := h.svc.Attribute(r.Context(), userID, req.code())
	if err != nil {
		var verr *attribution.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "referral code is required")
			return
		}
		if errors.Is(err, attribution.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to store referral code")
		return
	}

	msg := "Referral code stored successfully"
	if !created {
		msg = "Referral code already recorded"
	}
	writeJSON(w, http.StatusOK, submitReferralResponse{Success: true, Message: msg})
}

// getReferral returns the caller's referral code, if any.
func (h *Handler) getReferral(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Lookup(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch referral data")
		return
	}

	resp := referralResponse{}
	if a != nil {
		code := a.ReferralCode
		resp.ReferralCode = &code
		resp.HasReferralCode = true
		if !a.AttributedAt.IsZero() {
			at := a.AttributedAt.UTC().Format(time.RFC3339)
			resp.ReferredAt = &at
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
