package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"podium/internal/auth"
	mw "podium/internal/http/middleware"
	"podium/internal/registration"
)

type Registrar interface {
	Register(ctx context.Context, userID, competitionID, idemKey string) (registration.Result, error)
}

type RegistrationHandler struct {
	Svc Registrar
}

// Register handles POST /competitions/{id}/register. A retried request
// carrying the same Idempotency-Key gets the original registration back
// with 200 instead of 201.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	compID := strings.TrimSpace(chi.URLParam(r, "id"))
	if compID == "" {
		writeError(w, http.StatusBadRequest, "competition id required")
		return
	}

	res, err := h.Svc.Register(r.Context(), uid, compID, r.Header.Get(mw.IdempotencyKeyHeader))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			hlog.FromRequest(r).Error().Err(err).Str("competition", compID).Msg("register failed")
			writeError(w, status, "server error")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registration.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registration.ErrDeadlineExceeded):
		return http.StatusBadRequest
	case errors.Is(err, registration.ErrCapacityExceeded),
		errors.Is(err, registration.ErrAlreadyRegistered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
