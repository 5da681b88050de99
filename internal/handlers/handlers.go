package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"brokerbook/internal/csvimport"
	"brokerbook/internal/models"
	"brokerbook/internal/services"
	"brokerbook/internal/validator"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

var errInvalidID = errors.New("invalid id")

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

var badRequestErrors = []error{
	csvimport.ErrMalformedFile,
	csvimport.ErrEmptyFile,
	models.ErrInvalidSnapshot,
	models.ErrSnapshotKind,
	services.ErrInvalidAccountName,
	services.ErrInvalidAction,
	services.ErrEditPayloadRequired,
	services.ErrInvalidStatus,
	services.ErrInvalidScope,
	validator.ErrInvalidDate,
	validator.ErrInvalidDateRange,
	errInvalidID,
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrAccountNotFound), errors.Is(err, services.ErrConflictNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflictAlreadyResolved), errors.Is(err, services.ErrConflictTargetMissing):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// respondServiceError maps a service error to its status. Internal errors are logged and
// hidden from the caller.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", chimiddleware.GetReqID(r.Context())).Msg(action)
		respondError(w, status, action)
		return
	}
	respondError(w, status, err.Error())
}

func pathID(r *http.Request) (int64, error) {
	return parseID(chi.URLParam(r, "id"))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}
