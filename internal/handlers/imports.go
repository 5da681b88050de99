package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"brokerbook/internal/csvimport"
	"brokerbook/internal/middleware"
	"brokerbook/internal/services"
)

const uploadField = "file"

var errMissingUpload = errors.New("missing csv upload: send a multipart \"file\" field or a text/csv body")

type importFunc func(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (services.ImportResult, error)

func (h *Handler) ImportTradebook(w http.ResponseWriter, r *http.Request) {
	h.handleImport(w, r, csvimport.ReadTradebook, h.imports.ImportTrades)
}

func (h *Handler) ImportLedger(w http.ResponseWriter, r *http.Request) {
	h.handleImport(w, r, csvimport.ReadLedger, h.imports.ImportLedger)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request, read func(io.Reader) ([]csvimport.Row, error), run importFunc) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accountID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	payload, err := readUpload(r)
	if err != nil {
		if errors.Is(err, errMissingUpload) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondServiceError(w, r, err, "unable to read upload")
		return
	}
	rows, err := read(bytes.NewReader(payload))
	if err != nil {
		h.respondServiceError(w, r, err, "unable to read upload")
		return
	}

	result, err := run(r.Context(), userID, accountID, rows)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to import file")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// readUpload returns the file part of a multipart form, or the raw body for any other
// content type.
func readUpload(r *http.Request) ([]byte, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return readAll(r.Body)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", csvimport.ErrMalformedFile, err)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errMissingUpload
		}
		if err != nil {
			return readError(err)
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		defer part.Close()
		return readAll(part)
	}
}

func readAll(r io.Reader) ([]byte, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return readError(err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errMissingUpload
	}
	return payload, nil
}

func readError(err error) ([]byte, error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", csvimport.ErrMalformedFile, err)
}
