package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"brokerbook/internal/auth"
	"brokerbook/internal/config"
	"brokerbook/internal/csvimport"
	"brokerbook/internal/models"
	"brokerbook/internal/portfolio"
	"brokerbook/internal/services"
	"brokerbook/internal/websocket"

	"github.com/rs/zerolog"
)

const testSecret = "secret"

type stubAccountService struct {
	createFn func(ctx context.Context, userID, name string) (models.Account, error)
	listFn   func(ctx context.Context, userID string) ([]models.Account, error)
	getFn    func(ctx context.Context, userID string, accountID int64) (models.Account, error)
}

func (s stubAccountService) Create(ctx context.Context, userID, name string) (models.Account, error) {
	if s.createFn == nil {
		return models.Account{}, nil
	}
	return s.createFn(ctx, userID, name)
}

func (s stubAccountService) List(ctx context.Context, userID string) ([]models.Account, error) {
	if s.listFn == nil {
		return []models.Account{}, nil
	}
	return s.listFn(ctx, userID)
}

func (s stubAccountService) Get(ctx context.Context, userID string, accountID int64) (models.Account, error) {
	if s.getFn == nil {
		return models.Account{}, nil
	}
	return s.getFn(ctx, userID, accountID)
}

type stubImportService struct {
	tradesFn func(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (services.ImportResult, error)
	ledgerFn func(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (services.ImportResult, error)
}

func (s stubImportService) ImportTrades(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (services.ImportResult, error) {
	if s.tradesFn == nil {
		return services.ImportResult{}, nil
	}
	return s.tradesFn(ctx, userID, accountID, rows)
}

func (s stubImportService) ImportLedger(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (services.ImportResult, error) {
	if s.ledgerFn == nil {
		return services.ImportResult{}, nil
	}
	return s.ledgerFn(ctx, userID, accountID, rows)
}

type stubConflictService struct {
	listFn    func(ctx context.Context, userID string, accountID *int64, status string) ([]models.ImportConflict, error)
	resolveFn func(ctx context.Context, userID string, conflictID int64, action models.ResolveAction, edited json.RawMessage) (models.ImportConflict, error)
	deleteFn  func(ctx context.Context, userID string, conflictID int64) error
}

func (s stubConflictService) List(ctx context.Context, userID string, accountID *int64, status string) ([]models.ImportConflict, error) {
	if s.listFn == nil {
		return []models.ImportConflict{}, nil
	}
	return s.listFn(ctx, userID, accountID, status)
}

func (s stubConflictService) Resolve(ctx context.Context, userID string, conflictID int64, action models.ResolveAction, edited json.RawMessage) (models.ImportConflict, error) {
	if s.resolveFn == nil {
		return models.ImportConflict{}, nil
	}
	return s.resolveFn(ctx, userID, conflictID, action, edited)
}

func (s stubConflictService) Delete(ctx context.Context, userID string, conflictID int64) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, conflictID)
}

type stubPortfolioService struct {
	statsFn   func(ctx context.Context, userID string, scope services.Scope, includeClosed bool) (portfolio.Stats, error)
	summaryFn func(ctx context.Context, userID string, scope services.Scope, from, to *time.Time) ([]portfolio.LedgerSummary, error)
}

func (s stubPortfolioService) GetStats(ctx context.Context, userID string, scope services.Scope, includeClosed bool) (portfolio.Stats, error) {
	if s.statsFn == nil {
		return portfolio.Stats{}, nil
	}
	return s.statsFn(ctx, userID, scope, includeClosed)
}

func (s stubPortfolioService) GetLedgerSummary(ctx context.Context, userID string, scope services.Scope, from, to *time.Time) ([]portfolio.LedgerSummary, error) {
	if s.summaryFn == nil {
		return []portfolio.LedgerSummary{}, nil
	}
	return s.summaryFn(ctx, userID, scope, from, to)
}

type testDeps struct {
	accounts  stubAccountService
	imports   stubImportService
	conflicts stubConflictService
	portfolio stubPortfolioService
	maxUpload int64
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		JWTSecret:      testSecret,
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		MaxUploadBytes: 1 << 20,
	}
	if deps.maxUpload > 0 {
		cfg.MaxUploadBytes = deps.maxUpload
	}
	log := zerolog.Nop()
	return New(cfg, log, deps.accounts, deps.imports, deps.conflicts, deps.portfolio, websocket.NewHub(log))
}

func testToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// serve routes a request for userID through the full router. An empty userID sends no
// Authorization header.
func serve(t *testing.T, h *Handler, method, target, contentType string, body io.Reader, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+testToken(t, userID))
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return payload["error"]
}

func stringPtr(value string) *string {
	return &value
}
