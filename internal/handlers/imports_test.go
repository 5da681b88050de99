package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"brokerbook/internal/csvimport"
	"brokerbook/internal/services"
)

const tradebookCSV = "symbol,isin,trade_date,exchange,segment,series,trade_type,auction,quantity,price,trade_id,order_id,order_execution_time\n" +
	"INFY,INE009A01021,2024-01-15,NSE,EQ,EQ,buy,false,10,1500.50,T1,O1,2024-01-15T09:15:00\n" +
	"TCS,INE467B01029,2024-01-16,NSE,EQ,EQ,sell,false,5,3600,T2,O2,2024-01-16T10:00:00\n"

const ledgerCSV = "particular,posting_date,cost_center,voucher_type,debit,credit,net_balance\n" +
	"Funds added,2024-01-01,,Bank Receipt,10000,0,10000\n"

func recordingImports(gotRows *[]csvimport.Row, gotAccount *int64) stubImportService {
	record := func(_ context.Context, _ string, accountID int64, rows []csvimport.Row) (services.ImportResult, error) {
		*gotRows = rows
		*gotAccount = accountID
		return services.ImportResult{BatchID: "batch-1", Imported: len(rows), Total: len(rows), Errors: []string{}}, nil
	}
	return stubImportService{tradesFn: record, ledgerFn: record}
}

func TestImportTradebookRawBody(t *testing.T) {
	var rows []csvimport.Row
	var accountID int64
	handler := newTestHandler(testDeps{imports: recordingImports(&rows, &accountID)})

	rr := serve(t, handler, http.MethodPost, "/accounts/4/imports/tradebook", "text/csv", strings.NewReader(tradebookCSV), "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if accountID != 4 || len(rows) != 2 || rows[1].Get("symbol") != "TCS" {
		t.Fatalf("unexpected rows for account %d: %#v", accountID, rows)
	}
	var result services.ImportResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.BatchID != "batch-1" || result.Imported != 2 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestImportLedgerMultipart(t *testing.T) {
	var rows []csvimport.Row
	var accountID int64
	handler := newTestHandler(testDeps{imports: recordingImports(&rows, &accountID)})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("note", "january"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := writer.CreateFormFile("file", "ledger.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(ledgerCSV)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	rr := serve(t, handler, http.MethodPost, "/accounts/9/imports/ledger", writer.FormDataContentType(), &body, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if accountID != 9 || len(rows) != 1 || rows[0].Get("voucher_type") != "Bank Receipt" {
		t.Fatalf("unexpected rows for account %d: %#v", accountID, rows)
	}
}

func TestImportMultipartWithoutFile(t *testing.T) {
	handler := newTestHandler(testDeps{})
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("note", "nothing here")
	_ = writer.Close()

	rr := serve(t, handler, http.MethodPost, "/accounts/1/imports/ledger", writer.FormDataContentType(), &body, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestImportRejectsBadFiles(t *testing.T) {
	handler := newTestHandler(testDeps{imports: stubImportService{
		tradesFn: func(context.Context, string, int64, []csvimport.Row) (services.ImportResult, error) {
			t.Error("import must not run for a rejected file")
			return services.ImportResult{}, nil
		},
	}})

	cases := map[string]string{
		"empty":          "",
		"header only":    "symbol,trade_date,trade_type,quantity,price\n",
		"missing column": "symbol,trade_date\nINFY,2024-01-01\n",
		"binary":         "\x00\x01\x02\x03binary",
	}
	for name, payload := range cases {
		rr := serve(t, handler, http.MethodPost, "/accounts/1/imports/tradebook", "text/csv", strings.NewReader(payload), "user-1")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestImportRejectsOversizedUpload(t *testing.T) {
	handler := newTestHandler(testDeps{maxUpload: 64})
	rr := serve(t, handler, http.MethodPost, "/accounts/1/imports/tradebook", "text/csv", strings.NewReader(tradebookCSV), "user-1")
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestImportMapsServiceErrors(t *testing.T) {
	cases := map[error]int{
		services.ErrForbidden:       http.StatusForbidden,
		services.ErrAccountNotFound: http.StatusNotFound,
		errors.New("db down"):       http.StatusInternalServerError,
	}
	for serviceErr, want := range cases {
		handler := newTestHandler(testDeps{imports: stubImportService{
			tradesFn: func(context.Context, string, int64, []csvimport.Row) (services.ImportResult, error) {
				return services.ImportResult{}, serviceErr
			},
		}})
		rr := serve(t, handler, http.MethodPost, "/accounts/1/imports/tradebook", "text/csv", strings.NewReader(tradebookCSV), "user-1")
		if rr.Code != want {
			t.Fatalf("%v: expected %d, got %d", serviceErr, want, rr.Code)
		}
	}
}
