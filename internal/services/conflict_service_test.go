package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"brokerbook/internal/models"
	"brokerbook/internal/websocket"

	"github.com/shopspring/decimal"
)

// queueTradeConflict imports the base tradebook and then a divergent T-1 row.
func queueTradeConflict(t *testing.T, f *fixture) models.ImportConflict {
	t.Helper()
	f.importTrades(t, 1, baseTradebook)
	f.importTrades(t, 1, tradebookHeader+"INFY,INE009A01021,2024-01-02,NSE,EQ,EQ,buy,false,120,10,T-1,O-1,2024-01-02T09:15:00\n")
	pending := f.conflicts.pending()
	if len(pending) != 1 {
		t.Fatalf("expected one pending conflict, got %d", len(pending))
	}
	return pending[0]
}

func TestResolveUseNewOverwritesTarget(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	f.resolver.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	resolved, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionUseNew, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != models.StatusResolvedUseNew || resolved.ResolvedBy == nil || *resolved.ResolvedBy != "user-1" {
		t.Fatalf("unexpected conflict: %#v", resolved)
	}
	if resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected resolved_at: %v", resolved.ResolvedAt)
	}
	if !f.trades.byID(*conflict.TargetTradeID).Quantity.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected quantity 120, got %s", f.trades.byID(*conflict.TargetTradeID).Quantity)
	}
	if stored, _ := f.conflicts.GetForUpdate(context.Background(), nil, conflict.ID); stored.Status != models.StatusResolvedUseNew {
		t.Fatalf("unexpected stored status %q", stored.Status)
	}
	last := f.audit.entries[len(f.audit.entries)-1]
	if last.action != "conflict.use_new" || last.entityType != "import_conflict" {
		t.Fatalf("unexpected audit entry: %#v", last)
	}
	event := f.hub.events[len(f.hub.events)-1]
	if event.Type != websocket.EventConflictResolved || event.AccountID != 1 {
		t.Fatalf("unexpected event: %#v", event)
	}
}

func TestResolveKeepExistingLeavesTargetUntouched(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	before := f.trades.byID(*conflict.TargetTradeID)

	resolved, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionKeepExisting, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != models.StatusResolvedKeepExisting {
		t.Fatalf("unexpected status %q", resolved.Status)
	}
	if after := f.trades.byID(*conflict.TargetTradeID); !reflect.DeepEqual(before, after) {
		t.Fatalf("stored trade changed: %#v -> %#v", before, after)
	}
}

func TestResolveIgnore(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	resolved, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionIgnore, nil)
	if err != nil || resolved.Status != models.StatusIgnored {
		t.Fatalf("unexpected result: %#v %v", resolved, err)
	}
}

func TestResolveManualEdit(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	edited := json.RawMessage(`{"symbol":"infy","trade_date":"2024-01-02T00:00:00Z","trade_type":"BUY","quantity":"110","price":"9.5"}`)

	resolved, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionManualEdit, edited)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != models.StatusResolvedManual {
		t.Fatalf("unexpected status %q", resolved.Status)
	}
	stored := f.trades.byID(*conflict.TargetTradeID)
	if !stored.Quantity.Equal(decimal.NewFromInt(110)) || !stored.Price.Equal(decimal.RequireFromString("9.5")) || stored.Symbol != "INFY" {
		t.Fatalf("unexpected stored trade: %#v", stored)
	}
}

func TestResolveManualEditRejectsInvalidPayload(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	edited := json.RawMessage(`{"symbol":"INFY","trade_date":"2024-01-02T00:00:00Z","trade_type":"buy","quantity":"-1","price":"10"}`)
	if _, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionManualEdit, edited); !errors.Is(err, models.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
	if len(f.conflicts.pending()) != 1 {
		t.Fatal("conflict must stay pending")
	}
}

func TestResolveValidatesBeforeReading(t *testing.T) {
	f := newFixture()
	if _, err := f.resolver.Resolve(context.Background(), "user-1", 1, models.ResolveAction("merge"), nil); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	for _, payload := range []string{"", "null", " {} "} {
		if _, err := f.resolver.Resolve(context.Background(), "user-1", 1, models.ActionManualEdit, json.RawMessage(payload)); !errors.Is(err, ErrEditPayloadRequired) {
			t.Fatalf("payload %q: expected ErrEditPayloadRequired, got %v", payload, err)
		}
	}
	if f.runner.calls != 0 {
		t.Fatalf("expected no transaction, got %d", f.runner.calls)
	}
}

func TestResolveUnknownConflict(t *testing.T) {
	f := newFixture()
	if _, err := f.resolver.Resolve(context.Background(), "user-1", 404, models.ActionIgnore, nil); !errors.Is(err, ErrConflictNotFound) {
		t.Fatalf("expected ErrConflictNotFound, got %v", err)
	}
}

func TestResolveTerminalConflictIsAbsorbing(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	if _, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionKeepExisting, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionUseNew, nil); !errors.Is(err, ErrConflictAlreadyResolved) {
		t.Fatalf("expected ErrConflictAlreadyResolved, got %v", err)
	}
	if !f.trades.byID(*conflict.TargetTradeID).Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatal("a resolved conflict must not mutate its target")
	}
}

func TestResolveDeletedTargetKeepsConflictPending(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	f.trades.delete(*conflict.TargetTradeID)

	if _, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionUseNew, nil); !errors.Is(err, ErrConflictTargetMissing) {
		t.Fatalf("expected ErrConflictTargetMissing, got %v", err)
	}
	if len(f.conflicts.pending()) != 1 {
		t.Fatal("conflict must stay pending")
	}

	// The foreign key is nulled when the row goes away.
	f.conflicts.rows[0].TargetTradeID = nil
	if _, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionUseNew, nil); !errors.Is(err, ErrConflictTargetMissing) {
		t.Fatalf("expected ErrConflictTargetMissing, got %v", err)
	}
	if _, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionIgnore, nil); err != nil {
		t.Fatalf("non-mutating actions still apply, got %v", err)
	}
}

func TestResolveRejectsOtherUsers(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	if _, err := f.resolver.Resolve(context.Background(), "user-2", conflict.ID, models.ActionUseNew, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.resolver.Delete(context.Background(), "user-2", conflict.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestResolveLedgerUseNew(t *testing.T) {
	f := newFixture()
	f.importLedger(t, 1, baseLedger)
	f.importLedger(t, 1, ledgerHeader+"DP charges,2024-01-15,,Book Voucher,17.70,,9982.30\n")
	conflict := f.conflicts.pending()[0]

	if _, err := f.resolver.Resolve(context.Background(), "user-1", conflict.ID, models.ActionUseNew, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := f.ledger.rows[1]
	if !entry.Debit.Equal(decimal.RequireFromString("17.70")) || !entry.NetBalance.Decimal.Equal(decimal.RequireFromString("9982.30")) {
		t.Fatalf("unexpected entry: %#v", entry)
	}
}

func TestListConflicts(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	ctx := context.Background()

	pending, err := f.resolver.List(ctx, "user-1", nil, "")
	if err != nil || len(pending) != 1 {
		t.Fatalf("unexpected pending list: %#v %v", pending, err)
	}
	if _, err := f.resolver.Resolve(ctx, "user-1", conflict.ID, models.ActionIgnore, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending, _ := f.resolver.List(ctx, "user-1", nil, ""); len(pending) != 0 {
		t.Fatalf("expected no pending conflicts, got %d", len(pending))
	}
	all, err := f.resolver.List(ctx, "user-1", nil, StatusAll)
	if err != nil || len(all) != 1 {
		t.Fatalf("unexpected full list: %#v %v", all, err)
	}
	ignored, err := f.resolver.List(ctx, "user-1", nil, "ignored")
	if err != nil || len(ignored) != 1 {
		t.Fatalf("unexpected ignored list: %#v %v", ignored, err)
	}
	if _, err := f.resolver.List(ctx, "user-1", nil, "done"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	other := int64(2)
	if _, err := f.resolver.List(ctx, "user-1", &other, StatusAll); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if rows, _ := f.resolver.List(ctx, "user-2", nil, StatusAll); len(rows) != 0 {
		t.Fatalf("user-2 must not see user-1 conflicts, got %d", len(rows))
	}
}

func TestDeleteConflict(t *testing.T) {
	f := newFixture()
	conflict := queueTradeConflict(t, f)
	if err := f.resolver.Delete(context.Background(), "user-1", conflict.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.conflicts.rows) != 0 {
		t.Fatal("expected conflict to be removed")
	}
	if !f.trades.byID(*conflict.TargetTradeID).Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatal("deleting a conflict must not touch its target")
	}
	if err := f.resolver.Delete(context.Background(), "user-1", conflict.ID); !errors.Is(err, ErrConflictNotFound) {
		t.Fatalf("expected ErrConflictNotFound, got %v", err)
	}
	if event := f.hub.events[len(f.hub.events)-1]; event.Type != websocket.EventConflictDeleted {
		t.Fatalf("unexpected event: %#v", event)
	}
}
