// Command importer loads a tradebook or ledger CSV into an account from the shell, with
// the same reconciliation the API applies.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"brokerbook/internal/config"
	"brokerbook/internal/csvimport"
	"brokerbook/internal/db"
	"brokerbook/internal/logging"
	"brokerbook/internal/services"
	"brokerbook/internal/store"
	"brokerbook/internal/websocket"

	"github.com/spf13/pflag"
)

func main() {
	userID := pflag.StringP("user", "u", "", "id of the user that owns the account")
	accountID := pflag.Int64P("account", "a", 0, "account to import into")
	kind := pflag.StringP("kind", "k", "tradebook", "file kind: tradebook or ledger")
	file := pflag.StringP("file", "f", "", "path to the csv export")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: importer --user ID --account N --kind tradebook|ledger --file export.csv\n\n")
		fmt.Fprintf(os.Stderr, "tradebook columns: %s\n", strings.Join(csvimport.TradebookColumns, ","))
		fmt.Fprintf(os.Stderr, "ledger columns:    %s\n\n", strings.Join(csvimport.LedgerColumns, ","))
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *userID == "" || *accountID <= 0 || *file == "" {
		pflag.Usage()
		os.Exit(2)
	}

	var read func(io.Reader) ([]csvimport.Row, error)
	switch *kind {
	case "tradebook":
		read = csvimport.ReadTradebook
	case "ledger":
		read = csvimport.ReadLedger
	default:
		pflag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: true})

	source, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open file")
	}
	rows, err := read(source)
	_ = source.Close()
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("failed to read file")
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	importService := services.NewImportService(
		db.NewTxRunner(database, log),
		store.NewAccountStore(database),
		store.NewTradeStore(database),
		store.NewLedgerStore(database),
		store.NewConflictStore(database),
		store.NewAuditStore(database),
		websocket.NewHub(log),
		log,
	)

	ctx := context.Background()
	var result services.ImportResult
	if *kind == "tradebook" {
		result, err = importService.ImportTrades(ctx, *userID, *accountID, rows)
	} else {
		result, err = importService.ImportLedger(ctx, *userID, *accountID, rows)
	}
	if err != nil {
		log.Fatal().Err(err).Int64("account_id", *accountID).Msg("import failed")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(result)
}
