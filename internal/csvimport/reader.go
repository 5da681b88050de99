// Package csvimport reads broker tradebook and ledger exports into validated row
// snapshots.
package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var (
	ErrMalformedFile = errors.New("malformed csv file")
	ErrEmptyFile     = errors.New("csv file has no data rows")
)

const sniffSize = 1024

var (
	TradebookColumns = []string{
		"symbol", "isin", "trade_date", "exchange", "segment", "series", "trade_type",
		"auction", "quantity", "price", "trade_id", "order_id", "order_execution_time",
	}
	LedgerColumns = []string{
		"particular", "posting_date", "cost_center", "voucher_type", "debit", "credit", "net_balance",
	}

	tradebookRequired = []string{"symbol", "trade_date", "trade_type", "quantity", "price"}
	ledgerRequired    = []string{"posting_date", "debit", "credit"}
)

// Row is one data record keyed by lower-cased header name.
type Row struct {
	Line   int
	fields map[string]string
}

func NewRow(line int, fields map[string]string) Row {
	normalized := make(map[string]string, len(fields))
	for key, value := range fields {
		normalized[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return Row{Line: line, fields: normalized}
}

// Get returns the trimmed value of column, or "" when the column is absent.
func (r Row) Get(column string) string {
	return r.fields[column]
}

func ReadTradebook(r io.Reader) ([]Row, error) {
	return Read(r, tradebookRequired)
}

func ReadLedger(r io.Reader) ([]Row, error) {
	return Read(r, ledgerRequired)
}

// Read parses a header-keyed CSV. Header names are matched case-insensitively and extra
// columns are ignored. Binary content, a missing required column, a syntax error or the
// absence of data rows fail the whole file.
func Read(r io.Reader, required []string) ([]Row, error) {
	buffered := bufio.NewReaderSize(r, sniffSize)
	head, err := buffered.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if len(bytes.TrimSpace(head)) == 0 {
		return nil, ErrEmptyFile
	}
	if isBinaryContent(head, len(head) == sniffSize) {
		return nil, fmt.Errorf("%w: file appears to be binary, not text/csv", ErrMalformedFile)
	}

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedFile, err)
	}
	columns := make([]string, len(header))
	present := map[string]bool{}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		columns[i] = strings.ToLower(strings.TrimSpace(name))
		present[columns[i]] = true
	}
	var missing []string
	for _, column := range required {
		if !present[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrMalformedFile, strings.Join(missing, ", "))
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		line, _ := reader.FieldPos(0)
		fields := make(map[string]string, len(columns))
		blank := true
		for i, column := range columns {
			if i >= len(record) || column == "" {
				continue
			}
			value := strings.TrimSpace(record[i])
			if value != "" {
				blank = false
			}
			fields[column] = value
		}
		if blank {
			continue
		}
		rows = append(rows, Row{Line: line, fields: fields})
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// isBinaryContent reports null bytes or invalid UTF-8. A truncated sample may end in
// the middle of a multi-byte rune, which is not held against it.
func isBinaryContent(buf []byte, truncated bool) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return true
	}
	if truncated {
		for i := 0; i < utf8.UTFMax-1 && len(buf) > 0 && !utf8.FullRune(tail(buf)); i++ {
			buf = buf[:len(buf)-1]
		}
	}
	return !utf8.Valid(buf)
}

func tail(buf []byte) []byte {
	start := len(buf) - utf8.UTFMax
	if start < 0 {
		start = 0
	}
	for i := len(buf) - 1; i >= start; i-- {
		if utf8.RuneStart(buf[i]) {
			return buf[i:]
		}
	}
	return buf[start:]
}
