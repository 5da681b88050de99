package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

type Tx interface {
	Execer
	Getter
}

// dateArg renders a calendar date for a DATE column, independent of the session time zone.
func dateArg(t time.Time) string {
	return t.Format("2006-01-02")
}

func itoa(value int) string {
	return strconv.Itoa(value)
}
