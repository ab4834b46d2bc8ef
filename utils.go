package gosm

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"reflect"
	"time"
)

/*
Database connection used by a `Session`. Satisfied by `*sql.Conn`, `*sql.DB`
and `*sql.Tx`; may be satisfied by other types.
*/
type Preparer interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

var timeRtype = reflect.TypeOf(time.Time{})

func copyIntSlice(vals []int) []int {
	out := make([]int, len(vals), len(vals))
	copy(out, vals)
	return out
}

func containsRtype(rtypes []reflect.Type, rtype reflect.Type) bool {
	for _, val := range rtypes {
		if val == rtype {
			return true
		}
	}
	return false
}

func distinctStrings(vals []string) []string {
	var out []string
	for _, val := range vals {
		if stringIndex(out, val) < 0 {
			out = append(out, val)
		}
	}
	return out
}

func stringIndex(strs []string, str string) int {
	for i := range strs {
		if strs[i] == str {
			return i
		}
	}
	return -1
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
