package gosm

import (
	"database/sql"
	"log/slog"

	"github.com/pkg/errors"
)

/*
Per-query mapping from result columns to fields, prepared once from the column
list and reused for every row. A column without a setter is skipped.
*/
type tColumnPlan struct {
	col    string
	key    string
	setter fieldSetter
	ok     bool
}

/*
Decodes rows into new records of the given type, in cursor order. Stops after
`limit` records if `limit > 0`; the remaining rows are never fetched. Zero rows
produce an empty result, not an error.

For every row, a new record is allocated via `ResultType.New()`, then each
mapped column is reconciled with its field (see `Value.reconcile`) and
assigned. Columns that are reserved, have no matching field, are null, or
don't fit the field are skipped; skipping is never an error.
*/
func materialize(rows *sql.Rows, rtype *ResultType, limit int, log *slog.Logger) ([]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, ErrExecution.while(`getting columns`).because(errors.WithStack(err))
	}

	plan := prepareColumnPlan(cols, rtype, log)
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	out := []interface{}{}

	for rows.Next() {
		rec, err := rtype.New()
		if err != nil {
			return nil, err
		}

		err = rows.Scan(ptrs...)
		if err != nil {
			return nil, ErrExecution.while(`scanning row`).because(errors.WithStack(err))
		}

		decodeRow(rec, plan, vals, log)
		out = append(out, rec)

		if limit > 0 && len(out) >= limit {
			break
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, ErrExecution.while(`iterating rows`).because(errors.WithStack(err))
	}
	return out, nil
}

func prepareColumnPlan(cols []string, rtype *ResultType, log *slog.Logger) []tColumnPlan {
	plan := make([]tColumnPlan, len(cols))

	for i, col := range cols {
		plan[i].col = col

		if isReservedColumn(col) {
			log.Debug(`skipping column`, `column`, col, `reason`, `reserved name`)
			continue
		}

		key := ColumnFieldName(col)
		setter, ok := rtype.field(key)
		if !ok {
			log.Debug(`skipping column`, `column`, col, `reason`, `no field `+key+` in `+rtype.Name())
			continue
		}

		plan[i] = tColumnPlan{col: col, key: key, setter: setter, ok: true}
	}
	return plan
}

func decodeRow(rec interface{}, plan []tColumnPlan, vals []interface{}, log *slog.Logger) {
	for i, colPlan := range plan {
		if !colPlan.ok {
			continue
		}

		raw := ValueOf(vals[i])
		if raw.Kind == KindNull {
			continue
		}

		val, ok := raw.reconcile(colPlan.setter.kind, colPlan.setter.elem)
		if !ok || !colPlan.setter.set(rec, val) {
			log.Debug(`skipping column`, `column`, colPlan.col,
				`reason`, `value of kind `+raw.Kind.String()+` doesn't fit field `+colPlan.key)
		}
	}
}
