package gosm

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

/*
Unit of work over one connection. Statements are addressed by their registry
key `namespace.id`. Each select prepares and executes exactly one query; no
transactions are started.

A session is not safe for concurrent use. Use one session per goroutine.
*/
type Session struct {
	factory *Factory
	conn    Preparer
	release func() error
	closed  bool
}

/*
Executes the statement and returns the first row as a new record, such as
`*User`. A nil parameter runs the statement without binding anything.

Fails with `ErrNoSuchStatement` for an unknown key, and with `ErrNotFound` when
the query yields no rows. Rows after the first are never fetched.
*/
func (self *Session) SelectOne(ctx context.Context, key string, param interface{}) (interface{}, error) {
	recs, err := self.selectRecords(ctx, key, param, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound.while(`selecting one ` + key)
	}
	return recs[0], nil
}

/*
Executes the statement and returns every row as a new record, in result order.
Zero rows produce an empty slice, not an error.
*/
func (self *Session) SelectList(ctx context.Context, key string, param interface{}) ([]interface{}, error) {
	return self.selectRecords(ctx, key, param, 0)
}

/*
Releases the session's connection. Idempotent: closing again is a no-op. Any
select on a closed session fails with `ErrSessionClosed`.
*/
func (self *Session) Close() error {
	if self.closed {
		return nil
	}
	self.closed = true

	if self.release != nil {
		err := self.release()
		if err != nil {
			return ErrConnection.while(`closing session`).because(errors.WithStack(err))
		}
	}
	return nil
}

func (self *Session) selectRecords(ctx context.Context, key string, param interface{}, limit int) (out []interface{}, err error) {
	if self.closed {
		return nil, ErrSessionClosed.while(`selecting ` + key)
	}

	fac := self.factory

	stmt, err := fac.registry.Statement(key)
	if err != nil {
		return nil, err
	}

	rtype, err := fac.types.Lookup(stmt.ResultType)
	if err != nil {
		return nil, err
	}

	args, err := bindParams(stmt, param, fac.strict, fac.log)
	if err != nil {
		return nil, err
	}

	text := stmt.Render(fac.placeholder)
	fac.log.Debug(`executing statement`, `key`, key, `sql`, text, `args`, len(args))

	prepared, err := self.conn.PrepareContext(ctx, text)
	if err != nil {
		return nil, ErrExecution.while(`preparing ` + key).because(errors.WithStack(err))
	}
	defer prepared.Close()

	rows, err := prepared.QueryContext(ctx, args...)
	if err != nil {
		return nil, ErrExecution.while(`querying ` + key).because(errors.WithStack(err))
	}
	defer func() {
		cerr := rows.Close()
		if cerr != nil && err == nil {
			out, err = nil, ErrExecution.while(`closing rows of `+key).because(errors.WithStack(cerr))
		}
	}()

	return materialize(rows, rtype, limit, fac.log)
}

/*
Typed variant of `Session.SelectOne`. The statement's result type must produce
`*T` records, otherwise this fails with `ErrInstantiation`.

	user, err := gosm.SelectOne[User](ctx, sess, `users.byId`, 3)
*/
func SelectOne[T any](ctx context.Context, sess *Session, key string, param interface{}) (out T, err error) {
	rec, err := sess.SelectOne(ctx, key, param)
	if err != nil {
		return out, err
	}
	ptr, err := recordAs[T](rec)
	if err != nil {
		return out, err
	}
	return *ptr, nil
}

// Typed variant of `Session.SelectList`. See `SelectOne()`.
func SelectList[T any](ctx context.Context, sess *Session, key string, param interface{}) ([]T, error) {
	recs, err := sess.SelectList(ctx, key, param)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		ptr, err := recordAs[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *ptr)
	}
	return out, nil
}

func recordAs[T any](rec interface{}) (*T, error) {
	ptr, ok := rec.(*T)
	if !ok {
		return nil, ErrInstantiation.while(`converting record`).because(
			fmt.Errorf(`expected record of type %T, got %T`, ptr, rec))
	}
	return ptr, nil
}
