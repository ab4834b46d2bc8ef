package gosm

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

/*
Produces sessions for one registry and one database. Obtain with `Build()`,
`BuildWithDB()` or `NewFactory()`.

A factory is safe for concurrent use. Every session gets its own connection
from the factory's `*sql.DB`, so sessions never share a connection handle.
*/
type Factory struct {
	registry    *Registry
	db          *sql.DB
	ownsDB      bool
	types       *Types
	placeholder Placeholder
	strict      bool
	log         *slog.Logger
	closeOnce   sync.Once
	closeErr    error
}

/*
Makes a factory over a registry and a database opened by the caller. The
caller keeps ownership of `db`: `Factory.Close()` doesn't close it. The
placeholder style is derived from the driver unless `WithPlaceholder()` is
given.
*/
func NewFactory(reg *Registry, db *sql.DB, opts ...Option) *Factory {
	o := makeOptions(opts)
	style := dbPlaceholder(db)
	if o.placeholder != nil {
		style = *o.placeholder
	}
	return newFactory(reg, db, false, style, o)
}

func newFactory(reg *Registry, db *sql.DB, ownsDB bool, style Placeholder, o options) *Factory {
	if reg == nil {
		reg = &Registry{statements: map[string]Statement{}}
	}
	return &Factory{
		registry:    reg,
		db:          db,
		ownsDB:      ownsDB,
		types:       o.types,
		placeholder: style,
		strict:      o.strict,
		log:         o.log,
	}
}

// Registry of statements this factory serves.
func (self *Factory) Registry() *Registry { return self.registry }

/*
Opens a session on a dedicated connection taken from the factory's database.
The session must be closed, which returns the connection. Fails with
`ErrConnection` if no connection can be obtained.
*/
func (self *Factory) OpenSession(ctx context.Context) (*Session, error) {
	if self.db == nil {
		return nil, ErrConnection.while(`opening session`).becausef(`factory has no database`)
	}

	conn, err := self.db.Conn(ctx)
	if err != nil {
		return nil, ErrConnection.while(`opening session`).because(errors.WithStack(err))
	}

	return &Session{factory: self, conn: conn, release: conn.Close}, nil
}

/*
Makes a session over a connection the caller manages, such as a `*sql.Tx`.
Closing this session marks it closed but leaves the connection alone.
*/
func (self *Factory) SessionOn(conn Preparer) *Session {
	return &Session{factory: self, conn: conn}
}

/*
Closes the database if the factory opened it (`Build()`). Databases passed in
by the caller are left open. Idempotent.
*/
func (self *Factory) Close() error {
	self.closeOnce.Do(func() {
		if self.ownsDB && self.db != nil {
			self.closeErr = self.db.Close()
		}
	})
	return self.closeErr
}
