package gosm

import (
	"context"
	"database/sql"
	"io"
)

/*
Reads a configuration document, loads every mapper it references, and connects
to its data source. The returned factory owns the connection pool; close it
with `Factory.Close()`.

Fails with `ErrConfiguration` if the document or a mapper is malformed, and
with `ErrConnection` if the data source can't be reached. Nothing is returned
on failure.

Example:

	file, err := os.Open(`config.xml`)
	if err != nil {
		return err
	}
	defer file.Close()

	factory, err := gosm.Build(ctx, file,
		gosm.WithTypes(gosm.NewTypes(gosm.StructType[User]("User"))),
	)
	if err != nil {
		return err
	}
	defer factory.Close()
*/
func Build(ctx context.Context, reader io.Reader, opts ...Option) (*Factory, error) {
	o := makeOptions(opts)

	root, err := ParseDocument(reader)
	if err != nil {
		return nil, err
	}

	reg, err := BuildRegistry(root, o.resolver)
	if err != nil {
		return nil, err
	}
	logStatements(o, reg)

	driverName := reg.dataSource[SettingDriver]
	if driverName == "" {
		driverName = DefaultDriver
	}

	style, err := settingsPlaceholder(reg.dataSource, driverName)
	if err != nil {
		return nil, err
	}
	if o.placeholder != nil {
		style = *o.placeholder
	}

	db, driverName, err := openDataSource(ctx, reg.dataSource)
	if err != nil {
		return nil, err
	}

	o.log.Info(`session factory ready`, `statements`, reg.Len(), `driver`, driverName)
	return newFactory(reg, db, true, style, o), nil
}

// Makes a factory over a database opened by the caller, with mapper documents
// found by expanding a search path through the resolver (see `WithResolver()`),
// for example `mapper/**/*.xml`. Data-source settings aren't read; the caller
// keeps ownership of `db`.
func BuildWithDB(db *sql.DB, pattern string, opts ...Option) (*Factory, error) {
	o := makeOptions(opts)

	names, err := o.resolver.Glob(pattern)
	if err != nil {
		return nil, ErrConfiguration.while(`resolving mappers`).because(err)
	}

	roots := make([]*Node, 0, len(names))
	for _, name := range names {
		root, err := parseResource(o.resolver, name)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}

	reg, err := BuildMapperRegistry(roots)
	if err != nil {
		return nil, err
	}
	logStatements(o, reg)

	style := dbPlaceholder(db)
	if o.placeholder != nil {
		style = *o.placeholder
	}

	o.log.Info(`session factory ready`, `statements`, reg.Len(), `mappers`, len(roots))
	return newFactory(reg, db, false, style, o), nil
}

func logStatements(o options, reg *Registry) {
	for _, key := range reg.Keys() {
		stmt := reg.statements[key]
		o.log.Debug(`registered statement`, `key`, key, `params`, stmt.Params)
	}
}
