package gosm

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Data-source setting names recognized in `<dataSource>`.
const (
	SettingDriver      = "driver"
	SettingUrl         = "url"
	SettingPlaceholder = "placeholder"
)

// Driver used when the data source doesn't name one. Registered by
// "github.com/lib/pq".
const DefaultDriver = "postgres"

/*
Opens and verifies the connection described by data-source settings. The
`driver` setting is a `database/sql` driver name; the `url` setting is passed
to it as the DSN.
*/
func openDataSource(ctx context.Context, settings map[string]string) (*sql.DB, string, error) {
	driverName := settings[SettingDriver]
	if driverName == "" {
		driverName = DefaultDriver
	}

	url := settings[SettingUrl]
	if url == "" {
		return nil, "", ErrConfiguration.while(`reading data source`).becausef(`missing %q setting`, SettingUrl)
	}

	db, err := sql.Open(driverName, url)
	if err != nil {
		return nil, "", ErrConnection.while(`opening data source`).because(errors.WithStack(err))
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, "", ErrConnection.while(`connecting to data source`).because(errors.WithStack(err))
	}

	return db, driverName, nil
}

/*
Placeholder style for a data source: an explicit `placeholder` setting wins,
otherwise it's derived from the driver name.
*/
func settingsPlaceholder(settings map[string]string, driverName string) (Placeholder, error) {
	name, ok := settings[SettingPlaceholder]
	if !ok {
		return PlaceholderFor(driverName), nil
	}
	style, ok := parsePlaceholder(name)
	if !ok {
		return 0, ErrConfiguration.while(`reading data source`).becausef(`unknown placeholder style %q`, name)
	}
	return style, nil
}

// Placeholder style for a connection supplied by the caller.
func dbPlaceholder(db *sql.DB) Placeholder {
	if db == nil {
		return PlaceholderQuestion
	}
	if _, ok := db.Driver().(*pq.Driver); ok {
		return PlaceholderDollar
	}
	return PlaceholderQuestion
}
