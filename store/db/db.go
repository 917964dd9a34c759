package db

import (
	"github.com/pkg/errors"

	"github.com/convoflow/convoflow/internal/profile"
	"github.com/convoflow/convoflow/store"
	"github.com/convoflow/convoflow/store/db/postgres"
	"github.com/convoflow/convoflow/store/db/sqlite"
)

// NewDBDriver creates a new db driver based on profile.
// PostgreSQL is the production driver; SQLite is for development and testing.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
