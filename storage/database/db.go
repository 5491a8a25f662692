package database

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/masomo-admin/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// mockable
var (
	gooseUp      = goose.Up
	gooseUpByOne = goose.UpByOne
	gooseUpTo    = goose.UpTo
	gooseDown    = goose.Down
	gooseDownTo  = goose.DownTo
	gooseRedo    = goose.Redo
	gooseVer     = goose.GetDBVersion
)

func open(dbName string, conf *core.Config) (*sqlx.DB, error) {
	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     url.UserPassword(conf.Database.User, conf.Database.Password),
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sqlx.Open(conf.Database.Engine, u.String())
}

// Open opens the application database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// CreateIfNotExist creates the application database through the maintenance database.
func CreateIfNotExist(conf *core.Config) error {
	db, err := open("postgres", conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	var exists bool
	if err = db.Get(&exists, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name); err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !exists {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %q", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// Migrate applies every pending migration.
func Migrate(db *sql.DB) error {
	if err := gooseUp(db, migrations, migrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// RunMigration runs a migration command (up, up-by-one, up-to VERSION, down, down-to VERSION,
// redo or version) and returns the resulting DB version.
func RunMigration(db *sql.DB, command string, version int64) (int64, error) {
	var err error
	switch command {
	case "up":
		err = gooseUp(db, migrations, migrationsDir)
	case "up-by-one":
		err = gooseUpByOne(db, migrations, migrationsDir)
	case "up-to":
		err = gooseUpTo(db, migrations, migrationsDir, version)
	case "down":
		err = gooseDown(db, migrations, migrationsDir)
	case "down-to":
		err = gooseDownTo(db, migrations, migrationsDir, version)
	case "redo":
		err = gooseRedo(db, migrations, migrationsDir)
	case "version":
	default:
		return 0, errors.Errorf("%q: no such command", command)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "running migration %s", command)
	}

	current, err := gooseVer(db)
	if err != nil {
		return 0, errors.Wrap(err, "getting DB version")
	}
	return current, nil
}
