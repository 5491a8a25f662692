package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
	"github.com/trezcool/masomo-admin/storage/database"
)

// PrepareDB opens and migrates the test database, then empties it.
// The test is skipped unless the postgres storage is configured (ex: ENV=TEST TEST_STORAGE=postgres).
func PrepareDB(t *testing.T) *sqlx.DB {
	conf := core.NewConfig()
	if conf.Storage != "postgres" {
		t.Skip("postgres storage not configured")
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	if _, err := db.Exec("TRUNCATE TABLE feature_rule"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

// CreateRule stores an enabled global rule, overridden by opts.
func CreateRule(
	t *testing.T,
	repo featureswitch.RuleRepository,
	domain, feature string,
	opts ...func(*featureswitch.Rule),
) featureswitch.Rule {
	tstamp := time.Now().UTC().Truncate(time.Microsecond) // postgres precision
	rule := featureswitch.Rule{
		ID:          uuid.New().String(),
		Domain:      domain,
		FeatureName: feature,
		IsEnabled:   true,
		ScopeType:   featureswitch.ScopeGlobal,
		Percentage:  100,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	for _, opt := range opts {
		opt(&rule)
	}
	rule, err := repo.CreateRule(context.Background(), rule)
	if err != nil {
		t.Fatalf("CreateRule() failed: %v", err)
	}
	return rule
}
