package migrations_test

import (
	"context"
	"testing"

	"github.com/patyfb04/play-inventory/internal/testutil"
	"github.com/patyfb04/play-inventory/migrations"
)

func TestApply_UpToLatest(t *testing.T) {
	for _, dialect := range []string{"mysql", "postgres"} {
		t.Run(dialect, func(t *testing.T) {
			db := testutil.OpenDB(t, dialect)
			ctx := context.Background()

			if err := migrations.Apply(ctx, db, dialect); err != nil {
				t.Fatalf("apply migrations: %v", err)
			}

			version, dirty, err := migrations.Version(ctx, db, dialect)
			if err != nil {
				t.Fatalf("read version: %v", err)
			}
			if version != 2 || dirty {
				t.Fatalf("expected clean version 2, got %d (dirty=%v)", version, dirty)
			}

			if err := migrations.Apply(ctx, db, dialect); err != nil {
				t.Fatalf("re-apply migrations: %v", err)
			}
			if err := db.PingContext(ctx); err != nil {
				t.Fatalf("db must stay open after migrating: %v", err)
			}

			if _, err := db.ExecContext(ctx, `SELECT COUNT(*) FROM inventory_items`); err != nil {
				t.Errorf("inventory_items missing: %v", err)
			}
		})
	}
}

func TestApply_UnknownDialect(t *testing.T) {
	if err := migrations.Apply(context.Background(), nil, "sqlite"); err == nil {
		t.Error("expected an error for an unknown dialect")
	}
}
