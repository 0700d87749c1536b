package migrations_test

import (
	"context"
	"testing"

	"github.com/playperu/storyline/internal/database"
	"github.com/playperu/storyline/internal/migrations"
)

func TestMigrations(t *testing.T) {
	tests := []struct {
		set  migrations.Set
		want []string
	}{
		{migrations.Device, []string{"kv"}},
		{migrations.Index, []string{"devices", "device_sessions"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.set), func(t *testing.T) {
			ctx := context.Background()
			db, err := database.Open(ctx, database.Memory)
			if err != nil {
				t.Fatalf("opening database: %v", err)
			}
			defer db.Close()

			if err := migrations.Run(ctx, db, tt.set); err != nil {
				t.Fatalf("running migrations: %v", err)
			}

			for _, table := range tt.want {
				var name string
				err := db.QueryRow(
					"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
				).Scan(&name)
				if err != nil {
					t.Errorf("table %q not found: %v", table, err)
				}
			}
		})
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Memory)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, migrations.Device); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(ctx, db, migrations.Device); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}
