package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw     string
		dialect Dialect
		dsn     string
		wantErr bool
	}{
		{raw: "sqlite:///tmp/tokens.db", dialect: SQLite, dsn: "/tmp/tokens.db"},
		{raw: "sqlite://tokens.db", dialect: SQLite, dsn: "tokens.db"},
		{raw: "postgres://u:p@db/escrow", dialect: Postgres, dsn: "postgres://u:p@db/escrow"},
		{raw: "postgresql://db/escrow", dialect: Postgres, dsn: "postgresql://db/escrow"},
		{raw: "sqlite://", wantErr: true},
		{raw: "mysql://db", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, dsn, err := ParseURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d != tt.dialect || dsn != tt.dsn {
				t.Fatalf("got %s %q, want %s %q", d, dsn, tt.dialect, tt.dsn)
			}
		})
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Postgres.Placeholder(2); got != "$2" {
		t.Fatalf("postgres placeholder = %q", got)
	}
	if got := SQLite.Placeholder(2); got != "?" {
		t.Fatalf("sqlite placeholder = %q", got)
	}
}

func TestConnectSQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "sqlite://" + filepath.Join(t.TempDir(), "test.db")

	db, dialect, err := Connect(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if dialect != SQLite {
		t.Fatalf("dialect = %s", dialect)
	}
	if _, err := db.Exec(`CREATE TABLE t (x INTEGER)`); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func TestConnectRequiresURL(t *testing.T) {
	if _, _, err := Connect(context.Background(), DefaultConfig(), nil); err == nil {
		t.Fatal("expected error for empty url")
	}
}
