package driver

import (
	"testing"
)

func TestParseDialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDialect(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDialect(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPostgresRebind(t *testing.T) {
	t.Parallel()

	d := NewPostgres()
	got := d.Rebind("INSERT INTO t (a, b, c) VALUES (?, ?, ?)")
	want := "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}

	if d.Rebind("SELECT 1") != "SELECT 1" {
		t.Error("queries without placeholders should pass through")
	}
}

func TestSQLiteRebindIsIdentity(t *testing.T) {
	t.Parallel()

	d := NewSQLite()
	q := "SELECT * FROM t WHERE id = ?"
	if d.Rebind(q) != q {
		t.Error("sqlite rebind should be identity")
	}
}
