package db

import (
	"testing"
)

// NewTestDB returns a migrated in-memory database that closes with the test.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	d, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// SeedUser inserts a user for tests.
func SeedUser(t *testing.T, d *DB, id string) *User {
	t.Helper()

	u := &User{ID: id, Name: "User " + id, Email: id + "@example.com"}
	if err := d.SaveUser(u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedWorkspace inserts a workspace owned by the given user.
func SeedWorkspace(t *testing.T, d *DB, id, ownerID string) *Workspace {
	t.Helper()

	w := &Workspace{ID: id, Name: "Workspace " + id, OwnerID: ownerID}
	if err := d.SaveWorkspace(w); err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
	return w
}
