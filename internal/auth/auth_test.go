package auth

import (
	"errors"
	"testing"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/platerr"
)

func TestRoleOrdering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleAdmin, RoleRead, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleWrite, RoleRead, true},
		{RoleWrite, RoleAdmin, false},
		{RoleRead, RoleWrite, false},
		{Role(""), RoleRead, false},
		{Role("banana"), RoleRead, false},
	}

	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.min); got != tt.want {
			t.Errorf("%q.AtLeast(%q) = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	d := db.NewTestDB(t)
	db.SeedUser(t, d, "u1")

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := d.SaveAPIKey(&db.APIKey{ID: "k1", UserID: "u1", Name: "ci", KeyHash: HashKey(key)}); err != nil {
		t.Fatalf("save key: %v", err)
	}

	svc := NewService(d)

	actor, err := svc.Authenticate(key)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if actor.UserID != "u1" || actor.APIKeyID != "k1" {
		t.Errorf("unexpected actor %+v", actor)
	}

	for _, bad := range []string{"", "flowd_wrong", key + "x"} {
		_, err := svc.Authenticate(bad)
		var pe *platerr.Error
		if !errors.As(err, &pe) || pe.Code != platerr.CodeUnauthenticated {
			t.Errorf("key %q: expected UNAUTHENTICATED, got %v", bad, err)
		}
	}
}

func TestRequire(t *testing.T) {
	t.Parallel()

	d := db.NewTestDB(t)
	db.SeedUser(t, d, "owner")
	db.SeedUser(t, d, "viewer")
	db.SeedUser(t, d, "outsider")
	db.SeedWorkspace(t, d, "ws1", "owner")
	if err := d.SaveMember(&db.Member{WorkspaceID: "ws1", UserID: "viewer", Role: "read"}); err != nil {
		t.Fatalf("save member: %v", err)
	}

	svc := NewService(d)

	// Owner is auto-admin.
	if err := svc.Require("ws1", "owner", RoleAdmin, "manage"); err != nil {
		t.Errorf("owner should be admin: %v", err)
	}
	// Reader can read but not write.
	if err := svc.Require("ws1", "viewer", RoleRead, "view"); err != nil {
		t.Errorf("viewer should read: %v", err)
	}
	err := svc.Require("ws1", "viewer", RoleWrite, "edit")
	var pe *platerr.Error
	if !errors.As(err, &pe) || pe.Code != platerr.CodeForbidden {
		t.Errorf("viewer edit: expected FORBIDDEN, got %v", err)
	}
	// Non-members get forbidden, not a crash.
	if err := svc.Require("ws1", "outsider", RoleRead, "view"); err == nil {
		t.Error("outsider should be forbidden")
	}
}

func TestHashKeyStable(t *testing.T) {
	t.Parallel()

	if HashKey("abc") != HashKey("abc") {
		t.Error("hash must be deterministic")
	}
	if HashKey("abc") == HashKey("abd") {
		t.Error("different keys must hash differently")
	}
}
