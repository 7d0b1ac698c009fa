// Package auth implements API-key authentication and workspace permission
// checks for the platform.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/platerr"
)

// Role is a workspace permission level. Roles are ordered: admin > write >
// read.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleWrite Role = "write"
	RoleRead  Role = "read"
)

// rank orders roles for comparisons; unknown roles rank below read.
func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleWrite:
		return 2
	case RoleRead:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether the role grants at least the given level.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// Valid reports whether the string names a known role.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// Actor is the authenticated principal attached to a request context.
type Actor struct {
	UserID   string
	APIKeyID string
}

type contextKey struct{}

// WithActor attaches an actor to the context.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// ActorFrom extracts the actor from the context, or nil.
func ActorFrom(ctx context.Context) *Actor {
	a, _ := ctx.Value(contextKey{}).(*Actor)
	return a
}

// Service resolves credentials and enforces workspace permissions.
type Service struct {
	db *db.DB
}

// NewService creates an auth service.
func NewService(d *db.DB) *Service {
	return &Service{db: d}
}

// HashKey returns the storage digest of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateKey returns a fresh API key with the platform prefix. Only the
// digest is ever stored.
func GenerateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return "flowd_" + hex.EncodeToString(buf), nil
}

// Authenticate resolves a raw API key to an actor. Returns an
// UNAUTHENTICATED platform error when the key is unknown.
func (s *Service) Authenticate(key string) (*Actor, error) {
	if key == "" {
		return nil, platerr.ErrUnauthenticated()
	}

	rec, err := s.db.GetAPIKeyByHash(HashKey(key))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, platerr.ErrUnauthenticated()
	}

	// Usage timestamp is best-effort; a failed update must not block the
	// request.
	_ = s.db.TouchAPIKey(rec.ID)

	return &Actor{UserID: rec.UserID, APIKeyID: rec.ID}, nil
}

// RoleIn returns the actor's role in a workspace, or "" when not a member.
func (s *Service) RoleIn(workspaceID, userID string) (Role, error) {
	m, err := s.db.GetMember(workspaceID, userID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", nil
	}
	return Role(m.Role), nil
}

// Require checks that the user holds at least min in the workspace,
// returning a FORBIDDEN platform error otherwise.
func (s *Service) Require(workspaceID, userID string, min Role, action string) error {
	role, err := s.RoleIn(workspaceID, userID)
	if err != nil {
		return err
	}
	if !role.AtLeast(min) {
		return platerr.ErrForbidden(action)
	}
	return nil
}
