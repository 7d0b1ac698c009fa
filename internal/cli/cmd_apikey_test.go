package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowd/internal/db"
)

func TestEnsureUserIsIdempotent(t *testing.T) {
	d := db.NewTestDB(t)

	first, err := ensureUser(d, "dev@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	// A second run with the same email reuses the row instead of
	// tripping the unique constraint.
	second, err := ensureUser(d, "dev@example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	other, err := ensureUser(d, "other@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
}
