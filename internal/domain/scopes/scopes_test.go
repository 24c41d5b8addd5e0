package scopes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
)

func TestParseID(t *testing.T) {
	t.Parallel()

	id, err := scopes.ParseID("42")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)

	for _, s := range []string{"", "abc", "0", "-1", "4.2"} {
		_, err := scopes.ParseID(s)
		require.ErrorIs(t, err, scopes.ErrNotFound, s)
	}
}

func TestKeyRing(t *testing.T) {
	t.Parallel()

	t.Run("Open", func(t *testing.T) {
		t.Parallel()
		kr := scopes.NewKeyRing(nil, nil)
		require.True(t, kr.Open(1))
		require.NoError(t, kr.Verify(1, ""))
		require.NoError(t, kr.Verify(1, "anything"))

		var nilRing *scopes.KeyRing
		require.NoError(t, nilRing.Verify(1, ""))
	})

	t.Run("Global", func(t *testing.T) {
		t.Parallel()
		kr := scopes.NewKeyRing([]string{"g1"}, nil)
		require.NoError(t, kr.Verify(7, "g1"))
		require.ErrorIs(t, kr.Verify(7, "nope"), scopes.ErrUnauthorized)
		require.ErrorIs(t, kr.Verify(7, ""), scopes.ErrUnauthorized)
	})

	t.Run("PerScope", func(t *testing.T) {
		t.Parallel()
		kr := scopes.NewKeyRing(nil, map[int64][]string{1: {"k1"}})
		require.NoError(t, kr.Verify(1, "k1"))
		require.ErrorIs(t, kr.Verify(1, "k2"), scopes.ErrUnauthorized)
		// Scope 2 has no keys and no global keys apply.
		require.NoError(t, kr.Verify(2, ""))
	})
}
