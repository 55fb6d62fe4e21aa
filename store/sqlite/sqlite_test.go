package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/store/sqlite"
	"github.com/warp/package-ledger/store/storetest"
)

func newStore(t *testing.T) *sqlite.Store {
	s, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return newStore(t)
	})
}

func TestReopenKeepsData(t *testing.T) {
	// GIVEN: A package written to a database file
	// WHEN: The file is reopened
	// THEN: The package is still there at the same version

	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := sqlite.New(path)
	require.NoError(t, err)
	tpl, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, tpl)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetPackage(ctx, "pkg_missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
