// Package storetest opens throwaway SQLite-backed stores for tests.
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"storefront/internal/store"
)

var seq int64

// New returns a migrated store on a private in-memory database that is
// closed when the test ends.
func New(t testing.TB) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared&_foreign_keys=1", atomic.AddInt64(&seq, 1))
	s, err := store.NewStore(store.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate())
	return s
}
