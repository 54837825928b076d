package collabsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appflowy/collabsync/localcache"
)

// newTestEngine builds an Engine with in-memory transports and cache and a
// short deferred-cleanup delay so tests don't need to sleep seconds.
func newTestEngine(t *testing.T, cleanupDelay time.Duration) *Engine {
	t.Helper()
	e, err := NewEngine(Deps{
		WorkspaceID: "ws-1",
		Cache:       localcache.NewMemoryStore(),
	}, &EngineOptions{
		DeferredCleanupDelay: cleanupDelay,
		VersionRetention:     7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}
