package collabsync

import "time"

// EngineOptions configures a new Engine.
type EngineOptions struct {
	// DeferredCleanupDelay is the grace period a SyncContext survives after
	// its owner count reaches zero. Tests use a much shorter value.
	DeferredCleanupDelay time.Duration

	// VersionRetention is how long a version record is kept by the
	// version-cache helper before eviction.
	VersionRetention time.Duration

	// RevertLockTimeout bounds how long the Version Revert Controller's
	// advisory distributed lock is held for before it auto-expires. Acquire
	// does not wait for a held lock: a revert that finds the lock taken
	// fails with ErrRevertLockBusy.
	RevertLockTimeout time.Duration
}

// DefaultEngineOptions returns the production defaults.
func DefaultEngineOptions() *EngineOptions {
	return &EngineOptions{
		DeferredCleanupDelay: 10 * time.Second,
		VersionRetention:     7 * 24 * time.Hour,
		RevertLockTimeout:    15 * time.Second,
	}
}
