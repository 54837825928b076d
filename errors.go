package collabsync

import "fmt"

// Sentinel errors for the common, field-less failure categories.
var (
	// ErrInvalidObjectID is returned when a caller registers or looks up a
	// context with a malformed object id.
	ErrInvalidObjectID = fmt.Errorf("collabsync: invalid object id")

	// ErrContextNotFound is returned when an operation needs a registered
	// SyncContext that does not exist.
	ErrContextNotFound = fmt.Errorf("collabsync: sync context not found")

	// ErrNoCurrentUser is returned by revert when the engine has no
	// authenticated user attached.
	ErrNoCurrentUser = fmt.Errorf("collabsync: no current user")

	// ErrEngineDisposed is returned by Register once the engine has been
	// torn down.
	ErrEngineDisposed = fmt.Errorf("collabsync: engine disposed")

	// ErrSnapshotUnsupported names the missing-snapshot-surface category at
	// the engine level. The local cache implementations and helpers report
	// that case with localcache.ErrUnsupported, not with this value.
	ErrSnapshotUnsupported = fmt.Errorf("collabsync: local cache does not support snapshots")

	// ErrNoHTTPClient is returned by operations that need the HTTP boundary
	// (revert, batch sync) when the engine was built without one.
	ErrNoHTTPClient = fmt.Errorf("collabsync: no http client configured")

	// ErrRevertLockBusy is returned by revert when another owner currently
	// holds the object id's distributed lock.
	ErrRevertLockBusy = fmt.Errorf("collabsync: revert lock busy")
)

// RevertError wraps a failure from the Version Revert Controller with
// the fields a caller needs to decide UI recovery: the stage that failed and
// the object id affected. After a RevertStageHTTP or RevertStageRebuild
// failure the engine has already restored the previous context; a
// RevertStageLookup failure leaves the registered context untouched.
type RevertError struct {
	ObjectID ObjectID
	Stage    RevertStage
	Err      error
}

// RevertStage identifies which step of the revert sequence failed.
type RevertStage int

const (
	RevertStageLookup RevertStage = iota
	RevertStageHTTP
	RevertStageRebuild
)

func (s RevertStage) String() string {
	switch s {
	case RevertStageLookup:
		return "lookup"
	case RevertStageHTTP:
		return "http"
	case RevertStageRebuild:
		return "rebuild"
	default:
		return "unknown"
	}
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("collabsync: revert %s failed for %s: %v", e.Stage, e.ObjectID, e.Err)
}

func (e *RevertError) Unwrap() error { return e.Err }
