package collabsync

import (
	"sync"
	"time"

	"github.com/appflowy/collabsync/crdtio"
)

// sharedState is the Shared Ref Container: every mutable structure the
// engine's components read and write, held as fields of one referentially
// stable value so no component ever owns a private copy of engine state.
type sharedState struct {
	mu sync.Mutex

	// registry maps an object id to its current SyncContext;
	// at most one entry exists per object id.
	registry map[ObjectID]*SyncContext

	// ownerCounts tracks how many live registrations reference an object id.
	ownerCounts map[ObjectID]int

	// cleanupTimers holds the pending deferred-teardown timer for an object
	// id, if any.
	cleanupTimers map[ObjectID]*time.Timer

	// skipFlushOnDestroy marks object ids whose next context destruction
	// must discard rather than flush pending updates (set during resets and
	// reverts so stale edits are never emitted for a document being
	// replaced).
	skipFlushOnDestroy map[ObjectID]bool

	// resetting is the set of object ids currently mid-reset or mid-revert;
	// messages for them are buffered in queuedDuringReset. An id can still
	// have a registered context while in this set: during a reset the old
	// context stays registered until its doc is destroyed, and in both resets
	// and reverts the rebuilt context is registered before the id leaves it.
	resetting map[ObjectID]bool

	// queuedDuringReset buffers messages that arrive for a resetting object
	// id so none are lost.
	queuedDuringReset map[ObjectID][]IncomingMessage

	// latestIncomingVersion records, per object id, the most recently
	// observed incoming version, consulted after a reset's cache-open await
	// returns to detect supersession by a newer reset.
	latestIncomingVersion map[ObjectID]*VersionID

	// inbox is the per-object-id FIFO of messages awaiting dispatch.
	inbox map[ObjectID][]IncomingMessage

	// processing is the concurrency guard set: an object id present here has
	// a consumer loop actively draining its inbox.
	processing map[ObjectID]bool

	currentUser *CurrentUser
	disposed    bool
}

func newSharedState() *sharedState {
	return &sharedState{
		registry:              make(map[ObjectID]*SyncContext),
		ownerCounts:           make(map[ObjectID]int),
		cleanupTimers:         make(map[ObjectID]*time.Timer),
		skipFlushOnDestroy:    make(map[ObjectID]bool),
		resetting:             make(map[ObjectID]bool),
		queuedDuringReset:     make(map[ObjectID][]IncomingMessage),
		latestIncomingVersion: make(map[ObjectID]*VersionID),
		inbox:                 make(map[ObjectID][]IncomingMessage),
		processing:            make(map[ObjectID]bool),
	}
}

// SyncContext is the runtime binding between a CollabDocument and the
// transports.
type SyncContext struct {
	Doc        crdtio.Doc
	Awareness  crdtio.Awareness
	Meta       DocMeta
	Version    *VersionID

	mu sync.Mutex

	emit                func(update []byte)
	flushFn             func()
	discardFn           func()
	cleanupDoc          func()
	applyingRemote      bool
	userMappingAttached bool
	clientUserMap       map[uint64]string
}

// beginRemoteApply marks the context as applying a remote update, so the
// doc's update observer can tell a remote apply from a local transaction and
// not echo it back out through the transports.
func (c *SyncContext) beginRemoteApply() {
	c.mu.Lock()
	c.applyingRemote = true
	c.mu.Unlock()
}

func (c *SyncContext) endRemoteApply() {
	c.mu.Lock()
	c.applyingRemote = false
	c.mu.Unlock()
}

func (c *SyncContext) isApplyingRemote() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyingRemote
}

// SetFlush installs a pending-update drain hook. CRDT hosts that batch or
// debounce local writes use it to push whatever they are holding before a
// teardown; hosts that publish synchronously (like the in-memory doc) leave
// it unset.
func (c *SyncContext) SetFlush(fn func()) {
	c.mu.Lock()
	c.flushFn = fn
	c.mu.Unlock()
}

// SetDiscard installs the counterpart hook invoked when pending local updates
// must be dropped instead of sent (resets and reverts).
func (c *SyncContext) SetDiscard(fn func()) {
	c.mu.Lock()
	c.discardFn = fn
	c.mu.Unlock()
}

func (c *SyncContext) flush() {
	c.mu.Lock()
	fn := c.flushFn
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// discardPendingUpdates drops any buffered local updates instead of emitting
// them, used when a context is being torn down for a reset/revert.
func (c *SyncContext) discardPendingUpdates() {
	c.mu.Lock()
	fn := c.discardFn
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// attachUserMapping records clientID -> userID for later editor attribution.
func (c *SyncContext) attachUserMapping(clientID uint64, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clientUserMap == nil {
		c.clientUserMap = make(map[uint64]string)
	}
	c.clientUserMap[clientID] = userID
}

// maybeAttachUser lazily attaches the current user's clientID -> userID
// association on a Document context's first local transaction. Subsequent
// transactions are a no-op.
func (c *SyncContext) maybeAttachUser(user *CurrentUser) {
	if user == nil || c.Meta.CollabKind != CollabKindDocument {
		return
	}
	c.mu.Lock()
	attached := c.userMappingAttached
	c.userMappingAttached = true
	c.mu.Unlock()
	if !attached {
		c.attachUserMapping(user.ClientID, user.UserID)
	}
}

// UserForClient returns the user id attributed to a client id, if known.
func (c *SyncContext) UserForClient(clientID uint64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.clientUserMap[clientID]
	return u, ok
}
