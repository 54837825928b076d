package collabsync

import (
	"sync"
	"time"
)

// LastUpdatedEvent is the update-info observation emitted after every
// applied message.
type LastUpdatedEvent struct {
	ObjectID    ObjectID
	CollabKind  CollabKind
	PublishedAt *time.Time
}

// eventBus is a tiny typed publish-subscribe: nine known
// workspace-notification topics plus doc-replaced, reset and last-updated.
// No wildcard subscribers.
type eventBus struct {
	mu sync.Mutex

	docReplaced []func(DocReplacedEvent)
	reset       []func(ObjectID)
	lastUpdated []func(LastUpdatedEvent)

	profileChange         []func(ProfileChange)
	permissionChange      []func(PermissionChange)
	sectionChange         []func(SectionChange)
	shareViewsChange      []func(ShareViewsChange)
	mentionableListChange []func(MentionableListChange)
	serverLimitChange     []func(ServerLimitChange)
	memberProfileChange   []func(MemberProfileChange)
	folderOutlineChange   []func(FolderOutlineChange)
	folderViewChange      []func(FolderViewChange)
}

func newEventBus() *eventBus { return &eventBus{} }

func (b *eventBus) OnDocReplaced(fn func(DocReplacedEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docReplaced = append(b.docReplaced, fn)
}

func (b *eventBus) OnReset(fn func(ObjectID)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset = append(b.reset, fn)
}

func (b *eventBus) OnLastUpdated(fn func(LastUpdatedEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpdated = append(b.lastUpdated, fn)
}

func (b *eventBus) OnProfileChange(fn func(ProfileChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profileChange = append(b.profileChange, fn)
}

func (b *eventBus) OnPermissionChange(fn func(PermissionChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.permissionChange = append(b.permissionChange, fn)
}

func (b *eventBus) OnSectionChange(fn func(SectionChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sectionChange = append(b.sectionChange, fn)
}

func (b *eventBus) OnShareViewsChange(fn func(ShareViewsChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shareViewsChange = append(b.shareViewsChange, fn)
}

func (b *eventBus) OnMentionableListChange(fn func(MentionableListChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mentionableListChange = append(b.mentionableListChange, fn)
}

func (b *eventBus) OnServerLimitChange(fn func(ServerLimitChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.serverLimitChange = append(b.serverLimitChange, fn)
}

func (b *eventBus) OnMemberProfileChange(fn func(MemberProfileChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memberProfileChange = append(b.memberProfileChange, fn)
}

func (b *eventBus) OnFolderOutlineChange(fn func(FolderOutlineChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.folderOutlineChange = append(b.folderOutlineChange, fn)
}

func (b *eventBus) OnFolderViewChange(fn func(FolderViewChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.folderViewChange = append(b.folderViewChange, fn)
}

func (b *eventBus) emitDocReplaced(ev DocReplacedEvent) {
	b.mu.Lock()
	fns := append([]func(DocReplacedEvent){}, b.docReplaced...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (b *eventBus) emitReset(objectID ObjectID) {
	b.mu.Lock()
	fns := append([]func(ObjectID){}, b.reset...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(objectID)
	}
}

func (b *eventBus) emitLastUpdated(ev LastUpdatedEvent) {
	b.mu.Lock()
	fns := append([]func(LastUpdatedEvent){}, b.lastUpdated...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// relayNotification is the Workspace Notification Relay: forward
// each present sub-object of an inbound WorkspaceNotification to its
// corresponding topic.
func (e *Engine) relayNotification(n *WorkspaceNotification) {
	b := e.events

	if n.ProfileChange != nil {
		fire(b, &b.profileChange, *n.ProfileChange)
	}
	if n.PermissionChange != nil {
		fire(b, &b.permissionChange, *n.PermissionChange)
	}
	if n.SectionChange != nil {
		fire(b, &b.sectionChange, *n.SectionChange)
	}
	if n.ShareViewsChange != nil {
		fire(b, &b.shareViewsChange, *n.ShareViewsChange)
	}
	if n.MentionableListChange != nil {
		fire(b, &b.mentionableListChange, *n.MentionableListChange)
	}
	if n.ServerLimitChange != nil {
		fire(b, &b.serverLimitChange, *n.ServerLimitChange)
	}
	if n.MemberProfileChange != nil {
		fire(b, &b.memberProfileChange, *n.MemberProfileChange)
	}
	if n.FolderOutlineChange != nil {
		fire(b, &b.folderOutlineChange, *n.FolderOutlineChange)
	}
	if n.FolderViewChange != nil {
		fire(b, &b.folderViewChange, *n.FolderViewChange)
	}
}

func fire[T any](b *eventBus, slot *[]func(T), ev T) {
	b.mu.Lock()
	fns := append([]func(T){}, (*slot)...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
