// Package collabsync implements the collaborative document synchronization
// core shared by every browser tab of a session: per-document sync context
// lifecycle, transport dispatch with per-document ordering, version-gated
// reset, user-initiated revert and best-effort batch sync.
package collabsync

import (
	"fmt"
	"time"

	"github.com/appflowy/collabsync/crdtio"
	"github.com/google/uuid"
)

// CollabKind identifies the shape of CRDT payload a registered document
// carries, mirroring the collab types the server understands.
type CollabKind int

const (
	CollabKindDocument CollabKind = iota
	CollabKindDatabase
	CollabKindDatabaseRow
	CollabKindWorkspaceDatabase
	CollabKindAIChat
	CollabKindFolder
)

func (k CollabKind) String() string {
	switch k {
	case CollabKindDocument:
		return "document"
	case CollabKindDatabase:
		return "database"
	case CollabKindDatabaseRow:
		return "database_row"
	case CollabKindWorkspaceDatabase:
		return "workspace_database"
	case CollabKindAIChat:
		return "ai_chat"
	case CollabKindFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// ObjectID is a UUID v4 key identifying one CRDT document across transports,
// the local cache and the HTTP boundary.
type ObjectID = uuid.UUID

// VersionID is a UUID v4 key identifying a point in a document's version
// history. An unset version ("local has adopted no authoritative version
// yet") is represented by a nil *VersionID, not by uuid.Nil.
type VersionID = uuid.UUID

// ParseObjectID validates s as a UUID v4 object id. Registration with an
// invalid object id is a programmer error, so callers
// are expected to fail loudly rather than silently coerce.
func ParseObjectID(s string) (ObjectID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, err
	}
	if id.Version() != 4 {
		return uuid.Nil, fmt.Errorf("collabsync: %q is not a UUID v4", s)
	}
	return id, nil
}

// DocMeta is the explicit companion record carrying a registered document's
// metadata. It is looked up by object id, never stored on the crdtio.Doc
// itself, so documents stay free of dynamic property-bag fields.
type DocMeta struct {
	ObjectID   ObjectID
	ViewID     ObjectID
	CollabKind CollabKind
	SyncBound  bool
}

// VersionRecord represents one point in a document's history.
type VersionRecord struct {
	VersionID   VersionID
	ParentID    *VersionID
	Label       *string
	CreatedAt   time.Time
	EditorIDs   []string
	Snapshot    []byte // nil when the server has deleted this version's snapshot
}

// MessageID is the timestamp+counter pair attached to outbound CRDT messages,
// generated by a Snowflake node (internal/idgen).
type MessageID struct {
	Timestamp int64
	Counter   uint32
}

// UpdatePayload is the body of an inbound "update" CollabMessage.
type UpdatePayload struct {
	Version   *VersionID
	MessageID *MessageID
	Update    []byte
}

// SyncRequestPayload is the body of an inbound "syncRequest" CollabMessage.
type SyncRequestPayload struct {
	Version *VersionID
}

// IncomingMessage is either a CRDT message or a workspace notification. The
// dispatcher only looks at the envelope fields; everything else is opaque.
type IncomingMessage struct {
	ObjectID    ObjectID
	CollabKind  CollabKind
	Update      *UpdatePayload
	SyncRequest *SyncRequestPayload

	Notification *WorkspaceNotification
}

// WorkspaceNotification is a union of the nine non-document server
// notifications the Workspace Notification Relay forwards.
type WorkspaceNotification struct {
	ProfileChange         *ProfileChange
	PermissionChange      *PermissionChange
	SectionChange         *SectionChange
	ShareViewsChange      *ShareViewsChange
	MentionableListChange *MentionableListChange
	ServerLimitChange     *ServerLimitChange
	MemberProfileChange   *MemberProfileChange
	FolderOutlineChange   *FolderOutlineChange
	FolderViewChange      *FolderViewChange
}

type ProfileChange struct{ UserID string }
type PermissionChange struct{ WorkspaceID string }
type SectionChange struct{ WorkspaceID string }
type ShareViewsChange struct{ WorkspaceID string }
type MentionableListChange struct{ WorkspaceID string }
type ServerLimitChange struct{ WorkspaceID string }
type MemberProfileChange struct{ WorkspaceID, MemberID string }
type FolderOutlineChange struct{ WorkspaceID string }
type FolderViewChange struct{ WorkspaceID, ViewID string }

// CurrentUser identifies the local session's active user, attached lazily to
// a SyncContext on first local transaction.
type CurrentUser struct {
	UserID   string
	ClientID uint64
}

// openDocFn is the shape both the Message Dispatcher's reset path and the
// Version Revert Controller pass to the Doc Rebuild Primitive.
type openDocFn func() (crdtio.Doc, crdtio.Awareness, error)
