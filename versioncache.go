package collabsync

import (
	"context"
	"time"

	"github.com/appflowy/collabsync/crdtio"
)

// MergeVersions is the pure version-cache helper: merge a locally
// cached version map with a freshly fetched remote list, then evict entries
// older than retention. A remote entry supersedes a cached one when it is
// newer or when its snapshot has been nulled out (server-side deletion).
func MergeVersions(cached map[VersionID]VersionRecord, remote []VersionRecord, retention time.Duration, now time.Time) map[VersionID]VersionRecord {
	merged := make(map[VersionID]VersionRecord, len(cached)+len(remote))
	for k, v := range cached {
		merged[k] = v
	}
	for _, r := range remote {
		existing, ok := merged[r.VersionID]
		if !ok || r.CreatedAt.After(existing.CreatedAt) || r.Snapshot == nil {
			merged[r.VersionID] = r
		}
	}
	for k, v := range merged {
		if now.Sub(v.CreatedAt) > retention {
			delete(merged, k)
		}
	}
	return merged
}

// RefreshVersions fetches objectID's version history from the server,
// passing the newest cached creation timestamp as `since`, and merges it
// into cached via MergeVersions under the engine's retention window.
func (e *Engine) RefreshVersions(ctx context.Context, objectID ObjectID, cached map[VersionID]VersionRecord) (map[VersionID]VersionRecord, error) {
	if e.http == nil {
		return nil, ErrNoHTTPClient
	}

	var since *time.Time
	for _, v := range cached {
		if since == nil || v.CreatedAt.After(*since) {
			t := v.CreatedAt
			since = &t
		}
	}

	dtos, err := e.http.GetCollabVersions(ctx, e.workspaceID, objectID.String(), since)
	if err != nil {
		return nil, err
	}

	remote := make([]VersionRecord, 0, len(dtos))
	for _, dto := range dtos {
		id, err := ParseObjectID(dto.VersionID)
		if err != nil {
			e.log.Debug("skipping version record with malformed id")
			continue
		}
		rec := VersionRecord{
			VersionID: id,
			Label:     dto.Label,
			CreatedAt: dto.CreatedAt,
			EditorIDs: dto.EditorIDs,
			Snapshot:  dto.Snapshot,
		}
		if dto.ParentID != nil {
			if pid, perr := ParseObjectID(*dto.ParentID); perr == nil {
				rec.ParentID = &pid
			}
		}
		remote = append(remote, rec)
	}

	return MergeVersions(cached, remote, e.opts.VersionRetention, time.Now()), nil
}

// SnapshotDecoder turns a VersionRecord's opaque snapshot bytes into the
// crdtio.Snapshot shape the editor-history helper needs.
type SnapshotDecoder func(data []byte) (crdtio.Snapshot, error)

// ComputeEditorIDs fills in a VersionRecord's EditorIDs field from the
// (parent, record) snapshot pair via EditorsBetween. parent may be nil for a
// root version.
func ComputeEditorIDs(record VersionRecord, parent *VersionRecord, decode SnapshotDecoder, mapping UserMapping) ([]string, error) {
	if len(record.Snapshot) == 0 {
		return nil, nil
	}
	to, err := decode(record.Snapshot)
	if err != nil {
		return nil, err
	}

	var from crdtio.Snapshot
	if parent != nil && len(parent.Snapshot) > 0 {
		from, err = decode(parent.Snapshot)
		if err != nil {
			return nil, err
		}
	}

	editors := EditorsBetween(from, to, mapping)
	out := make([]string, 0, len(editors))
	for u := range editors {
		out = append(out, u)
	}
	return out, nil
}
