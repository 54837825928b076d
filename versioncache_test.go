package collabsync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appflowy/collabsync/crdtio"
	"github.com/appflowy/collabsync/httpapi"
)

func TestMergeVersions_RemoteSupersedesOlderCached(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	id := uuid.New()

	cached := map[VersionID]VersionRecord{
		id: {VersionID: id, CreatedAt: now.Add(-2 * time.Hour), Snapshot: []byte("old")},
	}
	remote := []VersionRecord{
		{VersionID: id, CreatedAt: now.Add(-time.Hour), Snapshot: []byte("new")},
	}

	merged := MergeVersions(cached, remote, 7*24*time.Hour, now)
	assert.Equal(t, []byte("new"), merged[id].Snapshot)
}

func TestMergeVersions_NullSnapshotSupersedesRegardlessOfAge(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	id := uuid.New()

	cached := map[VersionID]VersionRecord{
		id: {VersionID: id, CreatedAt: now, Snapshot: []byte("present")},
	}
	remote := []VersionRecord{
		{VersionID: id, CreatedAt: now.Add(-24 * time.Hour), Snapshot: nil},
	}

	merged := MergeVersions(cached, remote, 7*24*time.Hour, now)
	assert.Nil(t, merged[id].Snapshot, "a remote entry with a nulled snapshot represents server-side deletion and always wins")
}

func TestMergeVersions_EvictsOlderThanRetention(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	freshID, staleID := uuid.New(), uuid.New()

	cached := map[VersionID]VersionRecord{
		freshID: {VersionID: freshID, CreatedAt: now.Add(-time.Hour)},
		staleID: {VersionID: staleID, CreatedAt: now.Add(-8 * 24 * time.Hour)},
	}

	merged := MergeVersions(cached, nil, 7*24*time.Hour, now)
	_, freshPresent := merged[freshID]
	_, stalePresent := merged[staleID]
	assert.True(t, freshPresent)
	assert.False(t, stalePresent)
}

// versionListingClient serves a canned version list and records the `since`
// parameter it was asked for.
type versionListingClient struct {
	fakeHTTPClient
	versions  []httpapi.VersionDTO
	gotSince  *time.Time
	listCalls int
}

func (c *versionListingClient) GetCollabVersions(_ context.Context, _, _ string, since *time.Time) ([]httpapi.VersionDTO, error) {
	c.listCalls++
	c.gotSince = since
	return c.versions, nil
}

func TestRefreshVersions_PassesNewestCachedTimestampAsSince(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	remoteID := uuid.New()
	fake := &versionListingClient{
		versions: []httpapi.VersionDTO{
			{VersionID: remoteID.String(), CreatedAt: now, Snapshot: []byte("s")},
		},
	}
	e := newTestEngineWithHTTP(t, fake)

	cachedID := uuid.New()
	newest := now.Add(-time.Hour)
	cached := map[VersionID]VersionRecord{
		cachedID: {VersionID: cachedID, CreatedAt: newest, Snapshot: []byte("c")},
	}

	merged, err := e.RefreshVersions(context.Background(), uuid.New(), cached)
	require.NoError(t, err)

	require.NotNil(t, fake.gotSince)
	assert.True(t, fake.gotSince.Equal(newest), "since must be the newest cached creation timestamp")

	_, hasCached := merged[cachedID]
	_, hasRemote := merged[remoteID]
	assert.True(t, hasCached)
	assert.True(t, hasRemote)
}

func TestRefreshVersions_NoHTTPClient(t *testing.T) {
	e := newTestEngine(t, time.Second)
	_, err := e.RefreshVersions(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNoHTTPClient)
}

func TestComputeEditorIDs_RootVersionHasNoParent(t *testing.T) {
	mapping := staticMapping{1: "u1"}
	decode := func(data []byte) (crdtio.Snapshot, error) {
		return fakeSnapshot{sv: map[uint64]uint64{1: uint64(len(data))}}, nil
	}

	record := VersionRecord{Snapshot: []byte("hello")}
	ids, err := ComputeEditorIDs(record, nil, decode, mapping)
	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal([]string{"u1"}, ids)
}
