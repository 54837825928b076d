package collabsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appflowy/collabsync/crdtio"
)

type staticMapping map[uint64]string

func (m staticMapping) UserForClient(clientID uint64) (string, bool) {
	u, ok := m[clientID]
	return u, ok
}

type fakeSnapshot struct {
	sv map[uint64]uint64
	ds map[uint64][]crdtio.Range
}

func (s fakeSnapshot) StateVector() map[uint64]uint64       { return s.sv }
func (s fakeSnapshot) DeleteSet() map[uint64][]crdtio.Range { return s.ds }

func TestEditorsBetween_Insertions(t *testing.T) {
	mapping := staticMapping{1: "u1", 2: "u2"}

	s1 := fakeSnapshot{sv: map[uint64]uint64{1: 5}}
	s2 := fakeSnapshot{sv: map[uint64]uint64{1: 5, 2: 3}}

	editors := EditorsBetween(nil, s1, mapping)
	_, hasU1 := editors["u1"]
	assert.True(t, hasU1)

	editors = EditorsBetween(s1, s2, mapping)
	_, hasU2 := editors["u2"]
	assert.True(t, hasU2)
	_, hasU1Again := editors["u1"]
	assert.False(t, hasU1Again)
}

func TestEditorsBetween_Deletions(t *testing.T) {
	mapping := staticMapping{2: "u2"}

	s2 := fakeSnapshot{
		sv: map[uint64]uint64{1: 5, 2: 3},
		ds: map[uint64][]crdtio.Range{},
	}
	s3 := fakeSnapshot{
		sv: map[uint64]uint64{1: 5, 2: 3},
		ds: map[uint64][]crdtio.Range{2: {{Clock: 0, Len: 2}}},
	}

	editors := EditorsBetween(s2, s3, mapping)
	_, hasU2 := editors["u2"]
	assert.True(t, hasU2, "a new delete range not covered by the parent snapshot should attribute to its owner")
}

func TestIntersect(t *testing.T) {
	r, ok := Intersect(crdtio.Range{Clock: 0, Len: 10}, crdtio.Range{Clock: 5, Len: 10})
	require.True(t, ok)
	assert.Equal(t, crdtio.Range{Clock: 5, Len: 5}, r)

	_, ok = Intersect(crdtio.Range{Clock: 0, Len: 5}, crdtio.Range{Clock: 5, Len: 5})
	assert.False(t, ok, "half-open ranges touching at the boundary do not overlap")
}

func TestSubtract(t *testing.T) {
	out := Subtract(crdtio.Range{Clock: 0, Len: 10}, crdtio.Range{Clock: 3, Len: 4})
	require.Len(t, out, 2)
	assert.Equal(t, crdtio.Range{Clock: 0, Len: 3}, out[0])
	assert.Equal(t, crdtio.Range{Clock: 7, Len: 3}, out[1])

	out = Subtract(crdtio.Range{Clock: 0, Len: 10}, crdtio.Range{Clock: 0, Len: 10})
	assert.Empty(t, out)
}

// TestIntervalRoundTrip checks L3: subtract(A,B) ∪ intersect(A,B) = A.
func TestIntervalRoundTrip(t *testing.T) {
	a := crdtio.Range{Clock: 2, Len: 12}
	b := crdtio.Range{Clock: 7, Len: 3}

	covered := make(map[int64]bool)
	if inter, ok := Intersect(a, b); ok {
		for c := inter.Clock; c < inter.Clock+inter.Len; c++ {
			covered[c] = true
		}
	}
	for _, part := range Subtract(a, b) {
		for c := part.Clock; c < part.Clock+part.Len; c++ {
			covered[c] = true
		}
	}

	for c := a.Clock; c < a.Clock+a.Len; c++ {
		assert.True(t, covered[c], "clock %d of A must be covered by subtract ∪ intersect", c)
	}
	assert.Len(t, covered, int(a.Len))
}
