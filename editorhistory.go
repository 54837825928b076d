package collabsync

import "github.com/appflowy/collabsync/crdtio"

// UserMapping resolves a CRDT client id to a user id, as recorded by
// SyncContext.attachUserMapping on each context's first local transaction.
type UserMapping interface {
	UserForClient(clientID uint64) (string, bool)
}

// EditorsBetween is the pure editor-history helper: given two
// snapshots and a client->user mapping, return the set of users whose edits
// are present in `to` but not in `from`. `from` may be nil, meaning "the
// empty document".
func EditorsBetween(from, to crdtio.Snapshot, mapping UserMapping) map[string]struct{} {
	result := make(map[string]struct{})

	fromSV := map[uint64]uint64{}
	fromDS := map[uint64][]crdtio.Range{}
	if from != nil {
		fromSV = from.StateVector()
		fromDS = from.DeleteSet()
	}

	// Pass 1: insertions. Any client whose clock advanced between from and
	// to contributed an insertion.
	for clientID, toClock := range to.StateVector() {
		if toClock > fromSV[clientID] {
			if user, ok := mapping.UserForClient(clientID); ok {
				result[user] = struct{}{}
			}
		}
	}

	// Pass 2: deletions. A client's delete-set ranges that intersect `to`
	// but are not already fully covered by `from`'s delete-set indicate a
	// deletion made in the (from, to] window.
	for clientID, toRanges := range to.DeleteSet() {
		fromRanges := fromDS[clientID]
		for _, r := range toRanges {
			residual := []crdtio.Range{r}
			for _, fr := range fromRanges {
				residual = subtractAll(residual, fr)
			}
			if len(residual) > 0 {
				if user, ok := mapping.UserForClient(clientID); ok {
					result[user] = struct{}{}
				}
				break
			}
		}
	}

	return result
}

// Intersect returns the overlap of a and b, and whether any overlap exists.
func Intersect(a, b crdtio.Range) (crdtio.Range, bool) {
	c := max64(a.Clock, b.Clock)
	end := min64(a.Clock+a.Len, b.Clock+b.Len)
	l := end - c
	if l <= 0 {
		return crdtio.Range{}, false
	}
	return crdtio.Range{Clock: c, Len: l}, true
}

// Subtract removes b's coverage from a, returning up to two residual
// intervals.
func Subtract(a, b crdtio.Range) []crdtio.Range {
	aEnd := a.Clock + a.Len
	bEnd := b.Clock + b.Len

	var out []crdtio.Range
	if a.Clock < b.Clock {
		leftEnd := min64(aEnd, b.Clock)
		if leftEnd > a.Clock {
			out = append(out, crdtio.Range{Clock: a.Clock, Len: leftEnd - a.Clock})
		}
	}
	if aEnd > bEnd {
		rightStart := max64(a.Clock, bEnd)
		if aEnd > rightStart {
			out = append(out, crdtio.Range{Clock: rightStart, Len: aEnd - rightStart})
		}
	}
	return out
}

func subtractAll(ranges []crdtio.Range, b crdtio.Range) []crdtio.Range {
	var out []crdtio.Range
	for _, r := range ranges {
		if _, ok := Intersect(r, b); !ok {
			out = append(out, r)
			continue
		}
		out = append(out, Subtract(r, b)...)
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
