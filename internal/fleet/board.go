// Package fleet keeps a live set of track markers in step with the server's
// recently active tracks by polling.
package fleet

import (
	"sort"
	"sync"

	"github.com/heliradar/tracker/internal/model"
)

// Diff is the change a reconcile made to the board.
type Diff struct {
	Added   []model.Snapshot
	Moved   []model.Snapshot
	Removed []string
}

// Empty reports whether the reconcile changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Moved) == 0 && len(d.Removed) == 0
}

// Board holds one marker per active track. It is safe for concurrent use.
type Board struct {
	mu      sync.Mutex
	markers map[string]model.Snapshot
}

func NewBoard() *Board {
	return &Board{markers: make(map[string]model.Snapshot)}
}

// Reconcile replaces the board contents with snaps. Snapshots without an id
// and snapshots at exactly (0, 0) are ignored. If a track appears twice the
// last entry wins. Every list in the returned Diff is sorted by track id.
func (b *Board) Reconcile(snaps []model.Snapshot) Diff {
	next := make(map[string]model.Snapshot, len(snaps))
	for _, s := range snaps {
		if s.ID == "" || (s.Latitude == 0 && s.Longitude == 0) {
			continue
		}
		next[s.ID] = s
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var d Diff
	for id, s := range next {
		old, ok := b.markers[id]
		switch {
		case !ok:
			d.Added = append(d.Added, s)
		case old.Latitude != s.Latitude || old.Longitude != s.Longitude:
			d.Moved = append(d.Moved, s)
		}
	}
	for id := range b.markers {
		if _, ok := next[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	b.markers = next

	sortSnapshots(d.Added)
	sortSnapshots(d.Moved)
	sort.Strings(d.Removed)
	return d
}

// Clear removes every marker and returns the removed ids.
func (b *Board) Clear() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.markers))
	for id := range b.markers {
		ids = append(ids, id)
	}
	b.markers = make(map[string]model.Snapshot)
	sort.Strings(ids)
	return ids
}

// Markers returns the current markers sorted by track id.
func (b *Board) Markers() []model.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Snapshot, 0, len(b.markers))
	for _, s := range b.markers {
		out = append(out, s)
	}
	sortSnapshots(out)
	return out
}

func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.markers)
}

func sortSnapshots(s []model.Snapshot) {
	sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
}
