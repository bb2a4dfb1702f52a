package services

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/intelsk/reid/models"
)

// PairKey identifies the results of one target in one video by their
// backend ids. Being a struct it cannot collide the way a joined string
// can when an id contains the separator.
type PairKey struct {
	VideoID  string
	TargetID string
}

// ResultIndex holds the latest match list reported for each (video, target)
// pair. Writes overwrite per pair; the index only grows by new pairs.
type ResultIndex struct {
	mu      sync.RWMutex
	entries map[PairKey][]models.Match
}

func NewResultIndex() *ResultIndex {
	return &ResultIndex{entries: make(map[PairKey][]models.Match)}
}

// MergeSearch stores every pair present in resp, replacing earlier entries.
// Requested pairs missing from resp keep whatever they held before; the
// requested ids are accepted for symmetry with the search call but do not
// restrict what is merged.
func (x *ResultIndex) MergeSearch(videoIDs, targetIDs []string, resp models.SearchResponse) {
	if len(resp) == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	next := maps.Clone(x.entries)
	for videoID, byTarget := range resp {
		for targetID, matches := range byTarget {
			next[PairKey{VideoID: videoID, TargetID: targetID}] = slices.Clone(matches)
		}
	}
	x.swap(next)
}

// MergeSingle stores the match list of one pair, replacing any earlier entry
// whether it came from a search or a previous lookup.
func (x *ResultIndex) MergeSingle(videoID, targetID string, matches []models.Match) {
	x.mu.Lock()
	defer x.mu.Unlock()
	next := maps.Clone(x.entries)
	next[PairKey{VideoID: videoID, TargetID: targetID}] = slices.Clone(matches)
	x.swap(next)
}

// Get returns the matches of a pair in the order the backend reported them.
func (x *ResultIndex) Get(videoID, targetID string) ([]models.Match, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	m, ok := x.entries[PairKey{VideoID: videoID, TargetID: targetID}]
	return m, ok
}

// Pairs lists the indexed pairs sorted by video id, then target id.
func (x *ResultIndex) Pairs() []PairKey {
	keys := slices.Collect(maps.Keys(x.snapshot()))
	slices.SortFunc(keys, func(a, b PairKey) int {
		return cmp.Or(cmp.Compare(a.VideoID, b.VideoID), cmp.Compare(a.TargetID, b.TargetID))
	})
	return keys
}

func (x *ResultIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Snapshot returns the index as video id -> target id -> matches.
func (x *ResultIndex) Snapshot() models.SearchResponse {
	out := make(models.SearchResponse)
	for key, matches := range x.snapshot() {
		if out[key.VideoID] == nil {
			out[key.VideoID] = make(map[string][]models.Match)
		}
		out[key.VideoID][key.TargetID] = matches
	}
	return out
}

func (x *ResultIndex) snapshot() map[PairKey][]models.Match {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.entries
}

// swap publishes next; callers hold the write lock. Maps handed out by
// snapshot are never written after they are replaced.
func (x *ResultIndex) swap(next map[PairKey][]models.Match) {
	x.entries = next
	ResultPairs.Set(float64(len(next)))
}
