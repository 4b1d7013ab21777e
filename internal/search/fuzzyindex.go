package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/suehn/scopy/internal/store"
)

// fuzzySlot is one entry in the fuzzy index's dense array. A tombstoned
// slot keeps its text and its posting entries but has tomb set, so scoring
// skips it; the slot itself is not compacted out (spec §3.1: "implement as dense
// arrays + integer indexes, not as owning pointers; tombstones are None
// entries").
type fuzzySlot struct {
	rowID       int64
	lowerText   string
	isPinned    bool
	lastUsedAt  float64
	itemType    store.ItemType
	appBundleID string
	tomb        bool
}

// fuzzyIndex is the hand-rolled in-memory structure spec §3.1/§4.5 mandate:
// a dense slot array plus per-character posting lists, so candidate
// generation is a sorted-set intersection rather than a full scan. No pack
// library provides subsequence scoring over a custom tokenizer, so this
// part is necessarily hand-built (see DESIGN.md).
type fuzzyIndex struct {
	mu         sync.RWMutex
	slots      []fuzzySlot
	postings   map[rune][]int32 // char -> sorted slot indices
	rowToSlot  map[int64]int32
	generation int64 // mutation_seq this index reflects
	tombCount  int
	built      bool
}

func newFuzzyIndex() *fuzzyIndex {
	return &fuzzyIndex{
		postings:  make(map[rune][]int32),
		rowToSlot: make(map[int64]int32),
	}
}

// build streams the full live corpus from the read store, in row_id order,
// and constructs slots + postings from scratch. Takes ≤ 30s per spec's
// first-build deadline; the caller is responsible for enforcing that.
func (fi *fuzzyIndex) build(ctx context.Context, rs *store.ReadStore, generation int64) error {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	fi.slots = fi.slots[:0]
	fi.postings = make(map[rune][]int32)
	fi.rowToSlot = make(map[int64]int32)
	fi.tombCount = 0

	err := rs.StreamAll(ctx, func(item store.Item) error {
		fi.appendLocked(item)
		return nil
	})
	if err != nil {
		fi.built = false
		return err
	}

	fi.generation = generation
	fi.built = true
	return nil
}

func (fi *fuzzyIndex) appendLocked(item store.Item) {
	slot := fuzzySlot{
		rowID:       item.RowID,
		lowerText:   strings.ToLower(item.PlainText),
		isPinned:    item.IsPinned,
		lastUsedAt:  item.LastUsedAt,
		itemType:    item.Type,
		appBundleID: item.AppBundleID,
	}
	idx := int32(len(fi.slots))
	fi.slots = append(fi.slots, slot)
	fi.rowToSlot[item.RowID] = idx
	fi.indexPostingsLocked(idx, slot.lowerText)
}

func (fi *fuzzyIndex) indexPostingsLocked(idx int32, lowerText string) {
	seen := make(map[rune]bool)
	for _, r := range lowerText {
		if unicode.IsSpace(r) || seen[r] {
			continue
		}
		seen[r] = true
		fi.postings[r] = insertSorted(fi.postings[r], idx)
	}
}

func insertSorted(list []int32, v int32) []int32 {
	i := sort.Search(len(list), func(i int) bool { return list[i] >= v })
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

// upsert implements the incremental-update rules of spec §4.5: an
// insert/update of an Item appends a new slot (tombstoning any prior slot
// for the same row_id, since postings removal is expensive and tombstones
// are cheap).
func (fi *fuzzyIndex) upsert(item store.Item) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	if prevIdx, ok := fi.rowToSlot[item.RowID]; ok {
		fi.tombstoneLocked(prevIdx)
	}
	fi.appendLocked(item)
}

// pin updates a live slot's pinned flag in place, without appending a new
// slot (spec: "pin change: in-place update").
func (fi *fuzzyIndex) pin(rowID int64, isPinned bool) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	if idx, ok := fi.rowToSlot[rowID]; ok {
		fi.slots[idx].isPinned = isPinned
	}
}

// tombstone marks rowID's slot deleted.
func (fi *fuzzyIndex) tombstone(rowID int64) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	if idx, ok := fi.rowToSlot[rowID]; ok {
		fi.tombstoneLocked(idx)
	}
}

func (fi *fuzzyIndex) tombstoneLocked(idx int32) {
	if fi.slots[idx].tomb {
		return
	}
	fi.slots[idx].tomb = true
	fi.tombCount++
	delete(fi.rowToSlot, fi.slots[idx].rowID)
}

// clear empties the index (spec: "clearAll: rebuild from scratch").
func (fi *fuzzyIndex) clear() {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.slots = nil
	fi.postings = make(map[rune][]int32)
	fi.rowToSlot = make(map[int64]int32)
	fi.tombCount = 0
}

// isStale reports whether the tombstone ratio has crossed the reclamation
// threshold, or the index was never built.
func (fi *fuzzyIndex) isStale(thresholdRatio float64) bool {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	if !fi.built || len(fi.slots) == 0 {
		return !fi.built
	}
	return float64(fi.tombCount)/float64(len(fi.slots)) > thresholdRatio
}

// Size and Tombstones implement metrics.FuzzyIndexStats.
func (fi *fuzzyIndex) Size() int {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return len(fi.slots)
}

func (fi *fuzzyIndex) Tombstones() int {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return fi.tombCount
}

// candidateSlots intersects the posting lists for every unique non-
// whitespace rune of the (already lowercased) query, returning a sorted
// slice of slot indices. An empty query (or one containing only
// whitespace) has no candidates.
func (fi *fuzzyIndex) candidateSlots(lowerQuery string) []int32 {
	chars := uniqueNonSpaceRunes(lowerQuery)
	if len(chars) == 0 {
		return nil
	}

	lists := make([][]int32, 0, len(chars))
	for _, c := range chars {
		list := fi.postings[c]
		if len(list) == 0 {
			return nil // a required character has no postings at all
		}
		lists = append(lists, list)
	}

	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })

	candidates := lists[0]
	for _, list := range lists[1:] {
		candidates = intersectSorted(candidates, list)
		if len(candidates) == 0 {
			return nil
		}
	}
	return candidates
}

func intersectSorted(a, b []int32) []int32 {
	result := make([]int32, 0, minInt(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			result = append(result, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return result
}

func uniqueNonSpaceRunes(s string) []rune {
	seen := make(map[rune]bool)
	var out []rune
	for _, r := range s {
		if unicode.IsSpace(r) || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// scoredMatch is one fuzzy/fuzzy_plus hit, carrying just enough to sort and
// render an ItemSummary without a second trip to the store.
type scoredMatch struct {
	rowID      int64
	isPinned   bool
	lastUsedAt float64
	score      float64
}

// allSlotsCount returns the number of slots (live and tombstoned). The
// ≥ 6000 prefilter decision does not use it; it counts a query's candidate
// slots instead.
func (fi *fuzzyIndex) allSlotsCount() int {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return len(fi.slots)
}

// scoreCandidates runs scorer over every live, filter-passing candidate
// slot and returns the matches, checking ctx for cancellation between
// candidates so a pathological pattern can't block a cancelled request.
func (fi *fuzzyIndex) scoreCandidates(
	ctx context.Context,
	candidates []int32,
	typeFilter store.ItemType,
	appFilter string,
	scorer func(lowerText string) (float64, bool),
) ([]scoredMatch, error) {
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	matches := make([]scoredMatch, 0, len(candidates))
	for i, idx := range candidates {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slot := fi.slots[idx]
		if slot.tomb {
			continue
		}
		if typeFilter != "" && slot.itemType != typeFilter {
			continue
		}
		if appFilter != "" && slot.appBundleID != appFilter {
			continue
		}
		score, ok := scorer(slot.lowerText)
		if !ok {
			continue
		}
		matches = append(matches, scoredMatch{
			rowID:      slot.rowID,
			isPinned:   slot.isPinned,
			lastUsedAt: slot.lastUsedAt,
			score:      score,
		})
	}
	return matches, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
