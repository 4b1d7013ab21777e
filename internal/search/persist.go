package search

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/suehn/scopy/internal/store"
)

// persistedSlot mirrors fuzzySlot with exported fields, since gob only
// encodes those. Tombstones are never persisted: a snapshot always reflects
// a clean, fully-reclaimed index as of Generation, matching the cold-start
// contract of spec §6.2/§4.5 (fuzzy_index.bin + a sha256 sidecar,
// re-derived rather than trusted blindly).
type persistedSlot struct {
	RowID       int64
	LowerText   string
	IsPinned    bool
	LastUsedAt  float64
	ItemType    store.ItemType
	AppBundleID string
}

type fuzzyIndexFile struct {
	Generation int64
	Slots      []persistedSlot
}

// snapshot captures the index's live (non-tombstoned) slots for disk
// persistence.
func (fi *fuzzyIndex) snapshot() fuzzyIndexFile {
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	out := fuzzyIndexFile{Generation: fi.generation}
	for _, s := range fi.slots {
		if s.tomb {
			continue
		}
		out.Slots = append(out.Slots, persistedSlot{
			RowID:       s.rowID,
			LowerText:   s.lowerText,
			IsPinned:    s.isPinned,
			LastUsedAt:  s.lastUsedAt,
			ItemType:    s.itemType,
			AppBundleID: s.appBundleID,
		})
	}
	return out
}

// restore rebuilds slots/postings/rowToSlot from a validated snapshot. The
// caller is responsible for checking the snapshot's Generation against the
// store's current mutation_seq before trusting it as non-stale; restore
// only loads what is on disk, it does not itself validate freshness.
func (fi *fuzzyIndex) restore(file fuzzyIndexFile) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	fi.slots = make([]fuzzySlot, 0, len(file.Slots))
	fi.postings = make(map[rune][]int32)
	fi.rowToSlot = make(map[int64]int32)
	fi.tombCount = 0

	for _, ps := range file.Slots {
		slot := fuzzySlot{
			rowID:       ps.RowID,
			lowerText:   ps.LowerText,
			isPinned:    ps.IsPinned,
			lastUsedAt:  ps.LastUsedAt,
			itemType:    ps.ItemType,
			appBundleID: ps.AppBundleID,
		}
		idx := int32(len(fi.slots))
		fi.slots = append(fi.slots, slot)
		fi.rowToSlot[ps.RowID] = idx
		fi.indexPostingsLocked(idx, slot.lowerText)
	}

	fi.generation = file.Generation
	fi.built = true
}

// saveSnapshot gob-encodes the index to binPath and writes a sha256 sidecar
// of the encoded bytes to sumPath, so a later load can detect truncation or
// tampering without re-deriving the whole index first.
func (fi *fuzzyIndex) saveSnapshot(binPath, sumPath string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(fi.snapshot()); err != nil {
		return fmt.Errorf("search: encoding fuzzy index snapshot: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	if err := os.WriteFile(binPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("search: writing fuzzy index snapshot: %w", err)
	}
	if err := os.WriteFile(sumPath, []byte(hex.EncodeToString(sum[:])), 0o644); err != nil {
		return fmt.Errorf("search: writing fuzzy index checksum: %w", err)
	}
	return nil
}

// loadSnapshot validates the sidecar checksum before decoding, and returns
// the snapshot's Generation so the caller can decide whether it is stale
// relative to the store's current mutation_seq.
func (fi *fuzzyIndex) loadSnapshot(binPath, sumPath string) (int64, error) {
	data, err := os.ReadFile(binPath)
	if err != nil {
		return 0, err
	}
	wantSum, err := os.ReadFile(sumPath)
	if err != nil {
		return 0, err
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != string(wantSum) {
		return 0, fmt.Errorf("search: fuzzy index checksum mismatch, discarding snapshot")
	}

	var file fuzzyIndexFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return 0, fmt.Errorf("search: decoding fuzzy index snapshot: %w", err)
	}

	fi.restore(file)
	return file.Generation, nil
}
