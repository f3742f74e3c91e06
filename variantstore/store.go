// Package variantstore implements the driver-only accumulation,
// cross-window deduplication, and ordered look-ahead flush described in
// SPEC_FULL.md §4.4. Store is not safe for concurrent use; the pipeline
// driver is its only caller (SPEC_FULL.md §5).
package variantstore

import (
	"sort"

	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/variant"
)

type pendingEntry struct {
	windowIdx uint64
	candidate variant.Candidate
}

// Store accumulates per-window candidates keyed by window index and
// flushes them in order once the pipeline driver's look-ahead barrier
// clears a window, deduplicating cross-window duplicates along the way.
//
// A key that arises from more than one still-unflushed window is owned by
// the earliest (lowest-index) window that produced it; flushing that
// window emits the strongest-evidence candidate seen for the key across
// every contributing window. This is what spec.md §4.4 describes as
// "move all candidates currently stored under keys {idx} ... and any
// equal-key duplicates".
type Store struct {
	inserted map[uint64]bool
	pending  map[variant.Key]*pendingEntry
	owned    map[uint64][]variant.Key
	seenKeys map[variant.Key]bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		inserted: map[uint64]bool{},
		pending:  map[variant.Key]*pendingEntry{},
		owned:    map[uint64][]variant.Key{},
		seenKeys: map[variant.Key]bool{},
	}
}

// Insert records a worker's result. Inserting twice for the same window
// index is a programmer error and reported as variant.InternalInvariant.
func (s *Store) Insert(r variant.WindowResult) error {
	if s.inserted[r.WindowIdx] {
		return variant.Errorf(variant.InternalInvariant, "variantstore: duplicate insert for window %d", r.WindowIdx)
	}
	s.inserted[r.WindowIdx] = true

	for _, c := range r.Variants {
		key := c.Key()
		if s.seenKeys[key] {
			// Already flushed under an earlier window; the emitted record
			// can't be retroactively improved.
			continue
		}
		existing, ok := s.pending[key]
		if !ok {
			s.pending[key] = &pendingEntry{windowIdx: r.WindowIdx, candidate: c}
			s.owned[r.WindowIdx] = append(s.owned[r.WindowIdx], key)
			continue
		}
		winner := existing.candidate
		if c.Evidence.Stronger(existing.candidate.Evidence) {
			winner = c
		}
		owner := existing.windowIdx
		if r.WindowIdx < owner {
			owner = r.WindowIdx
		}
		if owner != existing.windowIdx {
			s.owned[existing.windowIdx] = removeKey(s.owned[existing.windowIdx], key)
			s.owned[owner] = append(s.owned[owner], key)
		}
		s.pending[key] = &pendingEntry{windowIdx: owner, candidate: winner}
	}
	return nil
}

func removeKey(keys []variant.Key, target variant.Key) []variant.Key {
	for i, k := range keys {
		if k == target {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

// VcfSink is the subset of vcfio.Writer that the store needs to emit
// flushed candidates; matches the VcfWriter contract of spec.md §6.
type VcfSink interface {
	Write(c variant.Candidate) error
}

// FlushWindow moves every candidate owned by window idx into sink, after
// deduplicating against previously-flushed keys and sorting by
// (contigID, pos0, ref, alt). Returns true iff at least one candidate was
// emitted.
func (s *Store) FlushWindow(idx uint64, sink VcfSink, contigs genome.ContigTable) (bool, error) {
	keys := s.owned[idx]
	delete(s.owned, idx)
	if len(keys) == 0 {
		return false, nil
	}

	cands := make([]variant.Candidate, 0, len(keys))
	for _, k := range keys {
		e := s.pending[k]
		delete(s.pending, k)
		s.seenKeys[k] = true
		cands = append(cands, e.candidate)
	}

	sort.Slice(cands, func(i, j int) bool {
		return less(cands[i], cands[j], contigs)
	})
	for _, c := range cands {
		if err := sink.Write(c); err != nil {
			return false, err
		}
	}
	return true, nil
}

// FlushAll flushes every remaining owned window in ascending index order.
func (s *Store) FlushAll(sink VcfSink, contigs genome.ContigTable) error {
	idxs := make([]uint64, 0, len(s.owned))
	for idx := range s.owned {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	for _, idx := range idxs {
		if _, err := s.FlushWindow(idx, sink, contigs); err != nil {
			return err
		}
	}
	return nil
}

func less(a, b variant.Candidate, contigs genome.ContigTable) bool {
	aID, _ := contigs.ID(a.Contig)
	bID, _ := contigs.ID(b.Contig)
	if aID != bID {
		return aID < bID
	}
	if a.Pos0 != b.Pos0 {
		return a.Pos0 < b.Pos0
	}
	if string(a.Ref) != string(b.Ref) {
		return string(a.Ref) < string(b.Ref)
	}
	return string(a.Alt) < string(b.Alt)
}
