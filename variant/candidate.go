package variant

import "time"

// Key uniquely identifies a candidate variant for deduplication purposes.
// Go hashes comparable struct keys by value, not by address, which
// satisfies the Design Notes' requirement of a stable, reproducible hash
// without pulling in a separate hashing dependency.
type Key struct {
	Contig string
	Pos0   int64
	Ref    string
	Alt    string
}

// Candidate is a single somatic variant call proposed by a window's
// assembler, with evidence sufficient for VCF emission. Two candidates
// are equal iff their Key matches.
type Candidate struct {
	Contig   string
	Pos0     int64
	Ref      []byte
	Alt      []byte
	Evidence Evidence
}

// Key returns the deduplication key for c.
func (c Candidate) Key() Key {
	return Key{Contig: c.Contig, Pos0: c.Pos0, Ref: string(c.Ref), Alt: string(c.Alt)}
}

// WindowResult is what a worker reports after processing one window: the
// window's stable index, the candidates it produced (possibly empty), and
// how long assembly took.
type WindowResult struct {
	WindowIdx uint64
	Variants  []Candidate
	Runtime   time.Duration
}
