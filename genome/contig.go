package genome

import "fmt"

// Contig describes one reference sequence.
type Contig struct {
	Name   string
	ID     int
	Length PosType
}

// ContigTable is an immutable, ordered mapping from contig name to
// (id, length). The ID defines the global sort order of contigs used
// throughout the pipeline.
type ContigTable struct {
	contigs []Contig
	byName  map[string]int // name -> index into contigs
}

// NewContigTable builds a ContigTable from an ordered list of (name, length)
// pairs, such as returned by a ReferenceReader's ContigsInfo. The position
// in the input list becomes the contig's ID.
func NewContigTable(names []string, lengths []PosType) (ContigTable, error) {
	if len(names) != len(lengths) {
		return ContigTable{}, fmt.Errorf("genome: mismatched names (%d) and lengths (%d)", len(names), len(lengths))
	}
	t := ContigTable{
		contigs: make([]Contig, len(names)),
		byName:  make(map[string]int, len(names)),
	}
	for i, name := range names {
		if _, ok := t.byName[name]; ok {
			return ContigTable{}, fmt.Errorf("genome: duplicate contig name %q", name)
		}
		t.contigs[i] = Contig{Name: name, ID: i, Length: lengths[i]}
		t.byName[name] = i
	}
	return t, nil
}

// Len returns the number of contigs in the table.
func (t ContigTable) Len() int { return len(t.contigs) }

// Contigs returns the contigs in ID order. The caller must not modify the
// returned slice.
func (t ContigTable) Contigs() []Contig { return t.contigs }

// ID returns the ID of the named contig, and whether it was found.
func (t ContigTable) ID(name string) (int, bool) {
	idx, ok := t.byName[name]
	if !ok {
		return 0, false
	}
	return t.contigs[idx].ID, true
}

// Length returns the length of the named contig, and whether it was found.
func (t ContigTable) Length(name string) (PosType, bool) {
	idx, ok := t.byName[name]
	if !ok {
		return 0, false
	}
	return t.contigs[idx].Length, true
}

// Has reports whether name is a known contig.
func (t ContigTable) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}
