// Package alignio adapts the teacher's own BAM abstraction
// (encoding/bamprovider) into the minimal AlignmentReader contract the
// pipeline core relies on (SPEC_FULL.md §6): sample-name discovery, and
// iteration over the reads overlapping a genome.Interval.
package alignio

import (
	"github.com/biogo/hts/sam"

	gbam "github.com/adamnovak/lancet2/encoding/bam"
	"github.com/adamnovak/lancet2/encoding/bamprovider"
	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/variant"
)

// Iterator walks sam.Records in ascending coordinate order.
type Iterator interface {
	Scan() bool
	Record() *sam.Record
	Err() error
	Close() error
}

// Reader is the alignment-file side of the external AlignmentReader
// contract: one BAM file, one sample.
type Reader struct {
	provider bamprovider.Provider
	header   *sam.Header
}

// Open creates a Reader over the BAM file at path, using
// bamIndexPath as the index path if non-empty.
func Open(path, bamIndexPath string) (*Reader, error) {
	p := bamprovider.NewProvider(path, bamprovider.ProviderOpts{Index: bamIndexPath})
	header, err := p.GetHeader()
	if err != nil {
		return nil, variant.Wrap(variant.IOError, err, "reading alignment header from "+path)
	}
	return &Reader{provider: p, header: header}, nil
}

// SampleNames returns the distinct SM tags found across the file's read
// groups. The pipeline requires exactly one for each of the tumor and
// normal readers (SPEC_FULL.md §6).
func (r *Reader) SampleNames() ([]string, error) {
	seen := map[string]bool{}
	var names []string
	for _, rg := range r.header.RGs() {
		sm := rg.Sample()
		if sm == "" || seen[sm] {
			continue
		}
		seen[sm] = true
		names = append(names, sm)
	}
	return names, nil
}

// ReadsOverlapping returns an Iterator over reads overlapping iv.
func (r *Reader) ReadsOverlapping(iv genome.Interval) (Iterator, error) {
	var startRef, endRef *sam.Reference
	for _, ref := range r.header.Refs() {
		if ref.Name() == iv.Contig {
			startRef = ref
			endRef = ref
			break
		}
	}
	if startRef == nil {
		return nil, variant.Errorf(variant.InvalidInput, "alignio: unknown contig %q", iv.Contig)
	}
	shard := gbam.Shard{
		StartRef: startRef,
		EndRef:   endRef,
		Start:    int(iv.Start0),
		End:      int(iv.End0),
	}
	return r.provider.NewIterator(shard), nil
}

// Close releases the underlying provider.
func (r *Reader) Close() error {
	return r.provider.Close()
}
