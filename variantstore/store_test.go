package variantstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/variant"
)

type fakeSink struct {
	written []variant.Candidate
}

func (s *fakeSink) Write(c variant.Candidate) error {
	s.written = append(s.written, c)
	return nil
}

func mustContigs(t *testing.T) genome.ContigTable {
	t.Helper()
	ct, err := genome.NewContigTable([]string{"chr1", "chr2"}, []genome.PosType{1000, 1000})
	require.NoError(t, err)
	return ct
}

func cand(contig string, pos int64, ref, alt string, tumorSupport uint32) variant.Candidate {
	return variant.Candidate{
		Contig: contig, Pos0: pos, Ref: []byte(ref), Alt: []byte(alt),
		Evidence: variant.Evidence{TumorFwd: tumorSupport},
	}
}

func TestInsertDuplicateWindowIsInvariantError(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(variant.WindowResult{WindowIdx: 0}))
	err := s.Insert(variant.WindowResult{WindowIdx: 0})
	require.Error(t, err)
	assert.Equal(t, variant.InternalInvariant, variant.KindOf(err))
}

func TestFlushWindowOrdersByContigPosRefAlt(t *testing.T) {
	s := New()
	contigs := mustContigs(t)
	require.NoError(t, s.Insert(variant.WindowResult{WindowIdx: 0, Variants: []variant.Candidate{
		cand("chr1", 500, "A", "T", 5),
		cand("chr1", 100, "C", "G", 5),
		cand("chr2", 10, "A", "C", 5),
	}}))

	sink := &fakeSink{}
	flushed, err := s.FlushWindow(0, sink, contigs)
	require.NoError(t, err)
	assert.True(t, flushed)
	require.Len(t, sink.written, 3)
	assert.Equal(t, int64(100), sink.written[0].Pos0)
	assert.Equal(t, int64(500), sink.written[1].Pos0)
	assert.Equal(t, "chr2", sink.written[2].Contig)
}

// TestCrossWindowDedupKeepsStrongerEvidence reproduces spec.md's S4
// scenario: two overlapping windows both emit the same (contig,pos,ref,alt)
// key; only the stronger-evidence candidate survives to the sink.
func TestCrossWindowDedupKeepsStrongerEvidence(t *testing.T) {
	s := New()
	contigs := mustContigs(t)

	weak := cand("chr1", 1234, "A", "T", 3)
	strong := cand("chr1", 1234, "A", "T", 9)

	require.NoError(t, s.Insert(variant.WindowResult{WindowIdx: 0, Variants: []variant.Candidate{weak}}))
	require.NoError(t, s.Insert(variant.WindowResult{WindowIdx: 1, Variants: []variant.Candidate{strong}}))

	sink := &fakeSink{}
	flushed, err := s.FlushWindow(0, sink, contigs)
	require.NoError(t, err)
	assert.True(t, flushed)
	require.Len(t, sink.written, 1)
	assert.Equal(t, uint32(9), sink.written[0].Evidence.TumorFwd)

	// Window 1's own flush must not re-emit the already-flushed key.
	flushed, err = s.FlushWindow(1, sink, contigs)
	require.NoError(t, err)
	assert.False(t, flushed)
	assert.Len(t, sink.written, 1)
}

func TestFlushAllFlushesRemainingWindowsInOrder(t *testing.T) {
	s := New()
	contigs := mustContigs(t)
	require.NoError(t, s.Insert(variant.WindowResult{WindowIdx: 2, Variants: []variant.Candidate{cand("chr1", 5, "A", "C", 4)}}))
	require.NoError(t, s.Insert(variant.WindowResult{WindowIdx: 0, Variants: []variant.Candidate{cand("chr1", 1, "A", "G", 4)}}))
	require.NoError(t, s.Insert(variant.WindowResult{WindowIdx: 1}))

	sink := &fakeSink{}
	require.NoError(t, s.FlushAll(sink, contigs))
	require.Len(t, sink.written, 2)
	assert.Equal(t, int64(1), sink.written[0].Pos0)
	assert.Equal(t, int64(5), sink.written[1].Pos0)
}
