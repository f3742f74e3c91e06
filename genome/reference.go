package genome

// ReferenceReader is the external collaborator that gives the window
// builder (and, indirectly, the reference assembler) random access to the
// reference FASTA. Implementations live outside this package (see
// package refio); the core only depends on this contract.
type ReferenceReader interface {
	// ContigsInfo returns the ordered list of (name, length) pairs that
	// defines the global contig sort order.
	ContigsInfo() ([]Contig, error)

	// ContigLength returns the length of the named contig.
	ContigLength(name string) (PosType, error)

	// RegionSequence returns the reference bases over r. Implementations
	// must return an error wrapping variant.ErrTruncatedSequence (so that
	// variant.IsTruncatedSequence(err) holds) when the contig sequence on
	// disk is truncated relative to its declared length.
	RegionSequence(r Interval) ([]byte, error)
}
