package variant

// Evidence holds per-sample, strand-stratified read support for a
// candidate variant, plus enough auxiliary information for VCF emission.
// The BQPass fields count only base-quality-passing reads; the Raw fields
// count every read regardless of quality, mirroring the
// BQPassTotalCov/RawTotalCov split computed per k-mer node in the original
// assembler (see node.cpp's Node::MinSampleBaseCov).
type Evidence struct {
	TumorFwd, TumorRev   uint32
	NormalFwd, NormalRev uint32

	TumorFwdRaw, TumorRevRaw   uint32
	NormalFwdRaw, NormalRevRaw uint32

	// Qual is the mean base quality (phred) of the reads backing TumorFwd+TumorRev.
	Qual float64
}

// TumorSupport returns the total base-quality-passing tumor support.
func (e Evidence) TumorSupport() uint32 { return e.TumorFwd + e.TumorRev }

// NormalSupport returns the total base-quality-passing normal support.
func (e Evidence) NormalSupport() uint32 { return e.NormalFwd + e.NormalRev }

// TotalSupport returns the total base-quality-passing support across
// both samples; this is the primary "stronger evidence" ranking used by
// variantstore.Store during cross-window deduplication.
func (e Evidence) TotalSupport() uint32 { return e.TumorSupport() + e.NormalSupport() }

// Stronger reports whether e is strictly stronger evidence than other,
// using the tie-break chain fixed by SPEC_FULL.md: higher total support,
// then higher tumor support, then higher normal support.
func (e Evidence) Stronger(other Evidence) bool {
	if e.TotalSupport() != other.TotalSupport() {
		return e.TotalSupport() > other.TotalSupport()
	}
	if e.TumorSupport() != other.TumorSupport() {
		return e.TumorSupport() > other.TumorSupport()
	}
	return e.NormalSupport() > other.NormalSupport()
}

// Merge adds o's counters into e. assemble.RefAssembler's tallyBase calls
// this once per observed base, with o holding the single strand/quality
// bucket that base falls into, to accumulate per-read observations into
// one Evidence value for a candidate.
func (e *Evidence) Merge(o Evidence) {
	e.TumorFwd += o.TumorFwd
	e.TumorRev += o.TumorRev
	e.NormalFwd += o.NormalFwd
	e.NormalRev += o.NormalRev
	e.TumorFwdRaw += o.TumorFwdRaw
	e.TumorRevRaw += o.TumorRevRaw
	e.NormalFwdRaw += o.NormalFwdRaw
	e.NormalRevRaw += o.NormalRevRaw
}
