package genome

// Window is a reference window: a genomic interval, its global schedule
// index, and the reference bases over that interval. The index is
// assigned once, at sort time, by WindowBuilder.Build, and uniquely
// identifies the window for the lifetime of the run.
type Window struct {
	Interval Interval
	Index    uint64
	Sequence []byte
}

// Contig is a convenience accessor for w.Interval.Contig.
func (w *Window) Contig() string { return w.Interval.Contig }

// String renders a debug/region string for w, e.g. for progress logging.
func (w *Window) String() string { return w.Interval.String() }
