// Package assemble defines the micro-assembler worker contract the
// pipeline schedules windows through, plus the worker loop that drains
// the inbound window queue and reports to the outbound result queue. The
// actual De Bruijn-graph micro-assembler is out of scope (SPEC_FULL.md
// §1); this package also ships a deterministic reference-vs-read
// Assembler implementation so the pipeline is runnable end to end.
package assemble

import (
	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/variant"
)

// Params is the subset of the pipeline configuration an Assembler needs.
type Params struct {
	MinBaseQual     int
	MinMapQ         int
	FlagExclude     int
	MinTumorSupport int
	MaxNormalSupport int
	MaxIndelLength  int
	OutGraphsDir    string
}

// Assembler reconstructs a local assembly graph for one window and
// enumerates candidate somatic variants from it. Implementations must be:
//
//   - Deterministic: the same (window, params) always yields the same
//     candidate set.
//   - Self-contained: no cross-window state; callers may process windows
//     in any order, and concurrently.
//   - Non-aborting: internal failures are reported as an empty candidate
//     set plus a log message, never as a panic or process exit.
type Assembler interface {
	Process(w *genome.Window, p Params) []variant.Candidate
}
