// Package pipeline implements the driver loop described in
// SPEC_FULL.md §4.5, a direct restatement of run_pipeline.cpp's
// RunPipeline: bulk-enqueue windows, run a fixed worker pool, drain
// results in a single consumer loop, and flush the variant store in
// order behind a look-ahead barrier.
package pipeline

import (
	"math"

	"github.com/adamnovak/lancet2/assemble"
	"github.com/adamnovak/lancet2/genome"
)

// Params is the full configuration surface recognized by the core,
// matching SPEC_FULL.md §6's option table one-to-one.
type Params struct {
	ReferencePath string
	TumorPath     string
	NormalPath    string
	BamIndexPath  string

	InRegions   []string
	BedFilePath string

	RegionPadLength uint32
	WindowLength    uint32
	PctOverlap      uint32
	MaxIndelLength  int

	NumWorkerThreads int
	SkipTruncSeq     bool

	MinBaseQual      int
	MinMapQ          int
	FlagExclude      int
	MinTumorSupport  int
	MaxNormalSupport int

	OutVcfPath   string
	OutGraphsDir string
}

// DefaultParams returns a Params populated with the same defaults
// lancet2 ships with when a flag is left unset.
func DefaultParams() Params {
	return Params{
		RegionPadLength:  250,
		WindowLength:     600,
		PctOverlap:       50,
		MaxIndelLength:   500,
		NumWorkerThreads: 1,
		MinBaseQual:      10,
		MinMapQ:          15,
		MinTumorSupport:  3,
		MaxNormalSupport: 0,
	}
}

// WindowBuilderOpts projects the subset of Params the window builder
// needs.
func (p Params) WindowBuilderOpts() genome.BuilderOpts {
	return genome.BuilderOpts{
		RegionPadding: p.RegionPadLength,
		WindowLength:  p.WindowLength,
		PctOverlap:    p.PctOverlap,
		SkipTruncSeqs: p.SkipTruncSeq,
	}
}

// AssembleParams projects the subset of Params an Assembler needs.
func (p Params) AssembleParams() assemble.Params {
	return assemble.Params{
		MinBaseQual:      p.MinBaseQual,
		MinMapQ:          p.MinMapQ,
		FlagExclude:      p.FlagExclude,
		MinTumorSupport:  p.MinTumorSupport,
		MaxNormalSupport: p.MaxNormalSupport,
		MaxIndelLength:   p.MaxIndelLength,
		OutGraphsDir:     p.OutGraphsDir,
	}
}

// RequiredBufferWindows computes the look-ahead barrier width B from
// spec.md §4.4: B = ceil(3 * max(maxIndelLength, windowLength) / stepSize).
func (p Params) RequiredBufferWindows() uint64 {
	maxFlank := float64(p.MaxIndelLength)
	if wl := float64(p.WindowLength); wl > maxFlank {
		maxFlank = wl
	}
	step := float64(genome.StepSize(p.PctOverlap, p.WindowLength))
	return uint64(math.Ceil(3.0 * maxFlank / step))
}
