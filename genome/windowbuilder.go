package genome

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/adamnovak/lancet2/variant"
)

// BuilderOpts configures WindowBuilder, mirroring the relevant subset of
// the pipeline's configuration table (SPEC_FULL.md §6).
type BuilderOpts struct {
	RegionPadding  uint32
	WindowLength   uint32
	PctOverlap     uint32 // 0 <= PctOverlap < 100
	SkipTruncSeqs  bool
}

// WindowBuilder turns user-supplied regions (samtools-style region
// strings and/or a BED file) into a deterministically ordered, padded,
// overlapping list of Windows with stable global indices.
type WindowBuilder struct {
	ref  ReferenceReader
	opts BuilderOpts

	inputRegions []Interval
}

// NewWindowBuilder creates an empty WindowBuilder reading sequence data
// from ref.
func NewWindowBuilder(ref ReferenceReader, opts BuilderOpts) *WindowBuilder {
	return &WindowBuilder{ref: ref, opts: opts}
}

// IsEmpty reports whether no regions have been added yet.
func (b *WindowBuilder) IsEmpty() bool { return len(b.inputRegions) == 0 }

// Size returns the number of input regions added so far (pre-tiling).
func (b *WindowBuilder) Size() int { return len(b.inputRegions) }

// AddRegion parses a samtools-style region string and adds it.
func (b *WindowBuilder) AddRegion(regionStr string) error {
	r, err := ParseRegion(regionStr)
	if err != nil {
		return err
	}
	b.inputRegions = append(b.inputRegions, r)
	return nil
}

// AddBEDFile reads 3-column BED regions from r and adds them.
func (b *WindowBuilder) AddBEDFile(r io.Reader) error {
	regions, err := ParseBED(r)
	if err != nil {
		return err
	}
	b.inputRegions = append(b.inputRegions, regions...)
	return nil
}

// AddAllContigs adds one region per reference contig, spanning
// [0, contigLen). Used when the caller supplied no regions at all.
func (b *WindowBuilder) AddAllContigs() error {
	contigs, err := b.ref.ContigsInfo()
	if err != nil {
		return variant.Wrap(variant.ReferenceError, err, "listing reference contigs")
	}
	for _, c := range contigs {
		b.inputRegions = append(b.inputRegions, Interval{Contig: c.Name, Start0: 0, End0: c.Length})
	}
	return nil
}

// ParseRegion parses a samtools-style region string
// "CONTIG[:START1[-END1]]" (1-based, inclusive) into a 0-based half-open
// Interval. A missing start defaults to 0; a missing end is reported as
// math.MaxInt64, a sentinel meaning "the contig's length", resolved later
// by PadWindow once the contig length is known.
func ParseRegion(regionStr string) (Interval, error) {
	tokens := strings.FieldsFunc(regionStr, func(r rune) bool { return r == ':' || r == '-' })
	if len(tokens) == 0 || len(tokens) > 3 {
		return Interval{}, variant.Errorf(variant.InvalidInput, "invalid samtools region string: %q", regionStr)
	}

	start := PosType(0)
	end := PosType(math.MaxInt64)

	if len(tokens) >= 2 {
		v, err := strconv.ParseInt(tokens[1], 10, 64)
		if err != nil {
			return Interval{}, variant.Errorf(variant.InvalidInput, "invalid region start in %q: %v", regionStr, err)
		}
		start = v - 1
		if start < 0 {
			start = 0
		}
	}
	if len(tokens) == 3 {
		v, err := strconv.ParseInt(tokens[2], 10, 64)
		if err != nil {
			return Interval{}, variant.Errorf(variant.InvalidInput, "invalid region end in %q: %v", regionStr, err)
		}
		end = v
	}

	return Interval{Contig: tokens[0], Start0: start, End0: end}, nil
}

// ParseBED parses tab-separated 3-column BED records (0-based half-open)
// from r. Any line that does not have exactly 3 columns is a fatal
// InvalidInput error reporting (lineNum, actualCount); columns 2 and 3
// must parse as base-10 integers.
func ParseBED(r io.Reader) ([]Interval, error) {
	var results []Interval
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 3 {
			return nil, variant.Errorf(variant.InvalidInput,
				"invalid bed line with %d columns at line num %d", len(cols), lineNum)
		}
		start, err := strconv.ParseInt(cols[1], 10, 64)
		if err != nil {
			return nil, variant.Errorf(variant.InvalidInput, "could not parse bed line %d: %v", lineNum, err)
		}
		end, err := strconv.ParseInt(cols[2], 10, 64)
		if err != nil {
			return nil, variant.Errorf(variant.InvalidInput, "could not parse bed line %d: %v", lineNum, err)
		}
		results = append(results, Interval{Contig: cols[0], Start0: start, End0: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, variant.Wrap(variant.InvalidInput, err, "reading bed file")
	}
	return results, nil
}

// StepSize returns the stride between successive window starts for the
// given overlap percentage and window length, rounded to the nearest
// multiple of 100 bp and floored at 1.
func StepSize(pctOverlap, windowLength uint32) PosType {
	raw := (float64(100-pctOverlap) / 100.0) * float64(windowLength)
	step := PosType(math.Round(raw/100.0) * 100.0)
	if step < 1 {
		step = 1
	}
	return step
}

// PadWindow returns w padded by b.opts.RegionPadding and clamped to
// [0, contigLen).
func (b *WindowBuilder) PadWindow(w Interval) (Interval, error) {
	ctgLen, err := b.ref.ContigLength(w.Contig)
	if err != nil {
		return Interval{}, variant.Wrap(variant.ReferenceError, err, fmt.Sprintf("contig length for %q", w.Contig))
	}

	padding := PosType(b.opts.RegionPadding)
	start := w.Start0
	end := w.End0
	if end == PosType(math.MaxInt64) || end > ctgLen {
		end = ctgLen
	}

	startUnderflows := start < padding
	endOverflows := end >= ctgLen || (ctgLen-end) < padding

	result := w
	if startUnderflows {
		result.Start0 = 0
	} else {
		result.Start0 = start - padding
	}
	if endOverflows {
		result.End0 = ctgLen
	} else {
		result.End0 = end + padding
	}
	return result, nil
}

// Build runs contig validation, padding, tiling, sequence fetch, and
// sort-and-index over every region added so far, producing the final,
// globally indexed window list. contigIDs supplies the sort order.
func (b *WindowBuilder) Build(contigIDs ContigTable) ([]*Window, error) {
	if b.IsEmpty() {
		return nil, variant.Errorf(variant.InvalidInput, "no input regions provided to build windows")
	}

	stepSize := StepSize(b.opts.PctOverlap, b.opts.WindowLength)
	windowLen := PosType(b.opts.WindowLength)

	var results []*Window
	for _, inRegion := range b.inputRegions {
		if !contigIDs.Has(inRegion.Contig) {
			return nil, variant.Errorf(variant.InvalidInput, "contig %q is not present in reference", inRegion.Contig)
		}

		padded, err := b.PadWindow(inRegion)
		if err != nil {
			return nil, err
		}

		if padded.Length() <= windowLen {
			results = append(results, &Window{Interval: padded})
			continue
		}

		maxWindowPos := inRegion.End0
		if maxWindowPos == PosType(math.MaxInt64) {
			if ctgLen, err := b.ref.ContigLength(inRegion.Contig); err == nil {
				maxWindowPos = ctgLen
			}
		}

		currStart := padded.Start0
		for currStart < maxWindowPos {
			w := &Window{Interval: Interval{
				Contig: padded.Contig,
				Start0: currStart,
				End0:   currStart + windowLen,
			}}
			results = append(results, w)
			currStart += stepSize
		}
	}

	// Fetch reference sequence for every window. List-level parallelism
	// over window construction (independent of, and prior to, the
	// pipeline's own worker concurrency).
	skipped := make([]bool, len(results))
	err := traverse.Each(len(results), func(i int) error {
		w := results[i]
		seq, err := b.ref.RegionSequence(w.Interval)
		if err != nil {
			if variant.IsTruncatedSequence(err) && b.opts.SkipTruncSeqs {
				log.Printf("genome: skipping window %s with truncated reference sequence", w.Interval)
				skipped[i] = true
				return nil
			}
			return err
		}
		w.Sequence = seq
		if w.Interval.Length() == windowLen && PosType(len(seq)) != windowLen {
			return variant.Errorf(variant.InternalInvariant,
				"window %s: expected sequence length %d, got %d", w.Interval, windowLen, len(seq))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kept := results[:0]
	for i, w := range results {
		if !skipped[i] {
			kept = append(kept, w)
		}
	}
	results = kept

	sort.Slice(results, func(i, j int) bool {
		ci, _ := contigIDs.ID(results[i].Interval.Contig)
		cj, _ := contigIDs.ID(results[j].Interval.Contig)
		if ci != cj {
			return ci < cj
		}
		if results[i].Interval.Start0 != results[j].Interval.Start0 {
			return results[i].Interval.Start0 < results[j].Interval.Start0
		}
		return results[i].Interval.End0 < results[j].Interval.End0
	})
	for i, w := range results {
		w.Index = uint64(i)
	}

	return results, nil
}
