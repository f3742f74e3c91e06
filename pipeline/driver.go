package pipeline

import (
	"io"
	"strings"
	"sync"

	"github.com/grailbio/base/log"

	"github.com/adamnovak/lancet2/assemble"
	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/queue"
	"github.com/adamnovak/lancet2/variant"
	"github.com/adamnovak/lancet2/variantstore"
	"github.com/adamnovak/lancet2/vcfio"
)

// SampleSource is the subset of AlignmentReader the driver needs to build
// a VCF header: its sample name(s).
type SampleSource interface {
	SampleNames() ([]string, error)
}

// Driver owns the pipeline core: it builds the window list, runs the
// worker pool, and drains results through the look-ahead flush described
// in SPEC_FULL.md §4.5. It is a direct, idiomatic-Go restatement of
// run_pipeline.cpp's RunPipeline.
type Driver struct {
	Ref          genome.ReferenceReader
	TumorReader  SampleSource
	NormalReader SampleSource
	Asm          assemble.Assembler
	Out          io.Writer
	Params       Params
}

func getSampleNames(r SampleSource, label string) (string, error) {
	names, err := r.SampleNames()
	if err != nil {
		return "", variant.Wrap(variant.IOError, err, "reading sample names from "+label)
	}
	if len(names) != 1 {
		return "", variant.Errorf(variant.InvalidInput,
			"expected exactly one sample name in %s, got %d (%s)", label, len(names), strings.Join(names, ","))
	}
	return names[0], nil
}

func (d *Driver) buildWindows(contigs genome.ContigTable) ([]*genome.Window, error) {
	wb := genome.NewWindowBuilder(d.Ref, d.Params.WindowBuilderOpts())
	for _, region := range d.Params.InRegions {
		if err := wb.AddRegion(region); err != nil {
			return nil, err
		}
	}
	if wb.IsEmpty() {
		if err := wb.AddAllContigs(); err != nil {
			return nil, err
		}
	}
	return wb.Build(contigs)
}

// Run executes the full pipeline: header construction, window build,
// worker pool, ordered look-ahead flush, and final drain. It returns once
// every window has been processed and flushed.
func (d *Driver) Run() error {
	tumorSample, err := getSampleNames(d.TumorReader, d.Params.TumorPath)
	if err != nil {
		return err
	}
	normalSample, err := getSampleNames(d.NormalReader, d.Params.NormalPath)
	if err != nil {
		return err
	}

	contigList, err := d.Ref.ContigsInfo()
	if err != nil {
		return variant.Wrap(variant.ReferenceError, err, "listing reference contigs")
	}
	names := make([]string, len(contigList))
	lengths := make([]genome.PosType, len(contigList))
	for i, c := range contigList {
		names[i] = c.Name
		lengths[i] = c.Length
	}
	contigs, err := genome.NewContigTable(names, lengths)
	if err != nil {
		return variant.Wrap(variant.ReferenceError, err, "building contig table")
	}

	windows, err := d.buildWindows(contigs)
	if err != nil {
		return err
	}
	total := len(windows)
	log.Printf("pipeline: processing %d windows with %d worker thread(s)", total, d.Params.NumWorkerThreads)

	header := vcfio.BuildHeader(contigList, tumorSample, normalSample)
	sink, err := vcfio.NewWriter(d.Out, header)
	if err != nil {
		return err
	}

	numBuf := int(d.Params.RequiredBufferWindows())
	store := variantstore.New()

	windowQ := queue.NewWindowQueue()
	resultQ := queue.NewResultQueue()
	windowQ.PushAll(windows)
	windowQ.Close()

	numWorkers := d.Params.NumWorkerThreads
	if numWorkers < 1 {
		numWorkers = 1
	}
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		w := &assemble.Worker{
			Asm:    d.Asm,
			Params: d.Params.AssembleParams(),
			InQ:    windowQ,
			OutQ:   resultQ,
		}
		go func() {
			defer wg.Done()
			w.Run()
		}()
	}
	// windowQ is already closed, so every worker drains it to completion
	// and returns on its own regardless of how Run exits below; deferring
	// the join here means every return path, including a fatal error from
	// store.Insert, FlushWindow, sink.Flush, FlushAll, or sink.Close,
	// still attempts to join running workers before the driver exits.
	defer wg.Wait()

	done := make([]bool, total)
	nextToFlush := 0
	completed := 0
	for completed < total {
		r := resultQ.Pop()
		if err := store.Insert(r); err != nil {
			return err
		}
		done[r.WindowIdx] = true
		completed++
		log.Printf("pipeline: progress %.3f%% | %d of %d done | window %d processed in %s",
			100.0*float64(completed)/float64(total), completed, total, r.WindowIdx, r.Runtime)

		for nextToFlush+numBuf <= total && allDone(done, nextToFlush, nextToFlush+numBuf) {
			flushed, ferr := store.FlushWindow(uint64(nextToFlush), sink, contigs)
			if ferr != nil {
				return ferr
			}
			if flushed {
				if ferr := sink.Flush(); ferr != nil {
					return ferr
				}
			}
			nextToFlush++
		}
	}

	if err := store.FlushAll(sink, contigs); err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}
	wg.Wait()
	log.Printf("pipeline: completed, %d windows, %d window results processed", total, completed)
	return nil
}

func allDone(done []bool, from, to int) bool {
	for i := from; i < to; i++ {
		if !done[i] {
			return false
		}
	}
	return true
}
