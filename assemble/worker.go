package assemble

import (
	"time"

	"github.com/grailbio/base/log"

	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/queue"
	"github.com/adamnovak/lancet2/variant"
)

// Worker repeatedly pops windows off inQ, runs them through asm, and
// pushes a variant.WindowResult onto outQ, until inQ is drained and
// closed. It never returns an error: a panicking or misbehaving Assembler
// degrades to an empty result for that window, so the driver's
// completion count always advances monotonically (SPEC_FULL.md §7).
type Worker struct {
	Asm    Assembler
	Params Params
	InQ    *queue.WindowQueue
	OutQ   *queue.ResultQueue
}

// Run drains InQ until it is closed and empty. Safe to call from any
// number of goroutines sharing the same queues.
func (w *Worker) Run() {
	for {
		win, ok := w.InQ.Pop()
		if !ok {
			return
		}
		w.OutQ.Push(w.processOne(win))
	}
}

func (w *Worker) processOne(win *genome.Window) (result variant.WindowResult) {
	start := time.Now()
	result.WindowIdx = win.Index
	defer func() {
		if r := recover(); r != nil {
			log.Error.Printf("assemble: window %s: recovered from panic: %v", win, r)
			result.Variants = nil
		}
		result.Runtime = time.Since(start)
	}()
	result.Variants = w.Asm.Process(win, w.Params)
	return result
}
