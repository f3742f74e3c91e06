package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/log"

	"github.com/adamnovak/lancet2/alignio"
	gbam "github.com/adamnovak/lancet2/encoding/bam"
	"github.com/adamnovak/lancet2/biosimd"
	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/pileup"
	"github.com/adamnovak/lancet2/variant"
)

// RefAssembler is a deterministic, self-contained Assembler that stands
// in for the out-of-scope De Bruijn micro-assembler: it walks the tumor
// and normal reads overlapping a window, compares aligned bases against
// the window's reference sequence base by base (grounded on the
// read-vs-reference comparison idiom of pileup/snp's alignRelevantBases
// and pileup.GetStrand), and reports a candidate substitution wherever
// enough base-quality-passing tumor reads disagree with the reference and
// few enough normal reads do. It does not consider insertions or
// deletions; real indel assembly is out of scope (SPEC_FULL.md §1).
type RefAssembler struct {
	Tumor  *alignio.Reader
	Normal *alignio.Reader
}

// NewRefAssembler builds a RefAssembler over the given tumor/normal
// alignment readers.
func NewRefAssembler(tumor, normal *alignio.Reader) *RefAssembler {
	return &RefAssembler{Tumor: tumor, Normal: normal}
}

type tallyKey struct {
	pos0 int64
	alt  byte
}

type tallyEntry struct {
	candidate variant.Candidate
	qualSum   float64
	qualCount int
}

// Process implements Assembler.
func (a *RefAssembler) Process(w *genome.Window, p Params) (out []variant.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			log.Error.Printf("assemble: RefAssembler window %s: recovered from panic: %v", w, r)
			out = nil
		}
	}()

	tally := map[tallyKey]*tallyEntry{}
	if err := a.accumulate(w, p, a.Tumor, tally, true); err != nil {
		log.Error.Printf("assemble: window %s: tumor reads: %v", w, err)
		return nil
	}
	if err := a.accumulate(w, p, a.Normal, tally, false); err != nil {
		log.Error.Printf("assemble: window %s: normal reads: %v", w, err)
		return nil
	}

	keys := make([]tallyKey, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pos0 != keys[j].pos0 {
			return keys[i].pos0 < keys[j].pos0
		}
		return keys[i].alt < keys[j].alt
	})

	for _, k := range keys {
		ent := tally[k]
		ev := &ent.candidate.Evidence
		if ent.qualCount > 0 {
			ev.Qual = ent.qualSum / float64(ent.qualCount)
		}
		if int(ev.TumorSupport()) < p.MinTumorSupport {
			continue
		}
		if int(ev.NormalSupport()) > p.MaxNormalSupport {
			continue
		}
		out = append(out, ent.candidate)
	}

	if p.OutGraphsDir != "" {
		if err := dumpPileupSummary(p.OutGraphsDir, w, out); err != nil {
			log.Error.Printf("assemble: window %s: writing pileup summary: %v", w, err)
		}
	}
	return out
}

func (a *RefAssembler) accumulate(w *genome.Window, p Params, reader *alignio.Reader, tally map[tallyKey]*tallyEntry, isTumor bool) error {
	if reader == nil {
		return nil
	}
	it, err := reader.ReadsOverlapping(w.Interval)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Scan() {
		rec := it.Record()
		if p.FlagExclude&int(rec.Flags) != 0 {
			continue
		}
		if int(rec.MapQ) < p.MinMapQ {
			continue
		}
		if len(rec.Cigar) == 0 {
			continue
		}
		a.accumulateRead(w, p, rec, tally, isTumor)
	}
	return it.Err()
}

func (a *RefAssembler) accumulateRead(w *genome.Window, p Params, rec *sam.Record, tally map[tallyKey]*tallyEntry, isTumor bool) {
	packed := gbam.UnsafeDoubletsToBytes(rec.Seq.Seq)
	seq8 := make([]byte, rec.Seq.Length)
	biosimd.UnpackSeq(seq8, packed)
	quals := rec.Qual
	strand := pileup.GetStrand(rec)

	posInRef := int64(rec.Pos)
	posInRead := int64(0)
	for _, co := range rec.Cigar {
		length := int64(co.Len())
		switch co.Type() {
		case sam.CigarMatch:
			for i := int64(0); i < length; i++ {
				refPos := posInRef + i
				readIdx := posInRead + i
				if refPos >= w.Interval.Start0 && refPos < w.Interval.End0 {
					a.tallyBase(w, p, refPos, seq8[readIdx], quals[readIdx], strand, tally, isTumor)
				}
			}
			posInRef += length
			posInRead += length
		case sam.CigarInsertion:
			posInRead += length
		case sam.CigarSkipped, sam.CigarDeletion:
			posInRef += length
		case sam.CigarSoftClipped:
			posInRead += length
		case sam.CigarHardClipped:
		default:
		}
	}
}

func (a *RefAssembler) tallyBase(w *genome.Window, p Params, refPos int64, base8 byte, qual byte, strand pileup.StrandType, tally map[tallyKey]*tallyEntry, isTumor bool) {
	refOffset := refPos - w.Interval.Start0
	if refOffset < 0 || refOffset >= int64(len(w.Sequence)) {
		return
	}
	refChar := w.Sequence[refOffset]
	baseEnum := pileup.Seq8ToEnumTable[base8]
	altChar := pileup.EnumToASCIITable[baseEnum]
	if altChar == 'N' || altChar == refChar {
		return
	}

	key := tallyKey{pos0: refPos, alt: altChar}
	ent, ok := tally[key]
	if !ok {
		ent = &tallyEntry{candidate: variant.Candidate{
			Contig: w.Interval.Contig,
			Pos0:   refPos,
			Ref:    []byte{refChar},
			Alt:    []byte{altChar},
		}}
		tally[key] = ent
	}
	fwd := strand != pileup.StrandRev
	var delta variant.Evidence
	switch {
	case isTumor && fwd:
		delta.TumorFwdRaw = 1
	case isTumor && !fwd:
		delta.TumorRevRaw = 1
	case !isTumor && fwd:
		delta.NormalFwdRaw = 1
	default:
		delta.NormalRevRaw = 1
	}
	if int(qual) >= p.MinBaseQual {
		switch {
		case isTumor && fwd:
			delta.TumorFwd = 1
		case isTumor && !fwd:
			delta.TumorRev = 1
		case !isTumor && fwd:
			delta.NormalFwd = 1
		default:
			delta.NormalRev = 1
		}
		ent.qualSum += float64(qual)
		ent.qualCount++
	}
	ent.candidate.Evidence.Merge(delta)
}

// dumpPileupSummary writes a plain-text stand-in for the real
// micro-assembler's De Bruijn graph dump: one line per emitted candidate.
// Named <windowIdx>.pileup.txt since no graph exists to dump here.
func dumpPileupSummary(dir string, w *genome.Window, out []variant.Candidate) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.pileup.txt", w.Index))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "# window %s\n", w.Interval.String())
	for _, c := range out {
		fmt.Fprintf(f, "%s\t%d\t%s\t%s\ttumor=%d/%d\tnormal=%d/%d\n",
			c.Contig, c.Pos0+1, c.Ref, c.Alt,
			c.Evidence.TumorFwd, c.Evidence.TumorRev, c.Evidence.NormalFwd, c.Evidence.NormalRev)
	}
	return nil
}
