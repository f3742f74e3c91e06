// Package vcfio implements the driver-only VcfWriter sink (SPEC_FULL.md
// §6). VCF text is itself tab-separated, so like the teacher's own
// pileup/snp output writer, it is produced with github.com/grailbio/base/tsv
// rather than fmt.Fprintf.
package vcfio

import (
	"fmt"
	"io"

	"github.com/grailbio/base/tsv"

	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/variant"
)

// Header holds the contig dictionary and sample names needed to render a
// VCF's meta-information and #CHROM line. Build it once per run with
// BuildHeader and pass it to NewWriter.
type Header struct {
	Contigs      []genome.Contig
	TumorSample  string
	NormalSample string
}

// BuildHeader assembles a Header from the reference's contig table and the
// two sample names discovered from the tumor and normal AlignmentReaders.
func BuildHeader(contigs []genome.Contig, tumorSample, normalSample string) Header {
	return Header{Contigs: contigs, TumorSample: tumorSample, NormalSample: normalSample}
}

// Writer is the concrete VcfWriter: a single-goroutine, ordered sink that
// the driver calls Write/Flush/Close on after each look-ahead flush.
type Writer struct {
	tsvw *tsv.Writer
	raw  io.Writer
}

// NewWriter wraps w and immediately emits the VCF meta-information and
// #CHROM header line.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	vw := &Writer{tsvw: tsv.NewWriter(w), raw: w}
	if err := vw.writeHeader(h); err != nil {
		return nil, variant.Wrap(variant.IOError, err, "writing VCF header")
	}
	return vw, nil
}

func (vw *Writer) writeHeader(h Header) error {
	lines := []string{
		"##fileformat=VCFv4.2",
		`##INFO=<ID=TUMOR_FWD,Number=1,Type=Integer,Description="Tumor forward-strand supporting reads">`,
		`##INFO=<ID=TUMOR_REV,Number=1,Type=Integer,Description="Tumor reverse-strand supporting reads">`,
		`##INFO=<ID=NORMAL_FWD,Number=1,Type=Integer,Description="Normal forward-strand supporting reads">`,
		`##INFO=<ID=NORMAL_REV,Number=1,Type=Integer,Description="Normal reverse-strand supporting reads">`,
		`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`,
		`##FORMAT=<ID=AD,Number=2,Type=Integer,Description="Allele depths: reference,alternate">`,
	}
	for _, c := range h.Contigs {
		lines = append(lines, fmt.Sprintf("##contig=<ID=%s,length=%d>", c.Name, c.Length))
	}
	for _, l := range lines {
		vw.tsvw.WriteString(l)
		if err := vw.tsvw.EndLine(); err != nil {
			return err
		}
	}
	vw.tsvw.WriteString("#CHROM")
	vw.tsvw.WriteString("POS")
	vw.tsvw.WriteString("ID")
	vw.tsvw.WriteString("REF")
	vw.tsvw.WriteString("ALT")
	vw.tsvw.WriteString("QUAL")
	vw.tsvw.WriteString("FILTER")
	vw.tsvw.WriteString("INFO")
	vw.tsvw.WriteString("FORMAT")
	vw.tsvw.WriteString(h.NormalSample)
	vw.tsvw.WriteString(h.TumorSample)
	return vw.tsvw.EndLine()
}

// Write emits one variant record. The caller is responsible for ordering
// calls by (contig, pos0, ref, alt); Write does not sort.
func (vw *Writer) Write(c variant.Candidate) error {
	ev := c.Evidence
	info := fmt.Sprintf("TUMOR_FWD=%d;TUMOR_REV=%d;NORMAL_FWD=%d;NORMAL_REV=%d",
		ev.TumorFwd, ev.TumorRev, ev.NormalFwd, ev.NormalRev)
	normalFmt := fmt.Sprintf("0/1:%d,%d", ev.NormalFwd+ev.NormalRev, 0)
	tumorFmt := fmt.Sprintf("0/1:%d,%d", 0, ev.TumorFwd+ev.TumorRev)

	vw.tsvw.WriteString(c.Contig)
	vw.tsvw.WriteUint32(uint32(c.Pos0 + 1))
	vw.tsvw.WriteString(".")
	vw.tsvw.WriteString(string(c.Ref))
	vw.tsvw.WriteString(string(c.Alt))
	vw.tsvw.WriteString(fmt.Sprintf("%.2f", ev.Qual))
	vw.tsvw.WriteString("PASS")
	vw.tsvw.WriteString(info)
	vw.tsvw.WriteString("GT:AD")
	vw.tsvw.WriteString(normalFmt)
	vw.tsvw.WriteString(tumorFmt)
	return vw.tsvw.EndLine()
}

// Flush pushes any buffered output to the underlying writer.
func (vw *Writer) Flush() error {
	return vw.tsvw.Flush()
}

// Close flushes and, if the underlying writer supports it, closes it.
func (vw *Writer) Close() error {
	if err := vw.Flush(); err != nil {
		return err
	}
	if c, ok := vw.raw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
