// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
lancet2 discovers somatic variants by comparing a tumor alignment against
a matched normal alignment over windows of a reference genome.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/adamnovak/lancet2/alignio"
	"github.com/adamnovak/lancet2/assemble"
	"github.com/adamnovak/lancet2/genome"
	"github.com/adamnovak/lancet2/pipeline"
	"github.com/adamnovak/lancet2/refio"
)

var defaults = pipeline.DefaultParams()

var (
	referencePath = flag.String("reference", "", "Indexed reference FASTA path (required)")
	tumorPath     = flag.String("tumor", "", "Tumor alignment (BAM) path (required)")
	normalPath    = flag.String("normal", "", "Normal alignment (BAM) path (required)")
	bamIndexPath  = flag.String("index", "", "Alignment index path, defaults to path + .bai")

	regions     = flag.String("region", "", "Comma-separated samtools-style region strings; combined with any -bed regions, restricts the run to part of the reference")
	bedPath     = flag.String("bed", "", "BED file of regions to process; combined with any -region strings")
	outVcfPath  = flag.String("out", "", "Output VCF path (required)")
	outGraphs   = flag.String("out-graphs-dir", "", "Optional per-window debug dump directory")

	regionPadLength = flag.Int("pad-length", int(defaults.RegionPadLength), "Symmetric padding applied to every input region, in bases")
	windowLength    = flag.Int("window-length", int(defaults.WindowLength), "Window length, in bases")
	pctOverlap      = flag.Int("pct-overlap", int(defaults.PctOverlap), "Percent overlap between successive windows, 0-99")
	maxIndelLength  = flag.Int("max-indel-len", defaults.MaxIndelLength, "Upper bound on indel length, used to size the flush look-ahead")
	numWorkers      = flag.Int("num-threads", defaults.NumWorkerThreads, "Number of micro-assembler worker goroutines")
	skipTruncSeq    = flag.Bool("skip-trunc-seq", false, "Drop windows whose reference sequence is truncated instead of aborting")

	minBaseQual      = flag.Int("min-base-qual", defaults.MinBaseQual, "Bases with quality below this value count toward raw coverage only, not toward base-quality-passing support")
	mapq             = flag.Int("mapq", defaults.MinMapQ, "Reads with MAPQ below this value are skipped")
	flagExclude      = flag.Int("flag-exclude", 0, "Reads with a FLAG bit intersecting this value are skipped")
	minTumorSupport  = flag.Int("min-tumor-support", defaults.MinTumorSupport, "Minimum base-quality-passing tumor read support to call a candidate")
	maxNormalSupport = flag.Int("max-normal-support", defaults.MaxNormalSupport, "Maximum base-quality-passing normal read support to still call a candidate")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -reference FASTA -tumor BAM -normal BAM -out OUT.vcf [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if *referencePath == "" || *tumorPath == "" || *normalPath == "" || *outVcfPath == "" {
		log.Fatalf("missing required flag(s); -reference, -tumor, -normal, and -out are all required")
	}

	params := pipeline.Params{
		ReferencePath:    *referencePath,
		TumorPath:        *tumorPath,
		NormalPath:       *normalPath,
		BamIndexPath:     *bamIndexPath,
		BedFilePath:      *bedPath,
		RegionPadLength:  uint32(*regionPadLength),
		WindowLength:     uint32(*windowLength),
		PctOverlap:       uint32(*pctOverlap),
		MaxIndelLength:   *maxIndelLength,
		NumWorkerThreads: *numWorkers,
		SkipTruncSeq:     *skipTruncSeq,
		MinBaseQual:      *minBaseQual,
		MinMapQ:          *mapq,
		FlagExclude:      *flagExclude,
		MinTumorSupport:  *minTumorSupport,
		MaxNormalSupport: *maxNormalSupport,
		OutVcfPath:       *outVcfPath,
		OutGraphsDir:     *outGraphs,
	}
	if *regions != "" {
		params.InRegions = strings.Split(*regions, ",")
	}

	ref, err := refio.Open(*referencePath, "")
	if err != nil {
		log.Fatalf("opening reference: %v", err)
	}
	defer ref.Close()

	if params.BedFilePath != "" {
		bedRegions, err := loadBED(params.BedFilePath)
		if err != nil {
			log.Fatalf("reading bed file %s: %v", params.BedFilePath, err)
		}
		params.InRegions = append(params.InRegions, regionsToStrings(bedRegions)...)
	}

	tumorReader, err := alignio.Open(*tumorPath, *bamIndexPath)
	if err != nil {
		log.Fatalf("opening tumor alignment %s: %v", *tumorPath, err)
	}
	defer tumorReader.Close()

	normalReader, err := alignio.Open(*normalPath, *bamIndexPath)
	if err != nil {
		log.Fatalf("opening normal alignment %s: %v", *normalPath, err)
	}
	defer normalReader.Close()

	if *outGraphs != "" {
		if err := os.MkdirAll(*outGraphs, 0o755); err != nil {
			log.Fatalf("creating out-graphs-dir %s: %v", *outGraphs, err)
		}
	}

	ctx := vcontext.Background()
	out, err := file.Create(ctx, *outVcfPath)
	if err != nil {
		log.Fatalf("creating output vcf %s: %v", *outVcfPath, err)
	}
	defer func() {
		if err := out.Close(ctx); err != nil {
			log.Fatalf("closing output vcf %s: %v", *outVcfPath, err)
		}
	}()

	asm := assemble.NewRefAssembler(tumorReader, normalReader)
	driver := &pipeline.Driver{
		Ref:          ref,
		TumorReader:  tumorReader,
		NormalReader: normalReader,
		Asm:          asm,
		Out:          out.Writer(ctx),
		Params:       params,
	}
	if err := driver.Run(); err != nil {
		log.Fatalf("lancet2: %v", err)
	}
}

func loadBED(path string) ([]genome.Interval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return genome.ParseBED(f)
}

func regionsToStrings(regions []genome.Interval) []string {
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i] = r.String()
	}
	return out
}
