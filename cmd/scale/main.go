// Command scale downsamples the fine Cityscapes label masks of one split,
// reduces them to the 8 categories and saves them as a single tensor.
//
// Usage:
//
//	go run ./cmd/scale [flags] <root_path> <factor> <split>
//
// root_path holds the extracted leftImg8bit and gtFine archives, factor is
// the integer spatial downsample factor and split is one of train, val, test.
// The result is written to <out>/cityscapes_<split>_<1/factor>.tensor.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/Noofbiz/cityseg/artifact"
	"github.com/Noofbiz/cityseg/cityscapes"
	"github.com/Noofbiz/cityseg/preprocess"
	"k8s.io/klog/v2"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Downsample spatial and channel dimensions of cityscapes segmentations.\n\n")
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <root_path> <factor> <split>\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	outDir := flag.String("out", artifact.DefaultDir, "directory receiving the preprocessed tensor")
	workers := flag.Int("workers", 0, "number of workers remapping masks (0 = NumCPU)")
	progress := flag.Bool("progress", true, "show a progress bar")
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(2)
	}
	root := flag.Arg(0)
	factor, err := strconv.Atoi(flag.Arg(1))
	if err != nil || factor <= 0 {
		klog.Exitf("factor must be a positive integer, got %q", flag.Arg(1))
	}
	split := flag.Arg(2)
	if !cityscapes.ValidSplit(split) {
		klog.Exitf("split must be one of %v, got %q", cityscapes.Splits, split)
	}

	ds, err := cityscapes.New(root, split)
	if err != nil {
		klog.Exitf("failed to open cityscapes data: %v", err)
	}
	klog.Infof("Found %d %s samples under %s", ds.Len(), split, root)

	path, err := preprocess.Run(ds, preprocess.Options{
		Split:    split,
		Factor:   factor,
		OutDir:   *outDir,
		Workers:  *workers,
		Progress: *progress,
	})
	if err != nil {
		klog.Exitf("preprocessing failed: %v", err)
	}
	fmt.Println("saved to", path)
}
