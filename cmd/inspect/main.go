// Command inspect loads a preprocessed split through the dataset loader,
// checks that every yielded target lies inside the probability simplex and
// decodes back to its mask, and can render a category preview of one sample.
//
// Usage:
//
//	go run ./cmd/inspect -split val -scale 0.25 -preview plots/val_0.png
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Noofbiz/cityseg/datasets"
	"github.com/Noofbiz/cityseg/transforms"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", "", "path to JSON dataset config (optional)")
	split := flag.String("split", "val", "split to inspect: train, val or test")
	scale := flag.Float64("scale", 0.25, "scale of the preprocessed artifact (overrides JSON if provided)")
	dataDir := flag.String("data-dir", "", "directory holding preprocessed artifacts (overrides JSON if provided)")
	smoothing := flag.Float64("smoothing", 0.01, "simplex smoothing (overrides JSON if provided)")
	batchSize := flag.Int("batch-size", 8, "batch size (overrides JSON if provided)")
	maxBatches := flag.Int("max-batches", 0, "stop after this many batches (0 = whole split)")
	tol := flag.Float64("tol", 1e-6, "tolerance for the channel sum check")
	preview := flag.String("preview", "", "if set, write a category preview PNG of one sample to this path")
	previewIndex := flag.Int("preview-index", 0, "index of the sample to preview")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")
	flag.Parse()
	defer klog.Flush()

	cfg := datasets.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = datasets.LoadConfig(*configPath)
		if err != nil {
			klog.Exitf("failed to load config %s: %v", *configPath, err)
		}
		klog.Infof("Loaded dataset config from %s", *configPath)
	}
	// Only flags given on the command line override the JSON values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scale":
			cfg.Scale = *scale
		case "data-dir":
			cfg.DataDir = *dataDir
		case "smoothing":
			cfg.Smoothing = *smoothing
		case "batch-size":
			cfg.BatchSize = *batchSize
		}
	})

	if *printEffectiveConfig {
		out, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(out))
		return
	}

	ds, err := datasets.New(cfg)
	if err != nil {
		klog.Exitf("invalid configuration: %v", err)
	}
	loader, err := ds.Dataloader(*split)
	if err != nil {
		klog.Exitf("%v", err)
	}
	klog.Infof("Loaded %d %s examples, tensor format %v", ds.Len(), *split, ds.TensorFormat())

	start := time.Now()
	batches, examples, err := check(loader, *maxBatches, *tol)
	if err != nil {
		klog.Exitf("check failed after %d batches: %v", batches, err)
	}
	h, w := ds.SpatialDims()
	bytes := uint64(examples * cfg.NumClasses * h * w * 4)
	klog.Infof("Checked %d batches (%d examples, %s of targets) in %v", batches, examples, humanize.Bytes(bytes), time.Since(start))

	if *preview != "" {
		mask, err := ds.Labels(*previewIndex)
		if err != nil {
			klog.Exitf("failed to read sample %d: %v", *previewIndex, err)
		}
		title := fmt.Sprintf("cityscapes %s #%d (scale %g)", *split, *previewIndex, cfg.Scale)
		if err := plotMask(*preview, title, mask); err != nil {
			klog.Exitf("failed to write preview: %v", err)
		}
		klog.Infof("Preview written to %s", *preview)
	}
	fmt.Printf("ok: %d examples of %s\n", examples, *split)
}

// check yields batches until EOF or maxBatches and verifies every target
// against the simplex invariants and its source mask.
func check(loader *datasets.Loader, maxBatches int, tol float64) (batches, examples int, err error) {
	for maxBatches <= 0 || batches < maxBatches {
		_, inputs, labels, err := loader.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return batches, examples, err
		}
		if err := transforms.CheckSimplex(inputs[0], true, tol); err != nil {
			return batches, examples, errors.WithMessagef(err, "batch %d", batches)
		}
		if err := checkDecodes(inputs[0], labels[0]); err != nil {
			return batches, examples, errors.WithMessagef(err, "batch %d", batches)
		}
		batches++
		examples += inputs[0].Shape().Dimensions[0]
	}
	return batches, examples, nil
}

// checkDecodes verifies that the argmax of each target in a [B, C, H, W]
// batch equals its [B, H, W] mask.
func checkDecodes(targets, masks *tensors.Tensor) error {
	dims := targets.Shape().Dimensions
	b, c, h, w := dims[0], dims[1], dims[2], dims[3]
	size := c * h * w
	var err error
	tensors.ConstFlatData[float32](targets, func(flatTargets []float32) {
		tensors.ConstFlatData[int32](masks, func(flatMasks []int32) {
			for i := 0; i < b && err == nil; i++ {
				sample := make([]float32, size)
				copy(sample, flatTargets[i*size:(i+1)*size])
				decoded, derr := transforms.Decode(tensors.FromFlatDataAndDimensions(sample, c, h, w))
				if derr != nil {
					err = derr
					return
				}
				want := flatMasks[i*h*w : (i+1)*h*w]
				tensors.ConstFlatData[int32](decoded, func(got []int32) {
					for p := range got {
						if got[p] != want[p] {
							err = errors.Errorf("entry %d position %d decodes to %d, mask holds %d", i, p, got[p], want[p])
							return
						}
					}
				})
			}
		})
	})
	return err
}
