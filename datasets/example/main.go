package main

// Example command that loads a preprocessed Cityscapes split and walks a few
// mini-batches the way a gomlx training loop would.
//
// Usage:
//   go run ./datasets/example
//
// Note: this example expects cityscapes_val_0.25.tensor under
// data/image/cityscapes. Create it with
//   go run ./cmd/scale <root_path> 4 val

import (
	"fmt"
	"io"

	"github.com/Noofbiz/cityseg/categories"
	"github.com/Noofbiz/cityseg/datasets"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"k8s.io/klog/v2"
)

func main() {
	cfg := datasets.DefaultConfig()
	ds, err := datasets.New(cfg)
	if err != nil {
		klog.Exitf("invalid config: %v", err)
	}
	loader, err := ds.Dataloader("val")
	if err != nil {
		klog.Exitf("failed to load val split: %v", err)
	}
	fmt.Printf("Loaded %d val examples, tensor format %v\n", ds.Len(), ds.TensorFormat())

	for i := 0; i < 3; i++ {
		_, inputs, labels, err := loader.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			klog.Exitf("failed to yield batch %d: %v", i, err)
		}
		fmt.Printf("Batch %d: targets %s, masks %s\n", i, inputs[0].Shape(), labels[0].Shape())

		// Show the soft target of the first pixel of the first example.
		c := cfg.NumClasses
		h, w := ds.SpatialDims()
		tensors.ConstFlatData[float32](inputs[0], func(flat []float32) {
			for ch := range c {
				fmt.Printf("  %-12s %.5f\n", categories.Name(ch), flat[ch*h*w])
			}
		})
	}
}
