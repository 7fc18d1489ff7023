// Package preprocess builds the persisted label tensor for one split: every
// raw label mask is downscaled, reduced to categories and stacked into an
// int32 [N, H, W] tensor that is written once per (split, scale).
package preprocess

import (
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Noofbiz/cityseg/artifact"
	"github.com/Noofbiz/cityseg/categories"
	"github.com/Noofbiz/cityseg/rescale"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Source gives index-based access to raw label masks. Label must be safe to
// call from several goroutines.
type Source interface {
	Len() int
	Label(i int) (*image.Gray, error)
}

// Options controls a preprocessing run.
type Options struct {
	// Split names the data split, used in the artifact name.
	Split string

	// Factor is the integer downsample factor; the scale is 1/Factor.
	Factor int

	// OutDir receives the artifact. Defaults to artifact.DefaultDir.
	OutDir string

	// Workers is the number of goroutines remapping samples. 0 means NumCPU.
	Workers int

	// Progress shows a progress bar on stderr.
	Progress bool
}

// Run preprocesses src and writes the artifact. It returns the artifact path.
// Any failure aborts the run before anything is written.
func Run(src Source, opts Options) (string, error) {
	if opts.Factor <= 0 {
		return "", errors.Errorf("downsample factor must be > 0, got %d", opts.Factor)
	}
	if opts.Split == "" {
		return "", errors.New("split name is empty")
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = artifact.DefaultDir
	}
	scale := artifact.ScaleForFactor(opts.Factor)

	t, err := Build(src, scale, opts.Workers, opts.Progress)
	if err != nil {
		return "", errors.WithMessagef(err, "preprocessing %s split", opts.Split)
	}
	h, w := artifact.SpatialDims(scale)
	if err := artifact.Check(t, h, w); err != nil {
		return "", errors.WithMessagef(err, "masks of the %s split are not %dx%d Cityscapes frames", opts.Split, artifact.FullWidth, artifact.FullHeight)
	}

	path := artifact.Path(outDir, opts.Split, scale)
	klog.Infof("saving %s (%s) to %s", t.Shape(), humanize.Bytes(uint64(t.Shape().Memory())), path)
	if err := artifact.Save(t, path); err != nil {
		return "", err
	}
	return path, nil
}

// Build rescales and remaps every mask of src into an int32 [N, H, W]
// tensor. (H, W) comes from the first mask; every other mask must rescale to
// the same size. Samples are processed in parallel and written at their own
// index, so the output order always matches src.
func Build(src Source, scale float64, workers int, progress bool) (*tensors.Tensor, error) {
	if scale <= 0 {
		return nil, errors.Errorf("scale must be > 0, got %g", scale)
	}
	n := src.Len()
	if n == 0 {
		return nil, errors.New("source has no samples")
	}

	// Fail fast on the first sample before allocating the whole tensor.
	first, err := src.Label(0)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading sample 0")
	}
	b := first.Bounds()
	w, h := rescale.ScaledSize(b.Dx(), b.Dy(), scale)
	if w <= 0 || h <= 0 {
		return nil, errors.Errorf("scale %g shrinks %dx%d masks to %dx%d", scale, b.Dx(), b.Dy(), w, h)
	}
	plane := h * w

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.Default(int64(n), "remapping")
	} else {
		bar = progressbar.DefaultSilent(int64(n))
	}

	out := tensors.FromShape(shapes.Make(dtypes.Int32, n, h, w))
	var firstErr error
	tensors.MutableFlatData[int32](out, func(flat []int32) {
		jobs := make(chan int, n)
		errCh := make(chan error, workers)
		var (
			wg     sync.WaitGroup
			failed atomic.Bool
		)
		wg.Add(workers)
		for range workers {
			go func() {
				defer wg.Done()
				for i := range jobs {
					if failed.Load() {
						continue
					}
					if err := remapSample(src, i, scale, w, h, flat[i*plane:(i+1)*plane]); err != nil {
						failed.Store(true)
						errCh <- err
						return
					}
					_ = bar.Add(1)
				}
			}()
		}
		for i := range n {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(errCh)
		firstErr = <-errCh
	})
	_ = bar.Finish()
	if firstErr != nil {
		return nil, firstErr
	}
	klog.V(1).Infof("preprocess: remapped %d masks to %dx%d", n, w, h)
	return out, nil
}

// remapSample rescales sample i and writes its categories into dst.
func remapSample(src Source, i int, scale float64, w, h int, dst []int32) error {
	mask, err := src.Label(i)
	if err != nil {
		return errors.WithMessagef(err, "reading sample %d", i)
	}
	scaled := rescale.Labels(mask, scale)
	if sb := scaled.Bounds(); sb.Dx() != w || sb.Dy() != h {
		return errors.Errorf("sample %d rescales to %dx%d, want %dx%d", i, sb.Dx(), sb.Dy(), w, h)
	}
	if err := categories.Remap(scaled, dst); err != nil {
		return errors.WithMessagef(err, "sample %d", i)
	}
	return nil
}
