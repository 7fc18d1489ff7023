package datasets

import (
	"io"
	"math/rand"
	"runtime"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var _ train.Dataset = (*Loader)(nil)

// Loader yields mini-batches of a Dataset. Each Yield returns the targets as
// the single input, float32 [B, C, H, W], and the reduced masks as the single
// label, int32 [B, H, W]. The last batch of an epoch may be smaller than
// BatchSize; after it Yield returns io.EOF until Reset.
type Loader struct {
	ds        Dataset
	name      string
	batchSize int
	shuffle   bool

	// order of example indices for the current epoch
	order []int
	next  int

	// Random generator for shuffling
	rand *rand.Rand
}

// NewLoader creates a Loader over ds. When shuffle is set the order is
// re-drawn on every Reset; a zero seed uses the current time.
func NewLoader(ds Dataset, name string, batchSize int, shuffle bool, seed int64) *Loader {
	if batchSize <= 0 {
		batchSize = 1
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	l := &Loader{
		ds:        ds,
		name:      name,
		batchSize: batchSize,
		shuffle:   shuffle,
		order:     make([]int, ds.Len()),
		rand:      rand.New(rand.NewSource(seed)),
	}
	for i := range l.order {
		l.order[i] = i
	}
	l.Reset()
	return l
}

// Name implements train.Dataset.
func (l *Loader) Name() string {
	return l.name
}

// BatchSize returns the maximum number of examples per batch.
func (l *Loader) BatchSize() int {
	return l.batchSize
}

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	return (len(l.order) + l.batchSize - 1) / l.batchSize
}

// Reset implements train.Dataset. It restarts the epoch and reshuffles when
// shuffling is enabled.
func (l *Loader) Reset() {
	l.next = 0
	if l.shuffle {
		l.rand.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Order returns the example indices of the current epoch.
func (l *Loader) Order() []int {
	return append([]int(nil), l.order...)
}

// Yield implements train.Dataset.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if l.next >= len(l.order) {
		return nil, nil, nil, io.EOF
	}
	end := min(l.next+l.batchSize, len(l.order))
	indices := l.order[l.next:end]

	batch, err := l.Batch(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	l.next = end
	return l, []*tensors.Tensor{batch.Targets}, []*tensors.Tensor{batch.Masks}, nil
}

// Batch holds one assembled mini-batch.
type Batch struct {
	Indices []int
	Targets *tensors.Tensor // float32 [B, C, H, W]
	Masks   *tensors.Tensor // int32 [B, H, W]
}

// Batch assembles the examples at indices. Examples are transformed in
// parallel and written at their position in the batch.
func (l *Loader) Batch(indices []int) (*Batch, error) {
	format := l.ds.TensorFormat()
	c, h, w := format[1], format[2], format[3]
	plane := h * w
	targets := make([]float32, len(indices)*c*plane)
	masks := make([]int32, len(indices)*plane)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for pos, idx := range indices {
		g.Go(func() error {
			x, err := l.ds.Example(idx)
			if err != nil {
				return err
			}
			if err := x.Shape().Check(x.Shape().DType, c, h, w); err != nil {
				return errors.WithMessagef(err, "example %d does not match tensor format %v", idx, format)
			}
			m, err := l.ds.Labels(idx)
			if err != nil {
				return err
			}
			tensors.ConstFlatData[float32](x, func(flat []float32) {
				copy(targets[pos*c*plane:], flat)
			})
			tensors.ConstFlatData[int32](m, func(flat []int32) {
				copy(masks[pos*plane:], flat)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Batch{
		Indices: append([]int(nil), indices...),
		Targets: tensors.FromFlatDataAndDimensions(targets, len(indices), c, h, w),
		Masks:   tensors.FromFlatDataAndDimensions(masks, len(indices), h, w),
	}, nil
}
