package datasets

import (
	"path/filepath"
	"strings"

	"github.com/Noofbiz/cityseg/artifact"
	"github.com/Noofbiz/cityseg/transforms"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNotImplemented is returned by the label histogram methods, which are
// declared for future use only.
var ErrNotImplemented = errors.New("not implemented")

// Segmentations serves Cityscapes segmentations reduced to 8 categories and
// spatially downscaled.
type Segmentations struct {
	cfg        Config
	height     int
	width      int
	transforms transforms.Pipeline

	// current is the split loaded last; nil until LoadData succeeds.
	current *SplitData
}

// SplitData is one loaded split. It never changes after loading, so loaders
// built on it keep serving their split when another one is loaded.
type SplitData struct {
	name       string
	numClasses int
	height     int
	width      int
	data       *tensors.Tensor
	transforms transforms.Pipeline
}

var _ Dataset = (*SplitData)(nil)

// New validates cfg and returns an empty dataset. Call LoadData or
// Dataloader to read an artifact.
func New(cfg Config) (*Segmentations, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h, w := artifact.SpatialDims(cfg.Scale)
	return &Segmentations{
		cfg:        cfg,
		height:     h,
		width:      w,
		transforms: transforms.Targets(cfg.NumClasses, cfg.Smoothing),
	}, nil
}

// Config returns the configuration the dataset was built with.
func (s *Segmentations) Config() Config {
	return s.cfg
}

// ArtifactPath returns where the artifact for split is expected.
func (s *Segmentations) ArtifactPath(split string) string {
	return artifact.Path(s.cfg.DataDir, split, s.cfg.Scale)
}

// LoadData reads the artifact of split into memory and makes it the current
// split. Loaders created before keep their own split.
func (s *Segmentations) LoadData(split string) error {
	sd, err := s.load(split)
	if err != nil {
		return err
	}
	s.current = sd
	return nil
}

func (s *Segmentations) load(split string) (*SplitData, error) {
	path := s.ArtifactPath(split)
	klog.Infof("Loading cityscapes segmentations from %s", path)
	t, err := artifact.Load(path, s.height, s.width)
	if err != nil {
		if errors.Is(err, artifact.ErrMissing) {
			if others, _ := artifact.Find(s.cfg.DataDir, split); len(others) > 0 {
				names := make([]string, len(others))
				for i, o := range others {
					names[i] = filepath.Base(o)
				}
				err = errors.WithMessagef(err, "scale %s is not preprocessed, found only %s",
					artifact.FormatScale(s.cfg.Scale), strings.Join(names, ", "))
			}
		}
		return nil, err
	}
	klog.V(1).Infof("loaded %s: %s, %s", split, t.Shape(), humanize.Bytes(uint64(t.Shape().Memory())))
	return &SplitData{
		name:       split,
		numClasses: s.cfg.NumClasses,
		height:     s.height,
		width:      s.width,
		data:       t,
		transforms: s.transforms,
	}, nil
}

// Split returns the current split, or "" if nothing is loaded.
func (s *Segmentations) Split() string {
	if s.current == nil {
		return ""
	}
	return s.current.name
}

// Data returns the current split, or nil if nothing is loaded.
func (s *Segmentations) Data() *SplitData {
	return s.current
}

// Len returns the number of examples of the current split.
func (s *Segmentations) Len() int {
	if s.current == nil {
		return 0
	}
	return s.current.Len()
}

// SpatialDims returns the (height, width) of every example.
func (s *Segmentations) SpatialDims() (int, int) {
	return s.height, s.width
}

// TensorFormat returns the shape of a batch of targets. The batch dimension
// is -1.
func (s *Segmentations) TensorFormat() []int {
	return []int{-1, s.cfg.NumClasses, s.height, s.width}
}

// Labels returns a copy of the reduced int32 [H, W] mask of example i of the
// current split.
func (s *Segmentations) Labels(i int) (*tensors.Tensor, error) {
	if s.current == nil {
		return nil, errors.New("no split loaded, call LoadData first")
	}
	return s.current.Labels(i)
}

// Example returns example i of the current split run through the target
// pipeline, a float32 [C, H, W] tensor.
func (s *Segmentations) Example(i int) (*tensors.Tensor, error) {
	if s.current == nil {
		return nil, errors.New("no split loaded, call LoadData first")
	}
	return s.current.Example(i)
}

// Dataloader returns a batching iterator over split, loading it first if a
// different split (or none) is current. Only the train split is shuffled.
func (s *Segmentations) Dataloader(split string) (*Loader, error) {
	if s.current == nil || s.current.name != split {
		if err := s.LoadData(split); err != nil {
			return nil, err
		}
	}
	return NewLoader(s.current, "cityscapes-"+split, s.cfg.BatchSize, split == "train", s.cfg.Seed), nil
}

// Name returns the split name.
func (d *SplitData) Name() string {
	return d.name
}

// Len returns the number of examples.
func (d *SplitData) Len() int {
	return d.data.Shape().Dimensions[0]
}

// TensorFormat returns the shape of a batch of targets.
func (d *SplitData) TensorFormat() []int {
	return []int{-1, d.numClasses, d.height, d.width}
}

// Labels returns a copy of the reduced int32 [H, W] mask of example i.
func (d *SplitData) Labels(i int) (*tensors.Tensor, error) {
	if n := d.Len(); i < 0 || i >= n {
		return nil, errors.Errorf("index %d out of range [0, %d)", i, n)
	}
	plane := d.height * d.width
	mask := make([]int32, plane)
	tensors.ConstFlatData[int32](d.data, func(flat []int32) {
		copy(mask, flat[i*plane:(i+1)*plane])
	})
	return tensors.FromFlatDataAndDimensions(mask, d.height, d.width), nil
}

// Example returns example i run through the target pipeline.
func (d *SplitData) Example(i int) (*tensors.Tensor, error) {
	mask, err := d.Labels(i)
	if err != nil {
		return nil, err
	}
	x, err := d.transforms.Apply(mask)
	if err != nil {
		return nil, errors.WithMessagef(err, "example %d of %s", i, d.name)
	}
	return x, nil
}

// HistFromSamples will compute the empirical category histogram of a batch
// of labelings.
func (s *Segmentations) HistFromSamples(labelings *tensors.Tensor) (*tensors.Tensor, error) {
	return nil, errors.Wrap(ErrNotImplemented, "HistFromSamples")
}

// KLFromHist will compute the divergence of histogram p from the dataset's
// category distribution.
func (s *Segmentations) KLFromHist(p *tensors.Tensor) (*tensors.Tensor, error) {
	return nil, errors.Wrap(ErrNotImplemented, "KLFromHist")
}
