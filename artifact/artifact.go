// Package artifact defines the persisted form of a preprocessed split: one
// gomlx tensor file per (split, scale) holding the reduced label masks as an
// int32 tensor shaped [N, H, W].
//
// The file name carries the split and scale. Shape and dtype travel with the
// gomlx tensor encoding, so no side files are needed to read it back.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DType is the element type of every artifact.
const DType = dtypes.Int32

// Extension is appended to every artifact file name.
const Extension = ".tensor"

// DefaultDir is where artifacts are written and looked up unless configured.
const DefaultDir = "data/image/cityscapes"

// Full Cityscapes frame size before downscaling.
const (
	FullHeight = 1024
	FullWidth  = 2048
)

var (
	// ErrMissing means the artifact for a (split, scale) has not been produced.
	ErrMissing = errors.New("preprocessed cityscapes data not found")

	// ErrFormat means a file exists but does not hold a [N, H, W] int32 tensor
	// of the expected spatial size.
	ErrFormat = errors.New("unexpected cityscapes artifact format")
)

// decodeError reports a file that could not be read as a tensor. It matches
// ErrFormat and unwraps to the decoding error.
type decodeError struct {
	path string
	err  error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode %s: %v", ErrFormat, e.path, e.err)
}

func (e *decodeError) Unwrap() error { return e.err }

func (e *decodeError) Is(target error) bool { return target == ErrFormat }

// FormatScale renders a scale the way it appears in artifact names: the
// shortest decimal that round-trips, always with a fractional part
// (0.25, 0.5, 1.0).
func FormatScale(scale float64) string {
	s := strconv.FormatFloat(scale, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// ScaleForFactor converts an integer downsample factor into a scale.
func ScaleForFactor(factor int) float64 {
	return 1.0 / float64(factor)
}

// SpatialDims returns the (height, width) of masks stored at scale. Values
// are truncated.
func SpatialDims(scale float64) (int, int) {
	return int(FullHeight * scale), int(FullWidth * scale)
}

// Name returns the artifact file name for split and scale.
func Name(split string, scale float64) string {
	return fmt.Sprintf("cityscapes_%s_%s%s", split, FormatScale(scale), Extension)
}

// Path joins dir with the artifact name for split and scale.
func Path(dir, split string, scale float64) string {
	return filepath.Join(dir, Name(split, scale))
}

// Save writes t to path atomically: it is encoded into a temporary file in
// the same directory and renamed over path, so readers and concurrent
// writers never observe a partial file. Missing directories are created.
func Save(t *tensors.Tensor, path string) error {
	if err := Check(t, -1, -1); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create artifact directory %s", dir)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary artifact file")
	}
	tmpName := tmpFile.Name()
	// gomlx opens the file by name, release our handle first.
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary artifact file")
	}
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if err := t.Save(tmpName); err != nil {
		return errors.WithMessagef(err, "failed to encode artifact into %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to move artifact into place at %s", path)
	}
	klog.V(1).Infof("artifact: wrote %s %s", path, t.Shape())
	return nil
}

// Load reads the artifact at path and checks it holds masks of height x
// width. Pass -1 to skip a dimension check.
func Load(path string, height, width int) (*tensors.Tensor, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrMissing, "no cityscapes data at %s; download the Cityscapes "+
				"gtFine and leftImg8bit archives and preprocess them with "+
				"`go run ./cmd/scale <root_path> <factor> <split>`", path)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	if st.IsDir() {
		return nil, errors.Wrapf(ErrFormat, "%s is a directory", path)
	}

	t, err := tensors.Load(path)
	if err != nil {
		return nil, &decodeError{path: path, err: err}
	}
	if err := Check(t, height, width); err != nil {
		return nil, errors.WithMessagef(err, "artifact %s", path)
	}
	return t, nil
}

// Check verifies t is an int32 tensor shaped [N, height, width]. Pass -1 to
// skip a dimension check.
func Check(t *tensors.Tensor, height, width int) error {
	shape := t.Shape()
	if shape.DType != DType {
		return errors.Wrapf(ErrFormat, "dtype %s, want %s", shape.DType, DType)
	}
	if shape.Rank() != 3 {
		return errors.Wrapf(ErrFormat, "shape %s, want rank 3 [N, H, W]", shape)
	}
	dims := shape.Dimensions
	if (height >= 0 && dims[1] != height) || (width >= 0 && dims[2] != width) {
		return errors.Wrapf(ErrFormat, "shape %s, want [N, %d, %d]", shape, height, width)
	}
	return nil
}

// Find returns the artifact paths in dir for split, any scale.
func Find(dir, split string) ([]string, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("cityscapes_%s_*%s", split, Extension))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to glob %s", pattern)
	}
	return matches, nil
}
