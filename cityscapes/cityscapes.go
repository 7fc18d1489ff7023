// Package cityscapes reads the raw Cityscapes directory layout.
//
// A root holds paired files per split and city:
//
//	<root>/leftImg8bit/<split>/<city>/<name>_leftImg8bit.png
//	<root>/gtFine/<split>/<city>/<name>_gtFine_labelIds.png
//
// Only the fine label masks are decoded; image paths are kept so callers can
// pair them with the masks.
package cityscapes

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Splits lists the valid split names.
var Splits = []string{"train", "val", "test"}

const (
	imageSuffix = "_leftImg8bit.png"
	labelSuffix = "_gtFine_labelIds.png"
)

// ValidSplit reports whether split is one of Splits.
func ValidSplit(split string) bool {
	for _, s := range Splits {
		if s == split {
			return true
		}
	}
	return false
}

// Sample is one (image, label mask) pair.
type Sample struct {
	ImagePath string
	LabelPath string
}

// Dataset gives index-based access to the fine label masks of one split.
type Dataset struct {
	Root    string
	Split   string
	samples []Sample
}

// New lists every labeled image of split under root. Pairs are sorted by
// image path so indices are stable across runs.
func New(root, split string) (*Dataset, error) {
	if !ValidSplit(split) {
		return nil, errors.Errorf("unknown split %q, want one of %v", split, Splits)
	}
	imgDir := filepath.Join(root, "leftImg8bit", split)
	lblDir := filepath.Join(root, "gtFine", split)
	for _, dir := range []string{imgDir, lblDir} {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			return nil, errors.Errorf("cityscapes directory %s not found; expected the leftImg8bit and gtFine archives extracted under %s", dir, root)
		}
	}

	cities, err := os.ReadDir(imgDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", imgDir)
	}
	var samples []Sample
	for _, city := range cities {
		if !city.IsDir() {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(imgDir, city.Name(), "*"+imageSuffix))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to glob city %s", city.Name())
		}
		for _, imgPath := range matches {
			base := strings.TrimSuffix(filepath.Base(imgPath), imageSuffix)
			lblPath := filepath.Join(lblDir, city.Name(), base+labelSuffix)
			if _, err := os.Stat(lblPath); err != nil {
				return nil, errors.Wrapf(err, "missing label mask for %s", imgPath)
			}
			samples = append(samples, Sample{ImagePath: imgPath, LabelPath: lblPath})
		}
	}
	if len(samples) == 0 {
		return nil, errors.Errorf("no labeled images found under %s", imgDir)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].ImagePath < samples[j].ImagePath })
	klog.V(1).Infof("cityscapes: %d %s samples under %s", len(samples), split, root)

	return &Dataset{Root: root, Split: split, samples: samples}, nil
}

// Len returns the number of samples in the split.
func (d *Dataset) Len() int {
	return len(d.samples)
}

// Sample returns the file pair at index i.
func (d *Dataset) Sample(i int) (Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return Sample{}, errors.Errorf("index %d out of range [0, %d)", i, len(d.samples))
	}
	return d.samples[i], nil
}

// Label decodes the raw label mask of sample i.
func (d *Dataset) Label(i int) (*image.Gray, error) {
	s, err := d.Sample(i)
	if err != nil {
		return nil, err
	}
	return ReadLabelMask(s.LabelPath)
}

// ReadLabelMask decodes an 8-bit grayscale label PNG. Paletted masks are
// accepted as long as the palette index is the raw id.
func ReadLabelMask(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open label mask")
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode label mask %s", path)
	}
	switch m := img.(type) {
	case *image.Gray:
		return m, nil
	case *image.Paletted:
		g := image.NewGray(m.Bounds())
		w := m.Bounds().Dx()
		for y := 0; y < m.Bounds().Dy(); y++ {
			copy(g.Pix[y*g.Stride:y*g.Stride+w], m.Pix[y*m.Stride:y*m.Stride+w])
		}
		return g, nil
	default:
		return nil, errors.Errorf("label mask %s has color model %T, want 8-bit grayscale", path, img)
	}
}
