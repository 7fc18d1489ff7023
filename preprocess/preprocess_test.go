package preprocess

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/cityseg/artifact"
	"github.com/Noofbiz/cityseg/categories"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// memSource is an in-memory Source.
type memSource struct {
	masks []*image.Gray
}

func (m *memSource) Len() int { return len(m.masks) }

func (m *memSource) Label(i int) (*image.Gray, error) {
	if i < 0 || i >= len(m.masks) {
		return nil, errors.Errorf("index %d out of range", i)
	}
	return m.masks[i], nil
}

// filled returns a w x h mask filled with id.
func filled(w, h int, id uint8) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = id
	}
	return m
}

// halves returns a w x h mask whose left half is left and right half right.
func halves(w, h int, left, right uint8) *image.Gray {
	m := filled(w, h, left)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			m.Pix[y*m.Stride+x] = right
		}
	}
	return m
}

func TestBuildRoadMask(t *testing.T) {
	src := &memSource{masks: []*image.Gray{filled(4, 4, 7)}}
	out, err := Build(src, 1.0, 1, false)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	dims := out.Shape().Dimensions
	if dims[0] != 1 || dims[1] != 4 || dims[2] != 4 {
		t.Fatalf("unexpected shape %s", out.Shape())
	}
	tensors.ConstFlatData[int32](out, func(flat []int32) {
		for i, v := range flat {
			if v != 1 {
				t.Fatalf("pixel %d: got %d want 1", i, v)
			}
		}
	})
}

func TestBuildKeepsSourceOrder(t *testing.T) {
	ids := []uint8{0, 7, 11, 17, 21, 23, 24, 26, 33, 8, 12, 19}
	src := &memSource{}
	for _, id := range ids {
		src.masks = append(src.masks, filled(16, 8, id))
	}
	out, err := Build(src, 0.5, 4, false)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	plane := 8 * 4
	tensors.ConstFlatData[int32](out, func(flat []int32) {
		for i, id := range ids {
			want, _ := categories.CategoryOf(int(id))
			for _, v := range flat[i*plane : (i+1)*plane] {
				if int(v) != want {
					t.Fatalf("sample %d: got %d want %d", i, v, want)
				}
			}
		}
	})
}

func TestBuildRemapsAfterScaling(t *testing.T) {
	src := &memSource{masks: []*image.Gray{halves(8, 4, 7, 26)}}
	out, err := Build(src, 0.5, 0, false)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	// 4x2 output, left two columns road (1), right two car (7).
	want := []int32{1, 1, 7, 7, 1, 1, 7, 7}
	tensors.ConstFlatData[int32](out, func(flat []int32) {
		for i := range want {
			if flat[i] != want[i] {
				t.Fatalf("pixel %d: got %d want %d", i, flat[i], want[i])
			}
		}
	})
}

func TestBuildAbortsOnUnknownID(t *testing.T) {
	src := &memSource{masks: []*image.Gray{filled(4, 4, 7), filled(4, 4, 200), filled(4, 4, 8)}}
	_, err := Build(src, 1, 2, false)
	if !errors.Is(err, categories.ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
}

func TestBuildRejectsMismatchedSizes(t *testing.T) {
	src := &memSource{masks: []*image.Gray{filled(4, 4, 7), filled(6, 4, 7)}}
	if _, err := Build(src, 1, 1, false); err == nil {
		t.Fatalf("expected error for masks of different sizes")
	}
}

func TestBuildRejectsDegenerateScale(t *testing.T) {
	src := &memSource{masks: []*image.Gray{filled(4, 4, 7)}}
	if _, err := Build(src, 0.1, 1, false); err == nil {
		t.Fatalf("expected error when the scaled mask is empty")
	}
	if _, err := Build(src, 0, 1, false); err == nil {
		t.Fatalf("expected error for zero scale")
	}
}

func TestRunWritesArtifact(t *testing.T) {
	src := &memSource{masks: []*image.Gray{
		halves(artifact.FullWidth, artifact.FullHeight, 7, 23),
		filled(artifact.FullWidth, artifact.FullHeight, 24),
	}}
	outDir := filepath.Join(t.TempDir(), "cityscapes")
	path, err := Run(src, Options{Split: "val", Factor: 32, OutDir: outDir, Workers: 2})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if want := filepath.Join(outDir, "cityscapes_val_0.03125.tensor"); path != want {
		t.Fatalf("artifact path %q, want %q", path, want)
	}

	h, w := artifact.SpatialDims(artifact.ScaleForFactor(32))
	got, err := artifact.Load(path, h, w)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	dims := got.Shape().Dimensions
	if dims[0] != 2 || dims[1] != 32 || dims[2] != 64 {
		t.Fatalf("unexpected shape %s", got.Shape())
	}
	tensors.ConstFlatData[int32](got, func(flat []int32) {
		if flat[0] != 1 || flat[63] != 5 || flat[32*64] != 6 {
			t.Fatalf("unexpected values %d %d %d", flat[0], flat[63], flat[32*64])
		}
	})
}

func TestRunRejectsBadFactor(t *testing.T) {
	src := &memSource{masks: []*image.Gray{filled(4, 4, 7)}}
	if _, err := Run(src, Options{Split: "val", Factor: 0, OutDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error for factor 0")
	}
}

func TestRunWritesNothingOnFailure(t *testing.T) {
	src := &memSource{masks: []*image.Gray{
		filled(artifact.FullWidth, artifact.FullHeight, 7),
		filled(artifact.FullWidth, artifact.FullHeight, 99),
	}}
	outDir := t.TempDir()
	if _, err := Run(src, Options{Split: "train", Factor: 64, OutDir: outDir}); err == nil {
		t.Fatalf("expected error for unknown raw id")
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no artifact after a failed run, found %d entries", len(entries))
	}
}

func TestRunRejectsNonCityscapesFrames(t *testing.T) {
	src := &memSource{masks: []*image.Gray{filled(64, 32, 7)}}
	_, err := Run(src, Options{Split: "val", Factor: 2, OutDir: t.TempDir()})
	if !errors.Is(err, artifact.ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}
