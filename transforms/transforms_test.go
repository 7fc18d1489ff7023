package transforms

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// mask builds an int32 [h, w] tensor with label (y*w+x) % numClasses.
func mask(h, w, numClasses int) *tensors.Tensor {
	data := make([]int32, h*w)
	for i := range data {
		data[i] = int32(i % numClasses)
	}
	return tensors.FromFlatDataAndDimensions(data, h, w)
}

func TestAssignmentOneHot(t *testing.T) {
	x := tensors.FromFlatDataAndDimensions([]int32{3}, 1, 1)
	y, err := LabelingToAssignment(8)(x)
	if err != nil {
		t.Fatalf("LabelingToAssignment error: %v", err)
	}
	dims := y.Shape().Dimensions
	if len(dims) != 3 || dims[0] != 8 || dims[1] != 1 || dims[2] != 1 {
		t.Fatalf("unexpected shape %s", y.Shape())
	}
	want := []float32{0, 0, 0, 1, 0, 0, 0, 0}
	tensors.ConstFlatData[float32](y, func(flat []float32) {
		for i := range want {
			if flat[i] != want[i] {
				t.Fatalf("channel %d: got %v want %v", i, flat[i], want[i])
			}
		}
	})
}

func TestAssignmentChannelLayout(t *testing.T) {
	// [[0, 1, 2], [2, 1, 0]]
	x := tensors.FromFlatDataAndDimensions([]int32{0, 1, 2, 2, 1, 0}, 2, 3)
	y, err := LabelingToAssignment(3)(x)
	if err != nil {
		t.Fatalf("LabelingToAssignment error: %v", err)
	}
	want := []float32{
		1, 0, 0, 0, 0, 1, // channel 0
		0, 1, 0, 0, 1, 0, // channel 1
		0, 0, 1, 1, 0, 0, // channel 2
	}
	tensors.ConstFlatData[float32](y, func(flat []float32) {
		for i := range want {
			if flat[i] != want[i] {
				t.Fatalf("flat %d: got %v want %v", i, flat[i], want[i])
			}
		}
	})
}

func TestAssignmentRejectsOutOfRange(t *testing.T) {
	for _, bad := range []int32{8, -1, 255} {
		x := tensors.FromFlatDataAndDimensions([]int32{0, bad, 1, 2}, 2, 2)
		_, err := LabelingToAssignment(8)(x)
		if !errors.Is(err, ErrLabelOutOfRange) {
			t.Fatalf("label %d: expected ErrLabelOutOfRange, got %v", bad, err)
		}
	}
}

func TestAssignmentRejectsWrongShape(t *testing.T) {
	x := tensors.FromFlatDataAndDimensions([]int32{0, 1, 2, 3}, 1, 2, 2)
	if _, err := LabelingToAssignment(8)(x); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for rank 3, got %v", err)
	}
	f := tensors.FromFlatDataAndDimensions([]float32{0, 1, 2, 3}, 2, 2)
	if _, err := LabelingToAssignment(8)(f); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for float32, got %v", err)
	}
}

func TestSmoothingUniformRedistribution(t *testing.T) {
	x := tensors.FromFlatDataAndDimensions([]int32{3}, 1, 1)
	y, err := Targets(8, 0.01).Apply(x)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	tensors.ConstFlatData[float32](y, func(flat []float32) {
		for c, v := range flat {
			want := 0.01 / 7
			if c == 3 {
				want = 0.99
			}
			if !approxEqual(float64(v), want, 1e-6) {
				t.Fatalf("channel %d: got %v want %v", c, v, want)
			}
		}
	})
}

func TestTargetsStayInsideSimplex(t *testing.T) {
	x := mask(6, 10, 8)
	for _, eps := range []float64{1e-4, 0.01, 0.3, 0.9} {
		y, err := Targets(8, eps).Apply(x)
		if err != nil {
			t.Fatalf("eps %v: Apply error: %v", eps, err)
		}
		if err := CheckSimplex(y, false, 1e-6); err != nil {
			t.Fatalf("eps %v: %v", eps, err)
		}
	}
}

func TestSmoothingConvergesToOneHot(t *testing.T) {
	x := mask(4, 4, 8)
	onehot, err := LabelingToAssignment(8)(x)
	if err != nil {
		t.Fatalf("LabelingToAssignment error: %v", err)
	}
	prev := math.Inf(1)
	for _, eps := range []float64{0.1, 0.01, 1e-3, 1e-5} {
		y, err := SmoothSimplexCorners(eps)(onehot)
		if err != nil {
			t.Fatalf("SmoothSimplexCorners error: %v", err)
		}
		var maxDiff float64
		tensors.ConstFlatData[float32](onehot, func(e []float32) {
			tensors.ConstFlatData[float32](y, func(p []float32) {
				for i := range e {
					maxDiff = math.Max(maxDiff, math.Abs(float64(p[i]-e[i])))
				}
			})
		})
		if maxDiff > eps+1e-6 || maxDiff >= prev {
			t.Fatalf("eps %v: max distance to one-hot %v (previous %v)", eps, maxDiff, prev)
		}
		prev = maxDiff
	}
}

func TestDecodeRecoversLabels(t *testing.T) {
	x := mask(5, 7, 8)
	for _, eps := range []float64{0.01, 0.25, 0.49} {
		y, err := Targets(8, eps).Apply(x)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		d, err := Decode(y)
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		tensors.ConstFlatData[int32](x, func(want []int32) {
			tensors.ConstFlatData[int32](d, func(got []int32) {
				for i := range want {
					if got[i] != want[i] {
						t.Fatalf("eps %v position %d: decoded %d want %d", eps, i, got[i], want[i])
					}
				}
			})
		})
	}
}

func TestSmoothingRejectsSingleChannel(t *testing.T) {
	x := tensors.FromFlatDataAndDimensions([]float32{1, 1}, 1, 2)
	if _, err := SmoothSimplexCorners(0.01)(x); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestCheckSimplexDetectsCorners(t *testing.T) {
	onehot, err := LabelingToAssignment(8)(mask(2, 2, 8))
	if err != nil {
		t.Fatalf("LabelingToAssignment error: %v", err)
	}
	if err := CheckSimplex(onehot, false, 1e-6); err == nil {
		t.Fatalf("one-hot vectors have zeros and must fail the interior check")
	}
}

func TestCheckSimplexBatched(t *testing.T) {
	// two samples, 2 channels, 1x2 spatial
	good := tensors.FromFlatDataAndDimensions([]float32{0.9, 0.2, 0.1, 0.8, 0.5, 0.5, 0.5, 0.5}, 2, 2, 1, 2)
	if err := CheckSimplex(good, true, 1e-6); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := tensors.FromFlatDataAndDimensions([]float32{0.9, 0.2, 0.1, 0.8, 0.5, 0.5, 0.6, 0.5}, 2, 2, 1, 2)
	if err := CheckSimplex(bad, true, 1e-6); err == nil {
		t.Fatalf("expected sum error in second sample")
	}
}
