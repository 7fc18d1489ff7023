// Package transforms turns reduced label masks into soft training targets.
//
// A Pipeline is an ordered list of stateless stages, each mapping one tensor
// to a new one. The standard target pipeline is
//
//	LabelingToAssignment(numClasses) then SmoothSimplexCorners(eps)
//
// which maps an int32 [H, W] mask to a float32 [C, H, W] tensor whose channel
// vector at every position lies strictly inside the probability simplex.
package transforms

import (
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrLabelOutOfRange means a label falls outside [0, numClasses).
	ErrLabelOutOfRange = errors.New("label outside [0, num_classes)")

	// ErrShape means a stage received a tensor of the wrong rank or dtype.
	ErrShape = errors.New("unexpected tensor shape")
)

// Transform is one pipeline stage.
type Transform func(x *tensors.Tensor) (*tensors.Tensor, error)

// Pipeline applies its stages in order.
type Pipeline []Transform

// Compose builds a pipeline from stages.
func Compose(stages ...Transform) Pipeline {
	return Pipeline(stages)
}

// Apply runs x through every stage. The first failing stage stops the
// pipeline.
func (p Pipeline) Apply(x *tensors.Tensor) (*tensors.Tensor, error) {
	var err error
	for i, stage := range p {
		x, err = stage(x)
		if err != nil {
			return nil, errors.WithMessagef(err, "transform stage %d", i)
		}
	}
	return x, nil
}

// Targets is the standard pipeline: one-hot encode then smooth.
func Targets(numClasses int, eps float64) Pipeline {
	return Compose(LabelingToAssignment(numClasses), SmoothSimplexCorners(eps))
}

// LabelingToAssignment returns a stage that one-hot encodes an int32 [H, W]
// label mask into a float32 [numClasses, H, W] tensor.
func LabelingToAssignment(numClasses int) Transform {
	return func(x *tensors.Tensor) (*tensors.Tensor, error) {
		shape := x.Shape()
		if shape.DType != dtypes.Int32 || shape.Rank() != 2 {
			return nil, errors.Wrapf(ErrShape, "assignment encoding wants int32 [H, W], got %s", shape)
		}
		h, w := shape.Dimensions[0], shape.Dimensions[1]
		plane := h * w
		out := make([]float32, numClasses*plane)

		var err error
		tensors.ConstFlatData[int32](x, func(labels []int32) {
			for p, l := range labels {
				if l < 0 || int(l) >= numClasses {
					err = errors.Wrapf(ErrLabelOutOfRange, "label %d at (%d, %d) with %d classes", l, p/w, p%w, numClasses)
					return
				}
				out[int(l)*plane+p] = 1
			}
		})
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(out, numClasses, h, w), nil
	}
}

// SmoothSimplexCorners returns a stage that moves every channel vector of a
// float32 [C, ...] tensor towards the simplex interior:
//
//	p_c = (1-eps)*v_c + eps*(1-v_c)/(C-1)
//
// A one-hot corner keeps 1-eps on its class and spreads eps uniformly over
// the other C-1 classes. Sums are preserved and every entry of a simplex
// input becomes strictly positive for eps in (0, 1).
func SmoothSimplexCorners(eps float64) Transform {
	return func(x *tensors.Tensor) (*tensors.Tensor, error) {
		shape := x.Shape()
		if shape.DType != dtypes.Float32 || shape.Rank() < 1 {
			return nil, errors.Wrapf(ErrShape, "simplex smoothing wants float32 [C, ...], got %s", shape)
		}
		c := shape.Dimensions[0]
		if c < 2 {
			return nil, errors.Wrapf(ErrShape, "simplex smoothing needs at least 2 channels, got %s", shape)
		}
		keep := float32(1 - eps)
		share := float32(eps / float64(c-1))

		out := tensors.FromShape(shapes.Make(dtypes.Float32, shape.Dimensions...))
		tensors.ConstFlatData[float32](x, func(in []float32) {
			tensors.MutableFlatData[float32](out, func(dst []float32) {
				for i, v := range in {
					dst[i] = keep*v + share*(1-v)
				}
			})
		})
		return out, nil
	}
}

// Decode returns the int32 [H, W] argmax over channels of a float32
// [C, H, W] tensor. Ties resolve to the lowest channel.
func Decode(x *tensors.Tensor) (*tensors.Tensor, error) {
	shape := x.Shape()
	if shape.DType != dtypes.Float32 || shape.Rank() != 3 {
		return nil, errors.Wrapf(ErrShape, "decode wants float32 [C, H, W], got %s", shape)
	}
	c, h, w := shape.Dimensions[0], shape.Dimensions[1], shape.Dimensions[2]
	plane := h * w
	labels := make([]int32, plane)
	vec := make([]float64, c)
	tensors.ConstFlatData[float32](x, func(flat []float32) {
		for p := range plane {
			for ch := range c {
				vec[ch] = float64(flat[ch*plane+p])
			}
			labels[p] = int32(floats.MaxIdx(vec))
		}
	})
	return tensors.FromFlatDataAndDimensions(labels, h, w), nil
}

// CheckSimplex verifies that every channel vector of a float32 [C, ...]
// tensor (or [B, C, ...] when batched is set) sums to 1 within tol and has
// only strictly positive entries.
func CheckSimplex(x *tensors.Tensor, batched bool, tol float64) error {
	shape := x.Shape()
	minRank := 1
	if batched {
		minRank = 2
	}
	if shape.DType != dtypes.Float32 || shape.Rank() < minRank {
		return errors.Wrapf(ErrShape, "simplex check wants float32 tensor of rank >= %d, got %s", minRank, shape)
	}
	dims := shape.Dimensions
	batch := 1
	if batched {
		batch, dims = dims[0], dims[1:]
	}
	c := dims[0]
	plane := 1
	for _, d := range dims[1:] {
		plane *= d
	}

	var err error
	vec := make([]float64, c)
	tensors.ConstFlatData[float32](x, func(flat []float32) {
		for b := range batch {
			sample := flat[b*c*plane : (b+1)*c*plane]
			for p := range plane {
				for ch := range c {
					vec[ch] = float64(sample[ch*plane+p])
				}
				if sum := floats.Sum(vec); sum < 1-tol || sum > 1+tol {
					err = errors.Errorf("sample %d position %d sums to %g", b, p, sum)
					return
				}
				if m := floats.Min(vec); m <= 0 {
					err = errors.Errorf("sample %d position %d has entry %g, not strictly positive", b, p, m)
					return
				}
			}
		}
	})
	return err
}
