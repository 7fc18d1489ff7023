package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package loads preprocessed Cityscapes segmentations and serves them as
// soft training targets.
//
// Layout and intended usage:
//
// Segmentations
//   - Built from a Config (num_classes must be 8, scale must match an
//     artifact written by cmd/scale).
//   - LoadData(split) reads cityscapes_{split}_{scale}.tensor into memory as
//     an int32 [N, H, W] tensor. A missing file fails with a message pointing
//     at the preprocessing command.
//   - Each load produces a SplitData. Loaders bind to the SplitData they were
//     created on, so loading another split leaves them untouched.
//   - Example(i) runs mask i through the target pipeline and returns a
//     float32 [C, H, W] tensor whose channel vectors lie strictly inside the
//     probability simplex.
//
// Loader
//   - Batches examples into [B, C, H, W] targets plus the [B, H, W] integer
//     masks they were built from, shuffled only for the train split.
//   - Implements gomlx's train.Dataset (Name, Yield, Reset).
//
// The loaded tensor is never mutated, so Example and Labels may be called
// concurrently for any indices.
type Dataset interface {
	Len() int

	// Labels returns the reduced int32 [H, W] mask of example i.
	Labels(i int) (*tensors.Tensor, error)

	// Example returns the transformed float32 [C, H, W] target of example i.
	Example(i int) (*tensors.Tensor, error)

	// TensorFormat returns the shape of a batch, with -1 for the batch
	// dimension.
	TensorFormat() []int
}
