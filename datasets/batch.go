package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Batch stores a batch in flat contiguous buffers. The buffers are freshly
// allocated for every batch and never alias the dataset storage.
type Batch struct {
	Images     []float32
	Labels     []float32
	BatchSize  int
	ImageSize  int
	NumClasses int
}

// materialize draws batchSize indices from cycler and copies the matching
// image and label rows into a new Batch.
func materialize(batchSize int, cycler *IndexCycler, images, labels []float32, imageSize, numClasses int) *Batch {
	indices := make([]int, batchSize)
	for i := range indices {
		indices[i] = cycler.Next()
	}
	return gather(indices, images, labels, imageSize, numClasses)
}

// gather copies the rows of the given sample indices into a new Batch.
// Indices must be in range.
func gather(indices []int, images, labels []float32, imageSize, numClasses int) *Batch {
	b := &Batch{
		Images:     make([]float32, len(indices)*imageSize),
		Labels:     make([]float32, len(indices)*numClasses),
		BatchSize:  len(indices),
		ImageSize:  imageSize,
		NumClasses: numClasses,
	}
	for i, idx := range indices {
		copy(b.Images[i*imageSize:(i+1)*imageSize], images[idx*imageSize:(idx+1)*imageSize])
		copy(b.Labels[i*numClasses:(i+1)*numClasses], labels[idx*numClasses:(idx+1)*numClasses])
	}
	return b
}

// ImagesShape returns [BatchSize, ImageSize].
func (b *Batch) ImagesShape() []int {
	return []int{b.BatchSize, b.ImageSize}
}

// LabelsShape returns [BatchSize, NumClasses].
func (b *Batch) LabelsShape() []int {
	return []int{b.BatchSize, b.NumClasses}
}

// Example returns the image and label rows of the i-th sample in the batch.
// The returned slices share memory with the batch.
func (b *Batch) Example(i int) (image []float32, label []float32, err error) {
	if i < 0 || i >= b.BatchSize {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", i, b.BatchSize)
	}
	return b.Images[i*b.ImageSize : (i+1)*b.ImageSize], b.Labels[i*b.NumClasses : (i+1)*b.NumClasses], nil
}

// ClassCounts returns how many samples of each class the batch holds.
func (b *Batch) ClassCounts() []int {
	return ClassCounts(b.Labels, b.NumClasses)
}

// ToGomlxTensors converts the batch to gomlx tensors shaped
// [BatchSize, ImageSize] and [BatchSize, NumClasses].
func (b *Batch) ToGomlxTensors() (images *tensors.Tensor, labels *tensors.Tensor, err error) {
	if b.BatchSize <= 0 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, b.BatchSize)
	}
	if len(b.Images) != b.BatchSize*b.ImageSize {
		return nil, nil, fmt.Errorf("images buffer has %d values, want %d", len(b.Images), b.BatchSize*b.ImageSize)
	}
	if len(b.Labels) != b.BatchSize*b.NumClasses {
		return nil, nil, fmt.Errorf("labels buffer has %d values, want %d", len(b.Labels), b.BatchSize*b.NumClasses)
	}
	images = tensors.FromFlatDataAndDimensions(b.Images, b.ImagesShape()...)
	labels = tensors.FromFlatDataAndDimensions(b.Labels, b.LabelsShape()...)
	return images, labels, nil
}
