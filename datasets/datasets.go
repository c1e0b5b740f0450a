package datasets

import (
	"context"
	"fmt"
	"time"

	"github.com/gomlx/gomlx/pkg/ml/train"
)

// This package holds the in-memory sprite MNIST dataset and the sampling
// logic used to feed it to a training loop.
//
// The raw data arrives as two flat buffers produced by a PixelProvider and a
// LabelProvider (see the provider package for the HTTP/sprite backed ones).
// MnistData splits them at a fixed ratio into a training and a test
// partition and hands out batches drawn from a fixed shuffled order.
//
// Notes on gomlx tensors:
//   - Batches are returned as contiguous float32 buffers with shape metadata.
//     Batch.ToGomlxTensors turns them into gomlx tensors, and each Partition
//     implements gomlx's train.Dataset so it can be passed to a train loop
//     directly.

const (
	// ImageSize is the number of pixels of one 28x28 image.
	ImageSize = 784

	// NumClasses is the length of a one-hot label row.
	NumClasses = 10

	// NumDatasetElements is the number of images in the sprite.
	NumDatasetElements = 65000

	// DefaultBatchSize is used by Partition.Yield when no BatchSize is set.
	DefaultBatchSize = 32
)

// TrainTestRatio is the share of samples assigned to the training partition.
var TrainTestRatio = Ratio{Num: 5, Den: 6}

// PixelProvider produces the raw pixel buffer for the whole dataset:
// NumElements*ImageSize values in [0,1], sample-major then pixel-minor.
type PixelProvider interface {
	Pixels(ctx context.Context) ([]float32, error)
}

// LabelProvider produces the raw label buffer for the whole dataset:
// NumElements*NumClasses values, each NumClasses run a one-hot row.
type LabelProvider interface {
	Labels(ctx context.Context) ([]float32, error)
}

// Dataset is implemented by both partitions of a loaded MnistData. Next to
// gomlx's train.Dataset it gives direct access to single samples and to
// batches of chosen indices, which do not move the shuffled cursor.
type Dataset interface {
	train.Dataset

	Len() int
	Example(i int) (image []float32, label []float32, err error)
	Batch(indices []int) (*Batch, error)
	NextBatch(batchSize int) (*Batch, error)
}

// Ratio is an exact fraction used to compute the train/test split point.
type Ratio struct {
	Num int
	Den int
}

// SplitPoint returns floor(r * total).
func (r Ratio) SplitPoint(total int) int {
	return total * r.Num / r.Den
}

// Split returns the number of train and test elements for total samples.
// The remainder of the floor goes to test, so train+test == total.
func (r Ratio) Split(total int) (train, test int) {
	train = r.SplitPoint(total)
	return train, total - train
}

// Float returns the ratio as a float64, for logging.
func (r Ratio) Float() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func (r Ratio) validate() error {
	if r.Den <= 0 {
		return fmt.Errorf("ratio denominator must be positive, got %d", r.Den)
	}
	if r.Num < 0 || r.Num > r.Den {
		return fmt.Errorf("ratio %s must be within [0, 1]", r)
	}
	return nil
}

// Config holds the dataset shape and sampling parameters. Zero fields are
// replaced by the package constants in NewMnistData.
type Config struct {
	// ImageSize is the number of pixels per sample (default ImageSize).
	ImageSize int

	// NumClasses is the length of a one-hot label (default NumClasses).
	NumClasses int

	// NumElements is the number of samples the providers produce
	// (default NumDatasetElements).
	NumElements int

	// TrainRatio is the train share of the samples (default TrainTestRatio).
	TrainRatio Ratio

	// Seed controls the permutations. Zero is a valid seed like any other.
	Seed int64

	// RandomSeed replaces Seed with a time-based one. The drawn seed is
	// reported by MnistData.Config so a run can be reproduced.
	RandomSeed bool

	// ReshuffleEachCycle draws a new permutation every time a partition's
	// cursor wraps. Off by default: the order then repeats every cycle.
	ReshuffleEachCycle bool

	// BatchSize is the batch size used by Partition.Yield
	// (default DefaultBatchSize).
	BatchSize int
}

// WithDefaults fills zero fields with the package constants and resolves
// RandomSeed into a concrete Seed. It is idempotent.
func (c Config) WithDefaults() Config {
	if c.ImageSize == 0 {
		c.ImageSize = ImageSize
	}
	if c.NumClasses == 0 {
		c.NumClasses = NumClasses
	}
	if c.NumElements == 0 {
		c.NumElements = NumDatasetElements
	}
	if c.TrainRatio == (Ratio{}) {
		c.TrainRatio = TrainTestRatio
	}
	if c.RandomSeed {
		c.Seed = time.Now().UnixNano()
		c.RandomSeed = false
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

func (c Config) validate() error {
	if c.ImageSize < 0 {
		return fmt.Errorf("image size must be positive, got %d", c.ImageSize)
	}
	if c.NumClasses < 0 {
		return fmt.Errorf("number of classes must be positive, got %d", c.NumClasses)
	}
	if c.NumElements < 0 {
		return fmt.Errorf("number of elements must be positive, got %d", c.NumElements)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: default batch size %d", ErrInvalidBatchSize, c.BatchSize)
	}
	return c.TrainRatio.validate()
}
