package datasets

import (
	"fmt"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// Partition is either the training or the test split of a loaded MnistData.
// It owns views into the dataset buffers and its own shuffled cursor.
//
// Draws from the same Partition are serialized; draws from different
// partitions never touch shared state.
type Partition struct {
	name       string
	images     []float32
	labels     []float32
	imageSize  int
	numClasses int

	mu        sync.Mutex
	cycler    *IndexCycler
	batchSize int
}

var (
	_ Dataset       = (*Partition)(nil)
	_ train.Dataset = (*Partition)(nil)
)

func newPartition(name string, images, labels []float32, cycler *IndexCycler, cfg Config) *Partition {
	return &Partition{
		batchSize:  cfg.BatchSize,
		name:       name,
		images:     images,
		labels:     labels,
		imageSize:  cfg.ImageSize,
		numClasses: cfg.NumClasses,
		cycler:     cycler,
	}
}

// Name implements train.Dataset.
func (p *Partition) Name() string {
	return p.name
}

// Len returns the number of samples in the partition.
func (p *Partition) Len() int {
	return len(p.images) / p.imageSize
}

// Example returns copies of the image and label rows of sample idx.
func (p *Partition) Example(idx int) (image []float32, label []float32, err error) {
	if idx < 0 || idx >= p.Len() {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, p.Len())
	}
	image = make([]float32, p.imageSize)
	label = make([]float32, p.numClasses)
	copy(image, p.images[idx*p.imageSize:(idx+1)*p.imageSize])
	copy(label, p.labels[idx*p.numClasses:(idx+1)*p.numClasses])
	return image, label, nil
}

// NextBatch draws the next batchSize samples in shuffled order. Batch sizes
// larger than Len wrap around and repeat samples.
func (p *Partition) NextBatch(batchSize int) (*Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return materialize(batchSize, p.cycler, p.images, p.labels, p.imageSize, p.numClasses), nil
}

// Batch copies the samples at the given partition indices into a new Batch,
// in order. It does not move the cursor.
func (p *Partition) Batch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: got 0 indices", ErrInvalidBatchSize)
	}
	n := p.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("index %d out of range [0, %d)", idx, n)
		}
	}
	return gather(indices, p.images, p.labels, p.imageSize, p.numClasses), nil
}

// SetBatchSize sets the number of samples returned by each Yield.
func (p *Partition) SetBatchSize(batchSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batchSize = batchSize
}

// BatchSize returns the number of samples returned by each Yield.
func (p *Partition) BatchSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batchSize
}

// Permutation returns a copy of the partition's current sample order.
func (p *Partition) Permutation() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycler.Permutation()
}

// Cursor returns the position of the next draw within the permutation.
func (p *Partition) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycler.Cursor()
}

// ClassCounts returns the number of samples of each class in the partition.
func (p *Partition) ClassCounts() []int {
	return ClassCounts(p.labels, p.numClasses)
}

// Reset implements train.Dataset. The partition loops forever and its cursor
// only moves forward, so there is nothing to reset.
func (p *Partition) Reset() {}

// Yield implements train.Dataset: it returns the next batch of BatchSize
// samples as one image tensor and one label tensor.
func (p *Partition) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	p.mu.Lock()
	batchSize := p.batchSize
	if batchSize <= 0 {
		p.mu.Unlock()
		return nil, nil, nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	batch := materialize(batchSize, p.cycler, p.images, p.labels, p.imageSize, p.numClasses)
	p.mu.Unlock()

	in, la, err := batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return p, []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}
