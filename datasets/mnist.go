package datasets

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// MnistData holds the sprite MNIST dataset split into a training and a test
// partition. It must be loaded with Load before batches can be drawn.
type MnistData struct {
	pixels PixelProvider
	labels LabelProvider
	cfg    Config

	// loadMu serializes Load calls.
	loadMu sync.Mutex
	state  atomic.Pointer[loadedState]
}

type loadedState struct {
	train *Partition
	test  *Partition
}

// NewMnistData creates an unloaded dataset reading from the given providers.
func NewMnistData(pixels PixelProvider, labels LabelProvider, cfg Config) (*MnistData, error) {
	if pixels == nil {
		return nil, errors.New("pixel provider cannot be nil")
	}
	if labels == nil {
		return nil, errors.New("label provider cannot be nil")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &MnistData{pixels: pixels, labels: labels, cfg: cfg}, nil
}

// Config returns the effective configuration, defaults included.
func (d *MnistData) Config() Config {
	return d.cfg
}

// Loaded reports whether Load has completed successfully.
func (d *MnistData) Loaded() bool {
	return d.state.Load() != nil
}

// Load fetches pixels and labels concurrently, waits for both, validates
// them, splits them into partitions and draws the shuffled orders.
//
// Any failure is returned as a *LoadError and leaves the dataset unloaded,
// so Load may be called again.
func (d *MnistData) Load(ctx context.Context) error {
	d.loadMu.Lock()
	defer d.loadMu.Unlock()
	if d.Loaded() {
		return ErrAlreadyLoaded
	}

	var pixels, labels []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := d.pixels.Pixels(gctx)
		if err != nil {
			return &LoadError{Source: "pixels", Err: err}
		}
		pixels = p
		return nil
	})
	g.Go(func() error {
		l, err := d.labels.Labels(gctx)
		if err != nil {
			return &LoadError{Source: "labels", Err: err}
		}
		labels = l
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	cfg := d.cfg
	if want := cfg.NumElements * cfg.ImageSize; len(pixels) != want {
		return &LoadError{Source: "validate", Err: fmt.Errorf("pixel buffer has %d values, want %d", len(pixels), want)}
	}
	if want := cfg.NumElements * cfg.NumClasses; len(labels) != want {
		return &LoadError{Source: "validate", Err: fmt.Errorf("label buffer has %d values, want %d", len(labels), want)}
	}
	if err := ValidatePixels(pixels); err != nil {
		return &LoadError{Source: "validate", Err: err}
	}
	if err := ValidateOneHot(labels, cfg.NumClasses); err != nil {
		return &LoadError{Source: "validate", Err: err}
	}

	numTrain, numTest := cfg.TrainRatio.Split(cfg.NumElements)
	trainRng := rand.New(rand.NewSource(cfg.Seed))
	testRng := rand.New(rand.NewSource(cfg.Seed + 1))
	trainCycler, err := NewShuffledCycler(numTrain, trainRng)
	if err != nil {
		return &LoadError{Source: "split", Err: fmt.Errorf("train partition: %w", err)}
	}
	testCycler, err := NewShuffledCycler(numTest, testRng)
	if err != nil {
		return &LoadError{Source: "split", Err: fmt.Errorf("test partition: %w", err)}
	}
	if cfg.ReshuffleEachCycle {
		trainCycler.SetReshuffle(trainRng)
		testCycler.SetReshuffle(testRng)
	}

	imgSplit := numTrain * cfg.ImageSize
	labSplit := numTrain * cfg.NumClasses
	d.state.Store(&loadedState{
		train: newPartition("train", pixels[:imgSplit:imgSplit], labels[:labSplit:labSplit], trainCycler, cfg),
		test:  newPartition("test", pixels[imgSplit:], labels[labSplit:], testCycler, cfg),
	})
	return nil
}

// Train returns the training partition, or nil before Load succeeded.
func (d *MnistData) Train() *Partition {
	if s := d.state.Load(); s != nil {
		return s.train
	}
	return nil
}

// Test returns the test partition, or nil before Load succeeded.
func (d *MnistData) Test() *Partition {
	if s := d.state.Load(); s != nil {
		return s.test
	}
	return nil
}

// NumTrainElements returns the size of the training partition.
func (d *MnistData) NumTrainElements() int {
	train, _ := d.cfg.TrainRatio.Split(d.cfg.NumElements)
	return train
}

// NumTestElements returns the size of the test partition.
func (d *MnistData) NumTestElements() int {
	_, test := d.cfg.TrainRatio.Split(d.cfg.NumElements)
	return test
}

// NextTrainBatch draws the next batchSize samples from the training partition.
func (d *MnistData) NextTrainBatch(batchSize int) (*Batch, error) {
	s := d.state.Load()
	if s == nil {
		return nil, ErrNotLoaded
	}
	return s.train.NextBatch(batchSize)
}

// NextTestBatch draws the next batchSize samples from the test partition.
func (d *MnistData) NextTestBatch(batchSize int) (*Batch, error) {
	s := d.state.Load()
	if s == nil {
		return nil, ErrNotLoaded
	}
	return s.test.NextBatch(batchSize)
}
