package provider

import (
	"context"
	"slices"

	"github.com/pkg/errors"

	"github.com/Noofbiz/spritemnist/datasets"
)

// Uint8Labels decodes a label file storing one byte per class per image,
// NumClasses bytes per one-hot row.
type Uint8Labels struct {
	Source      ByteSource
	NumClasses  int
	NumElements int
}

var _ datasets.LabelProvider = (*Uint8Labels)(nil)

// NewUint8Labels returns a provider for the default MNIST label file.
func NewUint8Labels(f *Fetcher) *Uint8Labels {
	return &Uint8Labels{
		Source:      URLSource{URL: LabelsURL, Fetcher: f},
		NumClasses:  datasets.NumClasses,
		NumElements: datasets.NumDatasetElements,
	}
}

// Labels implements datasets.LabelProvider.
func (l *Uint8Labels) Labels(ctx context.Context) ([]float32, error) {
	if l.Source == nil {
		return nil, errors.New("label source is nil")
	}
	data, err := l.Source.Bytes(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to fetch labels")
	}
	want := l.NumElements * l.NumClasses
	if len(data) != want {
		return nil, errors.Errorf("label file has %d bytes, want %d", len(data), want)
	}
	out := make([]float32, want)
	for i, b := range data {
		out[i] = float32(b)
	}
	return out, nil
}

// EncodeUint8Labels is the inverse of Uint8Labels: it turns class indices
// into one-hot byte rows.
func EncodeUint8Labels(classes []int, numClasses int) ([]byte, error) {
	out := make([]byte, len(classes)*numClasses)
	for i, c := range classes {
		if c < 0 || c >= numClasses {
			return nil, errors.Errorf("class %d at %d out of range [0, %d)", c, i, numClasses)
		}
		out[i*numClasses+c] = 1
	}
	return out, nil
}

// StaticPixels is an in-memory datasets.PixelProvider. Every call returns a
// fresh copy.
type StaticPixels []float32

func (s StaticPixels) Pixels(ctx context.Context) ([]float32, error) {
	return slices.Clone(s), nil
}

// StaticLabels is an in-memory datasets.LabelProvider. Every call returns a
// fresh copy.
type StaticLabels []float32

func (s StaticLabels) Labels(ctx context.Context) ([]float32, error) {
	return slices.Clone(s), nil
}
