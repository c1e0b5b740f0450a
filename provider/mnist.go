package provider

import (
	"github.com/Noofbiz/spritemnist/datasets"
)

// NewMnistData wires the default sprite and label providers, both fetched
// through f, into an unloaded datasets.MnistData. The providers expect the
// shapes of cfg once its defaults are applied.
func NewMnistData(f *Fetcher, cfg datasets.Config) (*datasets.MnistData, error) {
	cfg = cfg.WithDefaults()
	pixels := NewSpritePixels(f)
	pixels.ImageSize = cfg.ImageSize
	pixels.NumElements = cfg.NumElements
	labels := NewUint8Labels(f)
	labels.NumClasses = cfg.NumClasses
	labels.NumElements = cfg.NumElements
	return datasets.NewMnistData(pixels, labels, cfg)
}
