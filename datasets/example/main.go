package main

// Example command that demonstrates loading the sprite MNIST dataset with the
// default providers and converting a few batches into gomlx tensors.
//
// The sprite and label files are downloaded once into the user cache dir and
// reused afterwards.
//
// Usage:
//   go run ./datasets/example

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/Noofbiz/spritemnist/datasets"
	"github.com/Noofbiz/spritemnist/provider"
)

func main() {
	cacheDir, err := provider.DefaultCacheDir()
	if err != nil {
		klog.Fatalf("failed to find cache dir: %v", err)
	}
	ds, err := provider.NewMnistData(&provider.Fetcher{CacheDir: cacheDir}, datasets.Config{Seed: 42})
	if err != nil {
		klog.Fatalf("failed to create dataset: %v", err)
	}

	// Drawing before Load is an error.
	if _, err := ds.NextTrainBatch(8); err != nil {
		fmt.Printf("Before load: %v\n", err)
	}

	if err := ds.Load(context.Background()); err != nil {
		klog.Fatalf("failed to load dataset: %v", err)
	}
	fmt.Printf("Train examples: %d, test examples: %d\n", ds.Train().Len(), ds.Test().Len())

	batch, err := ds.NextTrainBatch(8)
	if err != nil {
		klog.Fatalf("failed to draw train batch: %v", err)
	}
	inT, laT, err := batch.ToGomlxTensors()
	if err != nil {
		klog.Fatalf("failed to convert train batch to gomlx tensors: %v", err)
	}
	fmt.Printf("Created train tensors: input=%s label=%s\n", inT.Shape(), laT.Shape())
	fmt.Printf("  Classes in batch: %v\n", batch.ClassCounts())

	// The partitions are gomlx train.Dataset implementations.
	test := ds.Test()
	test.SetBatchSize(16)
	_, inputs, labels, err := test.Yield()
	if err != nil {
		klog.Fatalf("failed to yield test batch: %v", err)
	}
	fmt.Printf("Yielded test tensors: input=%s label=%s\n", inputs[0].Shape(), labels[0].Shape())
	fmt.Printf("Cursors: train=%d test=%d\n", ds.Train().Cursor(), test.Cursor())
}
