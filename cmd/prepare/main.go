package main

// Command prepare downloads the sprite MNIST dataset (or reuses the local
// cache), splits it into train/test partitions and draws a few batches to
// check the pipeline end to end. Optionally it writes a class histogram of
// both partitions and a tile image of the first training batch.
//
// Usage:
//   go run ./cmd/prepare -plot output/classes.png -sample output/batch.png

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/Noofbiz/spritemnist/datasets"
	"github.com/Noofbiz/spritemnist/inspect"
	"github.com/Noofbiz/spritemnist/provider"
)

// defaultConfigJSON documents the JSON config accepted by -config. Values
// from the file apply only where the matching flag was left at its default.
const defaultConfigJSON = `{
  "download": {
    "cache_dir": "",
    "images_url": "https://storage.googleapis.com/learnjs-data/model-builder/mnist_images.png",
    "labels_url": "https://storage.googleapis.com/learnjs-data/model-builder/mnist_labels_uint8",
    "timeout_seconds": 300
  },
  "sampling": {
    "seed": 0,
    "random_seed": false,
    "batch_size": 64,
    "batches": 10,
    "reshuffle_each_cycle": false
  },
  "output": {
    "plot": "",
    "sample": "",
    "sample_cols": 8
  }
}
`

// config is the effective configuration after merging JSON and CLI flags.
type config struct {
	Download struct {
		CacheDir       string `json:"cache_dir"`
		ImagesURL      string `json:"images_url"`
		LabelsURL      string `json:"labels_url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"download"`
	Sampling struct {
		Seed               int64 `json:"seed"`
		RandomSeed         bool  `json:"random_seed"`
		BatchSize          int   `json:"batch_size"`
		Batches            int   `json:"batches"`
		ReshuffleEachCycle bool  `json:"reshuffle_each_cycle"`
	} `json:"sampling"`
	Output struct {
		Plot       string `json:"plot"`
		Sample     string `json:"sample"`
		SampleCols int    `json:"sample_cols"`
	} `json:"output"`
}

func defaultConfig() config {
	var cfg config
	if err := json.Unmarshal([]byte(defaultConfigJSON), &cfg); err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// loadConfigFile overlays the JSON file at path on top of cfg.
func loadConfigFile(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func main() {
	klog.InitFlags(nil)
	defaults := defaultConfig()

	configPath := flag.String("config", "", "path to a JSON config file (optional); explicit flags override its values")
	cacheDir := flag.String("cache-dir", defaults.Download.CacheDir, "directory caching the downloaded files (empty = user cache dir)")
	imagesURL := flag.String("images-url", defaults.Download.ImagesURL, "URL of the image sprite PNG")
	labelsURL := flag.String("labels-url", defaults.Download.LabelsURL, "URL of the uint8 one-hot label file")
	timeout := flag.Duration("timeout", time.Duration(defaults.Download.TimeoutSeconds)*time.Second, "timeout for fetching and decoding the dataset")
	seed := flag.Int64("seed", defaults.Sampling.Seed, "seed for the shuffled orders")
	randomSeed := flag.Bool("random-seed", defaults.Sampling.RandomSeed, "ignore -seed and draw a time-based seed (logged for reproduction)")
	batchSize := flag.Int("batch-size", defaults.Sampling.BatchSize, "number of samples per batch")
	batches := flag.Int("batches", defaults.Sampling.Batches, "number of train and test batches to draw")
	reshuffle := flag.Bool("reshuffle", defaults.Sampling.ReshuffleEachCycle, "draw a new order every time a partition wraps")
	plotPath := flag.String("plot", defaults.Output.Plot, "if set, write the per-class histogram of both partitions to this path")
	samplePath := flag.String("sample", defaults.Output.Sample, "if set, write the first training batch as a tile image to this path")
	sampleCols := flag.Int("sample-cols", defaults.Output.SampleCols, "number of columns of the tile image")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")
	flag.Parse()
	defer klog.Flush()

	cfg := defaults
	if strings.TrimSpace(*configPath) != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			klog.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		klog.Infof("Loaded config from %s", *configPath)
	}

	// Explicit flags win over the JSON file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cache-dir":
			cfg.Download.CacheDir = *cacheDir
		case "images-url":
			cfg.Download.ImagesURL = *imagesURL
		case "labels-url":
			cfg.Download.LabelsURL = *labelsURL
		case "timeout":
			cfg.Download.TimeoutSeconds = int(timeout.Seconds())
		case "seed":
			cfg.Sampling.Seed = *seed
		case "random-seed":
			cfg.Sampling.RandomSeed = *randomSeed
		case "batch-size":
			cfg.Sampling.BatchSize = *batchSize
		case "batches":
			cfg.Sampling.Batches = *batches
		case "reshuffle":
			cfg.Sampling.ReshuffleEachCycle = *reshuffle
		case "plot":
			cfg.Output.Plot = *plotPath
		case "sample":
			cfg.Output.Sample = *samplePath
		case "sample-cols":
			cfg.Output.SampleCols = *sampleCols
		}
	})

	if *printEffectiveConfig {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			klog.Fatalf("failed to encode effective config: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	if err := run(cfg); err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(1)
	}
}

func run(cfg config) error {
	if cfg.Download.CacheDir == "" {
		dir, err := provider.DefaultCacheDir()
		if err != nil {
			return err
		}
		cfg.Download.CacheDir = dir
	}
	klog.Infof("Using cache dir %s", cfg.Download.CacheDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cfg.Download.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Download.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	fetcher := &provider.Fetcher{CacheDir: cfg.Download.CacheDir}
	pixels := provider.NewSpritePixels(fetcher)
	pixels.Source = provider.URLSource{URL: cfg.Download.ImagesURL, Fetcher: fetcher}
	labels := provider.NewUint8Labels(fetcher)
	labels.Source = provider.URLSource{URL: cfg.Download.LabelsURL, Fetcher: fetcher}

	ds, err := datasets.NewMnistData(pixels, labels, datasets.Config{
		Seed:               cfg.Sampling.Seed,
		RandomSeed:         cfg.Sampling.RandomSeed,
		ReshuffleEachCycle: cfg.Sampling.ReshuffleEachCycle,
		BatchSize:          cfg.Sampling.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	start := time.Now()
	if err := ds.Load(ctx); err != nil {
		return err
	}
	dsCfg := ds.Config()
	klog.Infof("Dataset loaded in %s: train=%d test=%d (ratio %s, seed %d)",
		time.Since(start).Round(time.Millisecond), ds.NumTrainElements(), ds.NumTestElements(), dsCfg.TrainRatio, dsCfg.Seed)

	var first *datasets.Batch
	for i := range cfg.Sampling.Batches {
		trainBatch, err := ds.NextTrainBatch(cfg.Sampling.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to draw train batch %d: %w", i, err)
		}
		testBatch, err := ds.NextTestBatch(cfg.Sampling.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to draw test batch %d: %w", i, err)
		}
		if first == nil {
			first = trainBatch
		}
		klog.V(1).Infof("batch %d: train classes %v, test classes %v", i, trainBatch.ClassCounts(), testBatch.ClassCounts())
	}
	if first != nil {
		inT, labT, err := first.ToGomlxTensors()
		if err != nil {
			return fmt.Errorf("failed to convert batch to gomlx tensors: %w", err)
		}
		klog.Infof("First train batch tensors: images %s, labels %s", inT.Shape(), labT.Shape())
	}
	klog.Infof("Drew %d train and %d test batches of %d samples; cursors at train=%d test=%d",
		cfg.Sampling.Batches, cfg.Sampling.Batches, cfg.Sampling.BatchSize, ds.Train().Cursor(), ds.Test().Cursor())

	if cfg.Output.Plot != "" {
		if err := inspect.PlotClassCounts(cfg.Output.Plot, ds.Train().ClassCounts(), ds.Test().ClassCounts()); err != nil {
			return fmt.Errorf("failed to write class plot: %w", err)
		}
		klog.Infof("Wrote class histogram to %s", cfg.Output.Plot)
	}
	if cfg.Output.Sample != "" {
		if first == nil {
			klog.Warningf("no batch drawn (-batches=0); skipping %s", cfg.Output.Sample)
		} else if err := inspect.SaveTiles(cfg.Output.Sample, first, cfg.Output.SampleCols); err != nil {
			return fmt.Errorf("failed to write sample tiles: %w", err)
		} else {
			klog.Infof("Wrote sample tiles to %s", cfg.Output.Sample)
		}
	}
	return nil
}
