// Package inspect renders quick visual checks of a loaded dataset: per-class
// sample counts of the partitions and a tiled strip of batch images.
package inspect

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/spritemnist/datasets"
)

// PlotClassCounts writes a grouped bar chart of the per-class sample counts
// of the train (blue) and test (red) partitions. The image format follows
// the extension of path (.png, .svg, .pdf, ...).
func PlotClassCounts(path string, train, test []int) error {
	if len(train) != len(test) {
		return fmt.Errorf("train and test class counts differ in length: %d != %d", len(train), len(test))
	}
	if len(train) == 0 {
		return fmt.Errorf("no classes to plot")
	}

	p := plot.New()
	p.Title.Text = "Samples per class: train (blue), test (red)"
	p.X.Label.Text = "class"
	p.Y.Label.Text = "samples"

	w := vg.Points(12)
	trainBars, err := plotter.NewBarChart(toValues(train), w)
	if err != nil {
		return err
	}
	trainBars.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	trainBars.LineStyle.Width = vg.Length(0)
	trainBars.Offset = -w / 2

	testBars, err := plotter.NewBarChart(toValues(test), w)
	if err != nil {
		return err
	}
	testBars.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	testBars.LineStyle.Width = vg.Length(0)
	testBars.Offset = w / 2

	p.Add(trainBars, testBars, plotter.NewGrid())
	p.Legend.Add("train", trainBars)
	p.Legend.Add("test", testBars)
	p.Legend.Top = true

	names := make([]string, len(train))
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func toValues(counts []int) plotter.Values {
	vs := make(plotter.Values, len(counts))
	for i, c := range counts {
		vs[i] = float64(c)
	}
	return vs
}

// Tiles lays the batch images out in a grid of cols columns. Each image is
// reshaped into a square of side sqrt(ImageSize).
func Tiles(batch *datasets.Batch, cols int) (*image.Gray, error) {
	side := int(math.Sqrt(float64(batch.ImageSize)))
	if side*side != batch.ImageSize {
		return nil, fmt.Errorf("image size %d is not a square", batch.ImageSize)
	}
	if batch.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", datasets.ErrInvalidBatchSize, batch.BatchSize)
	}
	if cols <= 0 {
		cols = batch.BatchSize
	}
	cols = min(cols, batch.BatchSize)
	rows := (batch.BatchSize + cols - 1) / cols

	img := image.NewGray(image.Rect(0, 0, cols*side, rows*side))
	for i := range batch.BatchSize {
		pixels, _, err := batch.Example(i)
		if err != nil {
			return nil, err
		}
		x0, y0 := (i%cols)*side, (i/cols)*side
		for k, v := range pixels {
			img.SetGray(x0+k%side, y0+k/side, color.Gray{Y: uint8(math.Round(float64(v) * 255))})
		}
	}
	return img, nil
}

// SaveTiles writes Tiles(batch, cols) to path as PNG.
func SaveTiles(path string, batch *datasets.Batch, cols int) error {
	img, err := Tiles(batch, cols)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
