package provider

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/Noofbiz/spritemnist/datasets"
)

// DefaultChunkSize is the number of sprite rows converted per step.
const DefaultChunkSize = 5000

// SpritePixels decodes a PNG sprite holding one flattened image per row:
// the sprite is ImageSize pixels wide and NumElements rows tall. Pixel
// intensities are scaled to [0, 1].
type SpritePixels struct {
	Source      ByteSource
	ImageSize   int
	NumElements int
	ChunkSize   int
}

var _ datasets.PixelProvider = (*SpritePixels)(nil)

// NewSpritePixels returns a provider for the default MNIST sprite.
func NewSpritePixels(f *Fetcher) *SpritePixels {
	return &SpritePixels{
		Source:      URLSource{URL: ImagesSpriteURL, Fetcher: f},
		ImageSize:   datasets.ImageSize,
		NumElements: datasets.NumDatasetElements,
	}
}

// Pixels implements datasets.PixelProvider.
func (s *SpritePixels) Pixels(ctx context.Context) ([]float32, error) {
	if s.Source == nil {
		return nil, errors.New("sprite source is nil")
	}
	data, err := s.Source.Bytes(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to fetch sprite")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode sprite PNG")
	}
	return DecodeSprite(ctx, img, s.ImageSize, s.NumElements, s.ChunkSize)
}

// DecodeSprite converts img to grayscale and returns numElements*imageSize
// values in [0, 1], one image per sprite row. Rows are converted in chunks of
// chunkSize through one reused gray canvas; ctx is checked between chunks.
func DecodeSprite(ctx context.Context, img image.Image, imageSize, numElements, chunkSize int) ([]float32, error) {
	if imageSize <= 0 || numElements <= 0 {
		return nil, errors.Errorf("invalid sprite shape %d x %d", imageSize, numElements)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkSize = min(chunkSize, numElements)

	bounds := img.Bounds()
	if bounds.Dx() != imageSize {
		return nil, errors.Errorf("sprite is %d pixels wide, want %d", bounds.Dx(), imageSize)
	}
	if bounds.Dy() != numElements {
		return nil, errors.Errorf("sprite has %d rows, want %d", bounds.Dy(), numElements)
	}

	out := make([]float32, numElements*imageSize)
	canvas := image.NewGray(image.Rect(0, 0, imageSize, chunkSize))
	for start := 0; start < numElements; start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := min(chunkSize, numElements-start)
		draw.Draw(canvas, image.Rect(0, 0, imageSize, rows), img, image.Pt(bounds.Min.X, bounds.Min.Y+start), draw.Src)
		for r := range rows {
			src := canvas.Pix[r*canvas.Stride : r*canvas.Stride+imageSize]
			dst := out[(start+r)*imageSize : (start+r+1)*imageSize]
			for j, v := range src {
				dst[j] = float32(v) / 255
			}
		}
	}
	return out, nil
}

// EncodeSprite packs flattened images (numElements*imageSize values in
// [0, 1]) into a grayscale sprite, one image per row. It is the inverse of
// DecodeSprite up to 8-bit quantization.
func EncodeSprite(pixels []float32, imageSize int) (*image.Gray, error) {
	if imageSize <= 0 || len(pixels)%imageSize != 0 {
		return nil, errors.Errorf("%d pixels do not form rows of %d", len(pixels), imageSize)
	}
	rows := len(pixels) / imageSize
	img := image.NewGray(image.Rect(0, 0, imageSize, rows))
	for r := range rows {
		for j := range imageSize {
			v := pixels[r*imageSize+j]
			if !(v >= 0 && v <= 1) {
				return nil, errors.Errorf("pixel %d has value %v outside [0, 1]", r*imageSize+j, v)
			}
			img.Pix[r*img.Stride+j] = uint8(v*255 + 0.5)
		}
	}
	return img, nil
}
