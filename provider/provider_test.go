package provider

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Noofbiz/spritemnist/datasets"
)

// spritePNG encodes a sprite with n rows of width imageSize where every
// pixel of row i has gray level i*10.
func spritePNG(t *testing.T, n, imageSize int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, imageSize, n))
	for i := range n {
		for j := range imageSize {
			img.SetGray(j, i, color.Gray{Y: uint8(i * 10)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode sprite: %v", err)
	}
	return buf.Bytes()
}

// newServer serves path -> body and counts requests.
func newServer(t *testing.T, files map[string][]byte, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDecodeSprite(t *testing.T) {
	const n, imageSize = 7, 3
	img, err := png.Decode(bytes.NewReader(spritePNG(t, n, imageSize)))
	if err != nil {
		t.Fatalf("png.Decode error: %v", err)
	}
	// A chunk size that does not divide n exercises the short last chunk.
	pixels, err := DecodeSprite(context.Background(), img, imageSize, n, 3)
	if err != nil {
		t.Fatalf("DecodeSprite error: %v", err)
	}
	if len(pixels) != n*imageSize {
		t.Fatalf("got %d pixels want %d", len(pixels), n*imageSize)
	}
	for i := range n {
		want := float32(i*10) / 255
		for j := range imageSize {
			if got := pixels[i*imageSize+j]; got != want {
				t.Fatalf("pixel (%d,%d): got %v want %v", i, j, got, want)
			}
		}
	}

	if _, err := DecodeSprite(context.Background(), img, imageSize+1, n, 0); err == nil {
		t.Fatalf("expected error for wrong width")
	}
	if _, err := DecodeSprite(context.Background(), img, imageSize, n+1, 0); err == nil {
		t.Fatalf("expected error for wrong height")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DecodeSprite(ctx, img, imageSize, n, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEncodeSpriteRoundTrip(t *testing.T) {
	pixels := []float32{0, 1, 0.2, 0.4, 0.6, 0.8}
	img, err := EncodeSprite(pixels, 2)
	if err != nil {
		t.Fatalf("EncodeSprite error: %v", err)
	}
	got, err := DecodeSprite(context.Background(), img, 2, 3, 0)
	if err != nil {
		t.Fatalf("DecodeSprite error: %v", err)
	}
	for i := range pixels {
		if d := got[i] - pixels[i]; d > 1.0/255 || d < -1.0/255 {
			t.Fatalf("pixel %d: got %v want ~%v", i, got[i], pixels[i])
		}
	}
	if _, err := EncodeSprite(pixels, 4); err == nil {
		t.Fatalf("expected error for pixels not forming rows")
	}
}

func TestUint8Labels(t *testing.T) {
	raw, err := EncodeUint8Labels([]int{2, 0, 1}, 3)
	if err != nil {
		t.Fatalf("EncodeUint8Labels error: %v", err)
	}
	l := &Uint8Labels{Source: StaticBytes(raw), NumClasses: 3, NumElements: 3}
	labels, err := l.Labels(context.Background())
	if err != nil {
		t.Fatalf("Labels error: %v", err)
	}
	want := []float32{0, 0, 1, 1, 0, 0, 0, 1, 0}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels: got %v want %v", labels, want)
		}
	}

	short := &Uint8Labels{Source: StaticBytes(raw[:8]), NumClasses: 3, NumElements: 3}
	if _, err := short.Labels(context.Background()); err == nil {
		t.Fatalf("expected error for short label file")
	}
	if _, err := EncodeUint8Labels([]int{3}, 3); err == nil {
		t.Fatalf("expected error for class out of range")
	}
}

func TestFetcherCachesDownloads(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, map[string][]byte{"/data/labels_uint8": []byte{1, 2, 3}}, &hits)

	cacheDir := filepath.Join(t.TempDir(), "cache")
	f := &Fetcher{Client: srv.Client(), CacheDir: cacheDir}
	for range 3 {
		data, err := f.Fetch(context.Background(), srv.URL+"/data/labels_uint8")
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
		if !bytes.Equal(data, []byte{1, 2, 3}) {
			t.Fatalf("unexpected data %v", data)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 request with a cache, got %d", hits.Load())
	}
	cached, err := f.cachePath(srv.URL + "/data/labels_uint8")
	if err != nil {
		t.Fatalf("cachePath error: %v", err)
	}
	if _, err := os.Stat(cached); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	noCache := &Fetcher{Client: srv.Client()}
	if _, err := noCache.Fetch(context.Background(), srv.URL+"/data/labels_uint8"); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected a second request without a cache, got %d", hits.Load())
	}
}

func TestFetcherBadStatus(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, nil, &hits)
	cacheDir := t.TempDir()
	f := &Fetcher{Client: srv.Client(), CacheDir: cacheDir}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Fatalf("expected error for 404")
	}
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed download left %d cache entries", len(entries))
	}
}

// TestFetcherCacheKeyIncludesURL serves the same file name from two paths
// with different contents: each URL must get its own cache entry.
func TestFetcherCacheKeyIncludesURL(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, map[string][]byte{
		"/a/labels_uint8": {1},
		"/b/labels_uint8": {2},
	}, &hits)
	f := &Fetcher{Client: srv.Client(), CacheDir: t.TempDir()}

	for range 2 {
		a, err := f.Fetch(context.Background(), srv.URL+"/a/labels_uint8")
		if err != nil || !bytes.Equal(a, []byte{1}) {
			t.Fatalf("Fetch a: data=%v err=%v", a, err)
		}
		b, err := f.Fetch(context.Background(), srv.URL+"/b/labels_uint8")
		if err != nil || !bytes.Equal(b, []byte{2}) {
			t.Fatalf("Fetch b: data=%v err=%v", b, err)
		}
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one request per URL, got %d", hits.Load())
	}

	pa, _ := f.cachePath(srv.URL + "/a/labels_uint8")
	pb, _ := f.cachePath(srv.URL + "/b/labels_uint8")
	if pa == pb {
		t.Fatalf("both URLs map to cache entry %s", pa)
	}
	if !strings.HasPrefix(filepath.Base(pa), "labels_uint8-") {
		t.Fatalf("cache entry %s does not keep the file name", pa)
	}
	pngPath, _ := f.cachePath("https://example.com/x/images.png")
	if filepath.Ext(pngPath) != ".png" {
		t.Fatalf("cache entry %s lost its extension", pngPath)
	}
}

// TestNewMnistDataUsesConfigShapes loads a small dataset through the default
// wiring. The files are placed in the cache beforehand, so nothing is
// downloaded.
func TestNewMnistDataUsesConfigShapes(t *testing.T) {
	const n, imageSize, numClasses = 6, 4, 3
	labelBytes, err := EncodeUint8Labels([]int{0, 1, 2, 0, 1, 2}, numClasses)
	if err != nil {
		t.Fatalf("EncodeUint8Labels error: %v", err)
	}
	f := &Fetcher{CacheDir: t.TempDir()}
	for url, data := range map[string][]byte{
		ImagesSpriteURL: spritePNG(t, n, imageSize),
		LabelsURL:       labelBytes,
	} {
		p, err := f.cachePath(url)
		if err != nil {
			t.Fatalf("cachePath error: %v", err)
		}
		if err := writeFileAtomic(p, data); err != nil {
			t.Fatalf("writeFileAtomic error: %v", err)
		}
	}

	ds, err := NewMnistData(f, datasets.Config{ImageSize: imageSize, NumClasses: numClasses, NumElements: n})
	if err != nil {
		t.Fatalf("NewMnistData error: %v", err)
	}
	if err := ds.Load(context.Background()); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if ds.Train().Len() != 5 || ds.Test().Len() != 1 {
		t.Fatalf("unexpected split %d/%d", ds.Train().Len(), ds.Test().Len())
	}
	batch, err := ds.NextTrainBatch(2)
	if err != nil {
		t.Fatalf("NextTrainBatch error: %v", err)
	}
	if !slices.Equal(batch.ImagesShape(), []int{2, imageSize}) || !slices.Equal(batch.LabelsShape(), []int{2, numClasses}) {
		t.Fatalf("unexpected batch shapes %v %v", batch.ImagesShape(), batch.LabelsShape())
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels")
	if err := os.WriteFile(path, []byte{0, 1}, 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	data, err := FileSource(path).Bytes(context.Background())
	if err != nil || !bytes.Equal(data, []byte{0, 1}) {
		t.Fatalf("FileSource: data=%v err=%v", data, err)
	}
	if _, err := FileSource(path + ".missing").Bytes(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

// TestLoadOverHTTP runs the whole pipeline against a local server: sprite
// and labels are fetched, decoded, split and sampled.
func TestLoadOverHTTP(t *testing.T) {
	const n, imageSize, numClasses = 6, 4, 3
	classes := []int{0, 1, 2, 0, 1, 2}
	labelBytes, err := EncodeUint8Labels(classes, numClasses)
	if err != nil {
		t.Fatalf("EncodeUint8Labels error: %v", err)
	}
	var hits atomic.Int32
	srv := newServer(t, map[string][]byte{
		"/images.png":   spritePNG(t, n, imageSize),
		"/labels_uint8": labelBytes,
	}, &hits)

	f := &Fetcher{Client: srv.Client(), CacheDir: t.TempDir()}
	pixels := &SpritePixels{Source: URLSource{URL: srv.URL + "/images.png", Fetcher: f}, ImageSize: imageSize, NumElements: n}
	labels := &Uint8Labels{Source: URLSource{URL: srv.URL + "/labels_uint8", Fetcher: f}, NumClasses: numClasses, NumElements: n}

	ds, err := datasets.NewMnistData(pixels, labels, datasets.Config{
		ImageSize:   imageSize,
		NumClasses:  numClasses,
		NumElements: n,
		Seed:        1,
	})
	if err != nil {
		t.Fatalf("NewMnistData error: %v", err)
	}
	if err := ds.Load(context.Background()); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if ds.Train().Len() != 5 || ds.Test().Len() != 1 {
		t.Fatalf("unexpected split %d/%d", ds.Train().Len(), ds.Test().Len())
	}

	batch, err := ds.NextTestBatch(2)
	if err != nil {
		t.Fatalf("NextTestBatch error: %v", err)
	}
	// The only test sample is sprite row 5 with class 2.
	for i := range batch.BatchSize {
		img, lab, _ := batch.Example(i)
		if img[0] != float32(50)/255 {
			t.Fatalf("slot %d: pixel %v want %v", i, img[0], float32(50)/255)
		}
		if datasets.Argmax(lab) != 2 {
			t.Fatalf("slot %d: label %v want class 2", i, lab)
		}
	}
}

func TestLoadOverHTTPFailure(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, map[string][]byte{"/labels_uint8": {1, 0}}, &hits)
	f := &Fetcher{Client: srv.Client()}
	pixels := &SpritePixels{Source: URLSource{URL: srv.URL + "/images.png", Fetcher: f}, ImageSize: 2, NumElements: 1}
	labels := &Uint8Labels{Source: URLSource{URL: srv.URL + "/labels_uint8", Fetcher: f}, NumClasses: 2, NumElements: 1}

	ds, err := datasets.NewMnistData(pixels, labels, datasets.Config{ImageSize: 2, NumClasses: 2, NumElements: 1})
	if err != nil {
		t.Fatalf("NewMnistData error: %v", err)
	}
	err = ds.Load(context.Background())
	var loadErr *datasets.LoadError
	if !errors.As(err, &loadErr) || loadErr.Source != "pixels" {
		t.Fatalf("expected a pixels LoadError, got %v", err)
	}
	if _, err := ds.NextTrainBatch(1); !errors.Is(err, datasets.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded after failed load, got %v", err)
	}
}

func TestStaticProvidersCopy(t *testing.T) {
	src := StaticPixels{0.5}
	got, _ := src.Pixels(context.Background())
	got[0] = 1
	if src[0] != 0.5 {
		t.Fatalf("StaticPixels returned its own storage")
	}
	lsrc := StaticLabels{1}
	lgot, _ := lsrc.Labels(context.Background())
	lgot[0] = 0
	if lsrc[0] != 1 {
		t.Fatalf("StaticLabels returned its own storage")
	}
}
