// Package provider implements the raw pixel and label providers consumed by
// datasets.MnistData: an HTTP fetcher with an on-disk cache, a PNG sprite
// decoder and a uint8 one-hot label decoder.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// ImagesSpriteURL is the sprite holding the 65000 MNIST images, one per row.
	ImagesSpriteURL = "https://storage.googleapis.com/learnjs-data/model-builder/mnist_images.png"

	// LabelsURL holds the one-hot labels as raw bytes, 10 per image.
	LabelsURL = "https://storage.googleapis.com/learnjs-data/model-builder/mnist_labels_uint8"
)

// ByteSource yields the raw bytes of one dataset file.
type ByteSource interface {
	Bytes(ctx context.Context) ([]byte, error)
}

// Fetcher downloads files over HTTP. If CacheDir is set, files are stored
// there under the last element of their URL path, suffixed with a short hash
// of the full URL, and reused on later calls.
type Fetcher struct {
	Client   *http.Client
	CacheDir string
}

// DefaultCacheDir returns the per-user cache directory used by the CLI.
func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to find user cache dir")
	}
	return filepath.Join(dir, "spritemnist"), nil
}

// Fetch returns the contents of rawURL, from the cache when available.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.CacheDir == "" {
		return f.download(ctx, rawURL)
	}

	cachePath, err := f.cachePath(rawURL)
	if err != nil {
		return nil, err
	}
	if data, err := os.ReadFile(cachePath); err == nil {
		klog.V(1).Infof("Using cached %s (%s)", cachePath, humanize.Bytes(uint64(len(data))))
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to read cached file %s", cachePath)
	}

	data, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(cachePath, data); err != nil {
		// The download itself succeeded, so only warn.
		klog.Warningf("failed to cache %s: %v", rawURL, err)
	}
	return data, nil
}

func (f *Fetcher) cachePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URL %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", errors.Errorf("URL %q has no file name to cache under", rawURL)
	}
	sum := sha256.Sum256([]byte(u.String()))
	ext := path.Ext(name)
	name = strings.TrimSuffix(name, ext) + "-" + hex.EncodeToString(sum[:4]) + ext
	return filepath.Join(f.CacheDir, name), nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request for %s", rawURL)
	}

	klog.Infof("Downloading %s...", rawURL)
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("failed to download %s: bad status %s", rawURL, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read body of %s", rawURL)
	}
	klog.Infof("Downloaded %s (%s)", rawURL, humanize.Bytes(uint64(len(data))))
	return data, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it, so
// an interrupted download never leaves a truncated cache entry.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// URLSource reads a file through a Fetcher.
type URLSource struct {
	URL     string
	Fetcher *Fetcher
}

func (s URLSource) Bytes(ctx context.Context) ([]byte, error) {
	f := s.Fetcher
	if f == nil {
		f = &Fetcher{}
	}
	return f.Fetch(ctx, s.URL)
}

// FileSource reads a local file.
type FileSource string

func (s FileSource) Bytes(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(string(s))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", string(s))
	}
	return data, nil
}

// StaticBytes is an in-memory source.
type StaticBytes []byte

func (s StaticBytes) Bytes(ctx context.Context) ([]byte, error) {
	return s, nil
}
