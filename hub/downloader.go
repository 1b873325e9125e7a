// Package hub resolves model identifiers to local artifact directories,
// downloading missing files from the HuggingFace hub.
package hub

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

const (
	ConfigFile    = "config.json"
	ModelFile     = "model.onnx"
	VocabFile     = "vocab.json"
	MergesFile    = "merges.txt"
	TokenizerFile = "tokenizer.json"

	defaultBaseURL = "https://huggingface.co"
)

// artifact is one file of a checkpoint. Optional artifacts are fetched on
// a best-effort basis and their absence is not an error.
type artifact struct {
	name     string
	optional bool
}

var artifacts = []artifact{
	{name: ConfigFile},
	{name: ModelFile},
	{name: VocabFile},
	{name: MergesFile},
	{name: TokenizerFile, optional: true},
}

// Downloader fetches checkpoint artifacts into a local cache
type Downloader struct {
	cacheDir string
	baseURL  string
	client   *http.Client
	log      *logrus.Logger
	progress bool
}

// DownloaderOption is a functional option for Downloader
type DownloaderOption func(*Downloader)

// NewDownloader creates a downloader using the per-user cache directory
func NewDownloader(log *logrus.Logger, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		cacheDir: CacheDir(),
		baseURL:  defaultBaseURL,
		client:   &http.Client{},
		log:      log,
		progress: true,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// WithCacheDir overrides the cache directory
func WithCacheDir(dir string) DownloaderOption {
	return func(d *Downloader) {
		d.cacheDir = dir
	}
}

// WithBaseURL overrides the hub endpoint
func WithBaseURL(url string) DownloaderOption {
	return func(d *Downloader) {
		d.baseURL = url
	}
}

// WithProgress toggles the download progress bar
func WithProgress(enabled bool) DownloaderOption {
	return func(d *Downloader) {
		d.progress = enabled
	}
}

// Ensure resolves a model identifier to a directory containing its
// artifacts. A path to an existing directory is returned as-is; a hub ID
// is resolved against the cache, downloading whatever is missing.
func (d *Downloader) Ensure(modelID string) (string, error) {
	if info, err := os.Stat(modelID); err == nil && info.IsDir() {
		return modelID, nil
	}

	dir := ModelDir(d.cacheDir, modelID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	for _, a := range artifacts {
		dest := filepath.Join(dir, a.name)
		if fileExists(dest) {
			continue
		}

		url := fmt.Sprintf("%s/%s/resolve/main/%s", d.baseURL, modelID, a.name)
		d.log.WithFields(logrus.Fields{"model": modelID, "file": a.name}).Info("downloading artifact")

		if err := d.downloadFile(url, dest); err != nil {
			if a.optional {
				d.log.WithField("file", a.name).Debug("optional artifact unavailable")
				continue
			}
			return "", fmt.Errorf("failed to download %s: %w", a.name, err)
		}
	}

	return dir, nil
}

func (d *Downloader) downloadFile(url, dest string) error {
	resp, err := d.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	var w io.Writer = out
	if d.progress {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(dest))
		w = io.MultiWriter(out, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dest)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
