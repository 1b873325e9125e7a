package hub

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func fixtureServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[filepath.Base(r.URL.Path)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func allFixtureFiles() map[string]string {
	return map[string]string{
		ConfigFile:    `{"model_type":"gpt2","vocab_size":50257,"n_layer":6,"n_head":12,"n_embd":768,"eos_token_id":50256,"bos_token_id":50256}`,
		ModelFile:     "onnx-bytes",
		VocabFile:     `{"a":0}`,
		MergesFile:    "#version: 0.2\n",
		TokenizerFile: `{"version":"1.0"}`,
	}
}

func TestEnsureDownloadsArtifacts(t *testing.T) {
	server := fixtureServer(t, allFixtureFiles())
	cache := t.TempDir()

	d := NewDownloader(testLogger(),
		WithCacheDir(cache),
		WithBaseURL(server.URL),
		WithProgress(false),
	)

	dir, err := d.Ensure("distilgpt2")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	for name := range allFixtureFiles() {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to be downloaded: %v", name, err)
		}
	}
}

func TestEnsureUsesCache(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		body, ok := allFixtureFiles()[filepath.Base(r.URL.Path)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	cache := t.TempDir()
	d := NewDownloader(testLogger(),
		WithCacheDir(cache),
		WithBaseURL(server.URL),
		WithProgress(false),
	)

	if _, err := d.Ensure("distilgpt2"); err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}

	firstRun := requests
	if _, err := d.Ensure("distilgpt2"); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}

	if requests != firstRun {
		t.Errorf("Expected cached artifacts to be reused, saw %d extra requests", requests-firstRun)
	}
}

func TestEnsureOptionalArtifactMissing(t *testing.T) {
	files := allFixtureFiles()
	delete(files, TokenizerFile)
	server := fixtureServer(t, files)

	d := NewDownloader(testLogger(),
		WithCacheDir(t.TempDir()),
		WithBaseURL(server.URL),
		WithProgress(false),
	)

	dir, err := d.Ensure("distilgpt2")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, TokenizerFile)); err == nil {
		t.Errorf("Did not expect %s to exist", TokenizerFile)
	}
}

func TestEnsureRequiredArtifactMissing(t *testing.T) {
	files := allFixtureFiles()
	delete(files, ModelFile)
	server := fixtureServer(t, files)

	d := NewDownloader(testLogger(),
		WithCacheDir(t.TempDir()),
		WithBaseURL(server.URL),
		WithProgress(false),
	)

	if _, err := d.Ensure("distilgpt2"); err == nil {
		t.Errorf("Expected error for missing required artifact")
	}
}

func TestEnsureLocalDirectory(t *testing.T) {
	dir := t.TempDir()

	d := NewDownloader(testLogger(), WithProgress(false))

	got, err := d.Ensure(dir)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	if got != dir {
		t.Errorf("Expected local directory %q to pass through, got %q", dir, got)
	}
}

func TestModelDirNesting(t *testing.T) {
	dir := ModelDir("/cache", "openai-community/gpt2")
	want := filepath.Join("/cache", "models", "openai-community", "gpt2")
	if dir != want {
		t.Errorf("Expected %q, got %q", want, dir)
	}
}

func TestLoadModelConfig(t *testing.T) {
	dir := t.TempDir()
	content := allFixtureFiles()[ConfigFile]
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadModelConfig(dir)
	if err != nil {
		t.Fatalf("LoadModelConfig failed: %v", err)
	}

	if cfg.ModelType != "gpt2" {
		t.Errorf("Expected model type gpt2, got %q", cfg.ModelType)
	}
	if cfg.NLayer != 6 || cfg.NHead != 12 {
		t.Errorf("Expected 6 layers and 12 heads, got %d and %d", cfg.NLayer, cfg.NHead)
	}
	if cfg.HeadDim() != 64 {
		t.Errorf("Expected head dim 64, got %d", cfg.HeadDim())
	}
	if cfg.EOSTokenID != 50256 {
		t.Errorf("Expected EOS 50256, got %d", cfg.EOSTokenID)
	}
}

func TestLoadModelConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`{"model_type":"gpt2"}`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadModelConfig(dir); err == nil {
		t.Errorf("Expected error for config without dimensions")
	}
}
