package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/spec"
)

// qcow2Fixture is a minimal valid QCOW2 header recognized by
// storage.DetectImageFormat.
var qcow2Fixture = []byte{0x51, 0x46, 0x49, 0xfb, 0, 0, 0, 0}

func TestEnsure_DownloadsAndCaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(qcow2Fixture)
	}))
	defer srv.Close()

	base := t.TempDir()
	c, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	img := spec.OSImage{Key: "demo", URL: srv.URL}
	path, err := c.Ensure(context.Background(), img)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cached file at %s: %v", path, err)
	}
	if !c.Entry(img).Complete {
		t.Error("expected Entry to report Complete after Ensure")
	}

	// Second Ensure must not re-download (no-op fast path); same path returned.
	path2, err := c.Ensure(context.Background(), img)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if path2 != path {
		t.Errorf("expected stable path across calls, got %q vs %q", path, path2)
	}
}

func TestEnsure_RejectsUnrecognizedFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	base := t.TempDir()
	c, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	img := spec.OSImage{Key: "bad", URL: srv.URL}
	if _, err := c.Ensure(context.Background(), img); err == nil {
		t.Fatal("expected ImageFetch error for unrecognized format")
	} else if !dockerr.Is(err, dockerr.ImageFetch) {
		t.Errorf("expected ImageFetch kind, got %v", err)
	}

	if _, err := os.Stat(c.localPath(img)); !os.IsNotExist(err) {
		t.Error("expected no final file to be left behind on format rejection")
	}
	if _, err := os.Stat(c.partPath(img)); !os.IsNotExist(err) {
		t.Error("expected .part file to be cleaned up on failure")
	}
}

func TestEnsure_HTTPErrorLeavesNoPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	base := t.TempDir()
	c, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	img := spec.OSImage{Key: "missing", URL: srv.URL}
	if _, err := c.Ensure(context.Background(), img); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := os.Stat(c.partPath(img)); !os.IsNotExist(err) {
		t.Error("expected no .part file after HTTP error")
	}
}

func TestEnsure_ConcurrentCallersSerializeOnLock(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		_, _ = w.Write(qcow2Fixture)
	}))
	defer srv.Close()

	base := t.TempDir()
	c, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	img := spec.OSImage{Key: "concurrent", URL: srv.URL}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Ensure(context.Background(), img)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if !c.Entry(img).Complete {
		t.Error("expected image to be cached after concurrent Ensure calls")
	}
	mu.Lock()
	got := hits
	mu.Unlock()
	if got != 1 {
		t.Errorf("expected exactly one download across concurrent callers, got %d", got)
	}
}

func TestEnsure_PreservesURLBasename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(qcow2Fixture)
	}))
	defer srv.Close()

	base := t.TempDir()
	c, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	img := spec.OSImage{Key: "ubuntu22.04", URL: srv.URL + "/jammy-server-cloudimg-amd64.img"}
	path, err := c.Ensure(context.Background(), img)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := filepath.Base(path); got != "jammy-server-cloudimg-amd64.img" {
		t.Errorf("cache file name = %q, want URL basename preserved", got)
	}
}

func TestNew_CreatesImagesSubdir(t *testing.T) {
	base := t.TempDir()
	if _, err := New(base); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "images")); err != nil {
		t.Fatalf("expected images subdir: %v", err)
	}
}
