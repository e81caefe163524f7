// Package cache ensures a base OS image
// named in the catalog is present on local disk, downloading it at most once
// per key even under concurrent callers, and leaves no partial file behind on
// failure or cancellation.
package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/storage"
)

// downloadTimeout bounds a single base-image download.
const downloadTimeout = 30 * time.Minute

// Cache resolves OSImage catalog entries to a local file, downloading and
// locking under <base>/images.
type Cache struct {
	dir string
}

// New returns a Cache rooted at <base>/images, creating the directory if
// necessary.
func New(baseDir string) (*Cache, error) {
	dir := filepath.Join(baseDir, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image cache dir %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// localPath returns the final, stable path for a cached image. The URL's
// basename is preserved, so a cache directory reads like a listing of the
// upstream files; a URL with no usable basename falls back to the catalog
// key.
func (c *Cache) localPath(img spec.OSImage) string {
	return filepath.Join(c.dir, cacheFileName(img))
}

func cacheFileName(img spec.OSImage) string {
	if u, err := url.Parse(img.URL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return img.Key + ".img"
}

// lockPath returns the advisory-lock sidecar path for img. Using a sidecar
// rather than flocking the image file itself means lockers never contend
// with readers opening the completed file for qemu-img.
func (c *Cache) lockPath(img spec.OSImage) string {
	return filepath.Join(c.dir, "."+cacheFileName(img)+".lock")
}

// partPath is the in-progress download destination; it never appears as a
// complete, usable cache entry, and a crash mid-download leaves only a
// `.part` file behind for the next Ensure call to overwrite or clean up.
func (c *Cache) partPath(img spec.OSImage) string {
	return filepath.Join(c.dir, cacheFileName(img)+".part")
}

// Ensure returns the local path to img, downloading it first if absent.
// Concurrent calls for the same key serialize on a per-key advisory lock
// (gofrs/flock); a caller that already has the file complete returns
// immediately without taking the lock's slow path.
func (c *Cache) Ensure(ctx context.Context, img spec.OSImage) (string, error) {
	final := c.localPath(img)
	if fileComplete(final) {
		return final, nil
	}

	fl := flock.New(c.lockPath(img))
	if ok, err := fl.TryLockContext(ctx, 200*time.Millisecond); err != nil || !ok {
		if err == nil {
			err = ctx.Err()
		}
		return "", dockerr.New(dockerr.ImageFetch, img.Key, "another dockvirt process may be downloading this image", err)
	}
	defer fl.Unlock() //nolint:errcheck

	// Re-check after acquiring the lock: another process may have finished
	// the download while we were waiting.
	if fileComplete(final) {
		return final, nil
	}

	if err := c.download(ctx, img, final); err != nil {
		return "", err
	}
	return final, nil
}

func fileComplete(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// download fetches img.URL into a `.part` file and atomically renames it
// into place only once fully written and format-checked, so a partial
// download can never be mistaken for a usable cache entry.
func (c *Cache) download(ctx context.Context, img spec.OSImage, final string) error {
	part := c.partPath(img)
	defer os.Remove(part) //nolint:errcheck // no-op once renamed away

	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, img.URL, nil)
	if err != nil {
		return dockerr.New(dockerr.ImageFetch, img.URL, "check the image URL in config.yaml", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return dockerr.New(dockerr.ImageFetch, img.URL, "check network connectivity", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return dockerr.New(dockerr.ImageFetch, img.URL, "check the image URL in config.yaml", fmt.Errorf("HTTP GET %s: status %s", img.URL, resp.Status))
	}

	f, err := os.Create(part)
	if err != nil {
		return dockerr.New(dockerr.ImageFetch, img.Key, "check disk space and permissions", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close() //nolint:errcheck
		return dockerr.New(dockerr.ImageFetch, img.URL, "download interrupted, retry", err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return dockerr.New(dockerr.ImageFetch, img.Key, "check disk space", err)
	}
	if err := f.Close(); err != nil {
		return dockerr.New(dockerr.ImageFetch, img.Key, "check disk space", err)
	}

	if _, err := storage.DetectImageFormat(part); err != nil {
		return dockerr.New(dockerr.ImageFetch, img.URL, "the downloaded file is not a recognizable qcow2 or raw image", err)
	}

	if err := os.Rename(part, final); err != nil {
		return dockerr.New(dockerr.ImageFetch, img.Key, "check disk space and permissions", err)
	}
	return nil
}

// Remove deletes img's cached file; a file that is already absent is not an
// error.
func (c *Cache) Remove(img spec.OSImage) error {
	if err := os.Remove(c.localPath(img)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cached image %s: %w", img.Key, err)
	}
	return nil
}

// Entry reports the current cache state for img without triggering a download.
func (c *Cache) Entry(img spec.OSImage) spec.ImageCacheEntry {
	path := c.localPath(img)
	return spec.ImageCacheEntry{
		Key:       img.Key,
		URL:       img.URL,
		LocalPath: path,
		Complete:  fileComplete(path),
	}
}
