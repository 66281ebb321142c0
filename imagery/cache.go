package imagery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

// cacheExtension is the fixed extension for cached payloads regardless of the
// provider's wire format; every provider in the chain returns PNG.
const cacheExtension = ".png"

// DiskCache stores one file per request key under a configured directory.
// Eviction is identity-based only: writing the same key overwrites the entry.
type DiskCache struct {
	dir string
}

// NewDiskCache ensures the cache directory exists and returns the cache.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		dir = "image_cache"
	}
	if err := utils.CreateFolder(dir); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) imagePath(key string) string {
	return filepath.Join(c.dir, key+cacheExtension)
}

func (c *DiskCache) metaPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get loads a cached image by key. The second return is false on a miss.
func (c *DiskCache) Get(key string) (CachedImage, bool, error) {
	data, err := os.ReadFile(c.imagePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return CachedImage{}, false, nil
		}
		return CachedImage{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	img := CachedImage{
		Data:            data,
		ContentHash:     utils.HashBytes(data),
		Source:          "cache",
		ServedFromCache: true,
	}

	// The metadata sidecar restores provenance; a missing or corrupt
	// sidecar degrades to the bare payload rather than a cache miss.
	if meta, err := os.ReadFile(c.metaPath(key)); err == nil {
		var stored CachedImage
		if err := json.Unmarshal(meta, &stored); err == nil {
			stored.Data = data
			stored.ServedFromCache = true
			img = stored
		}
	}

	return img, true, nil
}

// Put writes an entry atomically: temp file first, then rename, so readers
// never observe a partial image.
func (c *DiskCache) Put(key string, img CachedImage) error {
	if err := writeAtomic(c.imagePath(key), img.Data); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}

	meta, err := json.Marshal(img)
	if err != nil {
		return fmt.Errorf("marshal cache metadata: %w", err)
	}
	if err := writeAtomic(c.metaPath(key), meta); err != nil {
		return fmt.Errorf("write cache metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
