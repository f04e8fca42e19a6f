package embindex

import (
	"os"
	"path/filepath"
)

// ensureModelCache creates the on-disk, version-pinned cache directory
// for the embedder's model weights. This embedder has no weights to
// fetch, but the directory is where a future real-model backend would
// cache them under the index directory.
func ensureModelCache(dir string) error {
	return os.MkdirAll(filepath.Clean(dir), 0o755)
}
