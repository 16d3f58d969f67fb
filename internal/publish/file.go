package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	appLog "calpost/internal/log"
)

// FilePublisher writes the latest render to a fixed path, which the
// web server exposes as /preview.png. Each publish replaces the file
// atomically so readers never observe a half-written image.
type FilePublisher struct {
	Path string
}

// Publish implements Publisher.
func (f *FilePublisher) Publish(_ context.Context, a Artifact) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating preview dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".calpost-preview-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp preview: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(a.PNG); err != nil {
		tmp.Close()
		return fmt.Errorf("writing preview: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing preview: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("replacing preview: %w", err)
	}

	appLog.Debug("preview written", "path", f.Path, "bytes", len(a.PNG))
	return nil
}
