package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/logger"
)

// localPathAdapter reads files relative to a configured directory
type localPathAdapter struct {
	desc config.DataSourceDescriptor
	root string
}

var (
	_ Adapter    = (*localPathAdapter)(nil)
	_ FileSource = (*localPathAdapter)(nil)
)

// NewLocalPathAdapter creates a file-only adapter rooted at desc.Path
func NewLocalPathAdapter(desc config.DataSourceDescriptor) (Adapter, error) {
	if desc.Path == "" {
		return nil, &config.MissingConfigKeyError{Section: "data_sources." + desc.Name, Key: "path"}
	}
	return &localPathAdapter{desc: desc, root: filepath.Clean(desc.Path)}, nil
}

// Descriptor returns the settings the adapter was built from
func (a *localPathAdapter) Descriptor() config.DataSourceDescriptor {
	return a.desc
}

// GetFile reads path below the configured directory
func (a *localPathAdapter) GetFile(_ context.Context, path string) ([]byte, error) {
	rel := filepath.Clean(filepath.FromSlash(path))
	if !filepath.IsLocal(rel) {
		return nil, &LocalError{
			Source:    a.desc.Name,
			Operation: "read",
			Path:      path,
			Err:       fmt.Errorf("path is not local or contains invalid traversal"),
		}
	}

	fullPath := filepath.Join(a.root, rel)
	logger.Debugf("Reading %s from local path source %s", fullPath, a.desc.Name)

	//nolint:gosec // the directory comes from user configuration and rel is checked above
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, &LocalError{
			Source:    a.desc.Name,
			Operation: "read",
			Path:      fullPath,
			Err:       err,
			notFound:  errors.Is(err, fs.ErrNotExist),
		}
	}
	return data, nil
}
