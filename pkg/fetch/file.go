package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Sriram-PR/crawl-loader/pkg/config"
)

// FileAdapter reads file URLs from the local file system
type FileAdapter struct {
	resourceAdapter
}

// NewFileAdapter creates the adapter for file URLs
func NewFileAdapter(cfg *config.AppConfig, deps Deps) *FileAdapter {
	a := &FileAdapter{}
	a.resourceAdapter = newResourceAdapter("file", cfg, deps, func(context.Context, *url.URL) (session, error) {
		return localSession{}, nil
	})
	return a
}

type localSession struct{}

func (localSession) stat(p string) (remoteEntry, error) {
	info, err := os.Stat(filepath.FromSlash(p))
	if err != nil {
		return remoteEntry{}, err
	}
	size := info.Size()
	if info.IsDir() {
		size = -1
	}
	return remoteEntry{Name: info.Name(), Dir: info.IsDir(), Size: size, ModTime: info.ModTime()}, nil
}

func (localSession) list(p string) ([]remoteEntry, error) {
	dirEntries, err := os.ReadDir(filepath.FromSlash(p))
	if err != nil {
		return nil, err
	}
	entries := make([]remoteEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue // removed while listing
		}
		entries = append(entries, remoteEntry{Name: de.Name(), Dir: de.IsDir(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return entries, nil
}

func (localSession) open(p string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.FromSlash(p))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (localSession) close() error {
	return nil
}
