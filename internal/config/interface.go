package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/fsutil"
)

// Loader reads page definitions from files of one format.
type Loader interface {
	// Extensions lists the file extensions the loader accepts, with the
	// leading dot.
	Extensions() []string
	// Load reads and merges the given files.
	Load(ctx context.Context, files ...string) (*Page, error)
}

// Discover expands paths into the sorted list of files with one of exts.
// Directories are walked recursively. A path that names a file with
// another extension is an error; a missing path is skipped.
func Discover(ctx context.Context, exts []string, paths ...string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	want := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		want[strings.ToLower(ext)] = struct{}{}
	}

	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Debug("Page path does not exist, skipping.", "path", path)
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if !fsutil.HasExtension(path, want) {
				return nil, fmt.Errorf("unsupported page file %s: want one of %s", path, strings.Join(exts, ", "))
			}
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, exts...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		for _, f := range found {
			add(f)
		}
	}
	sort.Strings(files)
	logger.Debug("Discovered page files.", "count", len(files))
	return files, nil
}

// MultiLoader dispatches each file to the loader owning its extension.
type MultiLoader struct {
	loaders map[string]Loader
	exts    []string
}

// NewMultiLoader combines loaders. A later loader wins an extension
// claimed twice.
func NewMultiLoader(loaders ...Loader) *MultiLoader {
	m := &MultiLoader{loaders: make(map[string]Loader)}
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			ext = strings.ToLower(ext)
			if _, ok := m.loaders[ext]; !ok {
				m.exts = append(m.exts, ext)
			}
			m.loaders[ext] = l
		}
	}
	sort.Strings(m.exts)
	return m
}

// Extensions implements Loader.
func (m *MultiLoader) Extensions() []string { return append([]string(nil), m.exts...) }

// Load implements Loader. Files are loaded in the given order.
func (m *MultiLoader) Load(ctx context.Context, files ...string) (*Page, error) {
	page := &Page{}
	for _, f := range files {
		l, ok := m.loaders[strings.ToLower(filepath.Ext(f))]
		if !ok {
			return nil, fmt.Errorf("no loader for %s", f)
		}
		p, err := l.Load(ctx, f)
		if err != nil {
			return nil, err
		}
		page.Merge(p)
	}
	return page, nil
}

// LoadPaths discovers the files under paths that l accepts and loads them.
func LoadPaths(ctx context.Context, l Loader, paths ...string) (*Page, error) {
	files, err := Discover(ctx, l.Extensions(), paths...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no page files found in %s", strings.Join(paths, ", "))
	}
	return l.Load(ctx, files...)
}
