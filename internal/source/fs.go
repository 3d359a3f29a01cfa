// Package source provides the read-only inputs of the scanners: bounded
// file reads, deterministic directory walks and database projections.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/wpspectre/internal/models"
)

// Entry is one item of a directory listing.
type Entry struct {
	Path       string
	Rel        string // slash separated, relative to the listing root
	IsFile     bool
	Size       int64
	Mode       fs.FileMode
	ModifiedAt time.Time
}

// Name returns the base name of the entry.
func (e Entry) Name() string { return filepath.Base(e.Path) }

// ListOptions bounds a tree walk.
type ListOptions struct {
	// MaxDepth limits recursion; 0 means unlimited. Depth 1 lists only the
	// root's direct children.
	MaxDepth int
	// SkipDirs are directory names, or slash-separated paths relative to the
	// root, that are not descended into.
	SkipDirs []string
}

// FS reads the filesystem. The zero value is usable and unthrottled.
type FS struct {
	limiter *rate.Limiter
}

// NewFS returns a filesystem source reading at most filesPerSecond files per
// second; 0 disables throttling.
func NewFS(filesPerSecond float64) *FS {
	if filesPerSecond <= 0 {
		return &FS{}
	}
	return &FS{limiter: rate.NewLimiter(rate.Limit(filesPerSecond), 1)}
}

// ReadBounded returns at most max bytes of path. Missing or unreadable
// files yield nil; it never fails.
func (s *FS) ReadBounded(ctx context.Context, path string, max int64) []byte {
	if s != nil && s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	if max <= 0 {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(f, max))
	if err != nil && len(data) == 0 {
		return nil
	}
	return data
}

// Readable reports whether path can be opened for reading.
func (s *FS) Readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Stat returns the entry for path.
func (s *FS) Stat(path string) (Entry, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, false
	}
	return entryOf(path, filepath.Base(path), info), true
}

// CheckDir returns an error wrapping models.ErrNotDirectory unless root is
// an existing directory.
func CheckDir(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", models.ErrNotDirectory, root)
		}
		return fmt.Errorf("%w: %v", models.ErrNotDirectory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", models.ErrNotDirectory, root)
	}
	return nil
}

// ReadDir lists the direct children of dir sorted by name.
func (s *FS) ReadDir(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, d := range des {
		info, err := d.Info()
		if err != nil {
			continue
		}
		out = append(out, entryOf(filepath.Join(dir, d.Name()), d.Name(), info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out, nil
}

// ListTree walks root depth first in lexical order, hidden files included.
// Unreadable subdirectories are skipped. The root itself is not listed.
func (s *FS) ListTree(root string, opts ListOptions) ([]Entry, error) {
	if err := CheckDir(root); err != nil {
		return nil, err
	}
	skipPath, skipName := splitSkips(opts.SkipDirs)

	var out []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() && (skipPath[rel] || skipName[d.Name()]) {
			return filepath.SkipDir
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		out = append(out, entryOf(path, rel, info))

		if d.IsDir() && opts.MaxDepth > 0 && strings.Count(rel, "/")+1 >= opts.MaxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, nil
}

func entryOf(path, rel string, info fs.FileInfo) Entry {
	return Entry{
		Path:       path,
		Rel:        rel,
		IsFile:     info.Mode().IsRegular(),
		Size:       info.Size(),
		Mode:       info.Mode(),
		ModifiedAt: info.ModTime(),
	}
}

func splitSkips(skips []string) (paths, names map[string]bool) {
	paths = make(map[string]bool)
	names = make(map[string]bool)
	for _, s := range skips {
		s = strings.Trim(filepath.ToSlash(s), "/")
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			paths[s] = true
		} else {
			names[s] = true
		}
	}
	return paths, names
}
