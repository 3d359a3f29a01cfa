// Package discovery locates the parts of a WordPress install without
// executing any of its code.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/wpspectre/internal/source"
)

const configReadLimit = 64 * 1024

// PathStatus records whether an expected location exists.
type PathStatus struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// Layout is the discovered structure of one install. Directory fields are
// absolute paths; they are set even when the directory is missing.
type Layout struct {
	Root        string       `json:"root"`
	IsWordPress bool         `json:"is_wordpress"`
	Version     string       `json:"version,omitempty"`
	ConfigPath  string       `json:"config_path,omitempty"`
	ContentDir  string       `json:"content_dir"`
	UploadsDir  string       `json:"uploads_dir"`
	PluginsDir  string       `json:"plugins_dir"`
	MUPlugins   string       `json:"mu_plugins_dir"`
	ThemesDir   string       `json:"themes_dir"`
	DB          DBSettings   `json:"db"`
	Paths       []PathStatus `json:"paths"`

	Config *WPConfig `json:"-"`
}

// Discoverer probes a document root. Injectable deps keep it testable.
type Discoverer struct {
	fs     *source.FS
	getenv GetenvFunc
}

// New creates a Discoverer. A nil getenv disables environment lookups.
func New(fsrc *source.FS, getenv GetenvFunc) *Discoverer {
	if fsrc == nil {
		fsrc = source.NewFS(0)
	}
	return &Discoverer{fs: fsrc, getenv: getenv}
}

var versionRe = regexp.MustCompile(`\$wp_version\s*=\s*['"]([^'"]+)['"]`)

// Discover inspects root. It fails only when root is not a directory.
func (d *Discoverer) Discover(ctx context.Context, root string) (*Layout, error) {
	if err := source.CheckDir(root); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	l := &Layout{Root: abs}
	l.ConfigPath = d.findConfig(abs)
	if l.ConfigPath != "" {
		l.Config = ParseWPConfig(d.fs.ReadBounded(ctx, l.ConfigPath, configReadLimit), d.getenv)
		l.DB = l.Config.DBSettings()
	}
	if l.DB.Prefix == "" {
		l.DB.Prefix = "wp_"
	}

	l.ContentDir = filepath.Join(abs, "wp-content")
	if l.Config != nil {
		if dir := l.Config.Defines["WP_CONTENT_DIR"]; filepath.IsAbs(dir) {
			l.ContentDir = filepath.Clean(dir)
		}
	}
	l.UploadsDir = filepath.Join(l.ContentDir, "uploads")
	if l.Config != nil {
		if up := l.Config.Defines["UPLOADS"]; up != "" && !strings.ContainsAny(up, "$.(") {
			l.UploadsDir = filepath.Join(abs, filepath.FromSlash(up))
		}
	}
	l.PluginsDir = filepath.Join(l.ContentDir, "plugins")
	l.MUPlugins = filepath.Join(l.ContentDir, "mu-plugins")
	l.ThemesDir = filepath.Join(l.ContentDir, "themes")

	versionFile := filepath.Join(abs, "wp-includes", "version.php")
	if m := versionRe.FindSubmatch(d.fs.ReadBounded(ctx, versionFile, configReadLimit)); m != nil {
		l.Version = string(m[1])
	}
	l.IsWordPress = l.ConfigPath != "" || l.Version != "" || isDir(l.ContentDir)

	l.Paths = []PathStatus{
		{Name: "wp-config.php", Path: l.ConfigPath, Exists: l.ConfigPath != ""},
		{Name: "wp-includes/version.php", Path: versionFile, Exists: l.Version != ""},
		{Name: "content", Path: l.ContentDir, Exists: isDir(l.ContentDir)},
		{Name: "uploads", Path: l.UploadsDir, Exists: isDir(l.UploadsDir)},
		{Name: "plugins", Path: l.PluginsDir, Exists: isDir(l.PluginsDir)},
		{Name: "mu-plugins", Path: l.MUPlugins, Exists: isDir(l.MUPlugins)},
		{Name: "themes", Path: l.ThemesDir, Exists: isDir(l.ThemesDir)},
	}
	return l, nil
}

// Rel returns p relative to the root, slash separated. Paths outside the
// root are returned unchanged.
func (l *Layout) Rel(p string) string {
	rel, err := filepath.Rel(l.Root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// findConfig looks for wp-config.php in root, then one level up as WordPress
// itself allows when the parent is not another install.
func (d *Discoverer) findConfig(root string) string {
	candidate := filepath.Join(root, "wp-config.php")
	if isFile(candidate) {
		return candidate
	}
	parent := filepath.Dir(root)
	candidate = filepath.Join(parent, "wp-config.php")
	if parent != root && isFile(candidate) && !isFile(filepath.Join(parent, "wp-settings.php")) {
		return candidate
	}
	return ""
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
