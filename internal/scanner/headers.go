package scanner

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/source"
)

var mainFileDirs = regexp.MustCompile(`(?i)^(?:inc|includes?|core|src|classes?)$`)

// Headers checks theme and plugin header blocks.
type Headers struct {
	opts Options
}

// NewHeaders creates the theme/plugin header scanner.
func NewHeaders(opts Options) *Headers {
	return &Headers{opts: opts.withDefaults()}
}

// Name implements Scanner.
func (s *Headers) Name() string { return NameHeaders }

type headerScope struct {
	t    Target
	c    *collector.Collector
	kind string
	name string
	dir  string
}

func (h headerScope) add(typ string, sev models.Severity, detail string) bool {
	return h.c.Add(models.Finding{
		Severity: sev,
		Type:     typ,
		Subject:  h.t.rel(h.dir),
		Detail:   detail,
		Extra:    map[string]string{"kind": h.kind, "name": h.name},
	})
}

// Scan implements Scanner. Missing theme or plugin directories are skipped.
func (s *Headers) Scan(ctx context.Context, t Target, c *collector.Collector) (int, error) {
	l := t.layout()
	fsrc := t.fs()
	scanned := 0

	themes, _ := fsrc.ReadDir(l.ThemesDir)
	for _, e := range themes {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}
		if !e.Mode.IsDir() {
			continue
		}
		scanned++
		if !s.theme(ctx, fsrc, headerScope{t: t, c: c, kind: "theme", name: e.Name(), dir: e.Path}) {
			return scanned, nil
		}
	}

	for _, group := range []struct{ kind, dir string }{{"plugin", l.PluginsDir}, {"mu-plugin", l.MUPlugins}} {
		entries, _ := fsrc.ReadDir(group.dir)
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return scanned, err
			}
			scope := headerScope{t: t, c: c, kind: group.kind, name: e.Name(), dir: e.Path}
			var main string
			switch {
			case e.Mode.IsDir():
				main = s.mainFile(ctx, fsrc, e.Path)
			case group.kind == "mu-plugin" && e.IsFile && isPHP(e.Name()):
				main = e.Path
			default:
				continue
			}
			scanned++
			if !s.plugin(ctx, fsrc, scope, main) {
				return scanned, nil
			}
		}
	}
	return scanned, nil
}

func (s *Headers) theme(ctx context.Context, fsrc *source.FS, h headerScope) bool {
	style := filepath.Join(h.dir, "style.css")
	if !fsrc.Readable(style) {
		return h.add("theme_style_missing", models.SeverityCritical, "style.css is missing")
	}
	hdr := ThemeHeader(fsrc.ReadBounded(ctx, style, s.opts.HeaderRead))
	if miss := hdr.Missing("Theme Name", "Version"); len(miss) > 0 {
		if !h.add("theme_header_incomplete", models.SeverityAlert, "incomplete header, missing: "+strings.Join(miss, ", ")) {
			return false
		}
	} else if s.opts.ReportOK {
		if !h.add("theme_ok", models.SeverityInfo, "header ok ("+hdr["Theme Name"]+" v"+hdr["Version"]+")") {
			return false
		}
	}
	if uri := hdr["Update URI"]; uri != "" {
		if !h.add("update_uri", models.SeverityInfo, "Update URI: "+uri) {
			return false
		}
	}
	if parent := hdr["Template"]; parent != "" {
		return h.add("child_theme", models.SeverityInfo, "child theme of "+parent)
	}
	return true
}

func (s *Headers) plugin(ctx context.Context, fsrc *source.FS, h headerScope, main string) bool {
	if main == "" {
		return h.add("plugin_main_missing", models.SeverityAlert, "no main file with a plugin header")
	}
	buf := fsrc.ReadBounded(ctx, main, s.opts.HeaderRead)
	hdr := PluginHeader(buf)
	file := h.t.rel(main)

	if CodeBeforeHeader(buf) {
		if !h.add("code_before_header", models.SeverityCritical, "executable code before the plugin header in "+file) {
			return false
		}
	}
	if miss := hdr.Missing("Plugin Name", "Version"); len(miss) > 0 {
		if !h.add("plugin_header_incomplete", models.SeverityAlert, "incomplete header in "+file+", missing: "+strings.Join(miss, ", ")) {
			return false
		}
	} else if s.opts.ReportOK {
		if !h.add("plugin_ok", models.SeverityInfo, "header ok ("+hdr["Plugin Name"]+" v"+hdr["Version"]+") in "+file) {
			return false
		}
	}
	if uri := hdr["Update URI"]; uri != "" {
		return h.add("update_uri", models.SeverityInfo, "Update URI: "+uri)
	}
	return true
}

// mainFile picks the plugin entry point: a root .php file with a plugin
// header, then one in a conventional subdirectory, then the first root .php.
func (s *Headers) mainFile(ctx context.Context, fsrc *source.FS, dir string) string {
	entries, err := fsrc.ReadDir(dir)
	if err != nil {
		return ""
	}
	if p := s.firstWithHeader(ctx, fsrc, entries); p != "" {
		return p
	}
	for _, e := range entries {
		if !e.Mode.IsDir() || !mainFileDirs.MatchString(e.Name()) {
			continue
		}
		sub, err := fsrc.ReadDir(e.Path)
		if err != nil {
			continue
		}
		if p := s.firstWithHeader(ctx, fsrc, sub); p != "" {
			return p
		}
	}
	for _, e := range entries {
		if e.IsFile && isPHP(e.Name()) {
			return e.Path
		}
	}
	return ""
}

func (s *Headers) firstWithHeader(ctx context.Context, fsrc *source.FS, entries []source.Entry) string {
	for _, e := range entries {
		if e.IsFile && isPHP(e.Name()) && HasPluginHeader(fsrc.ReadBounded(ctx, e.Path, s.opts.HeaderRead)) {
			return e.Path
		}
	}
	return ""
}

func isPHP(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".php")
}
