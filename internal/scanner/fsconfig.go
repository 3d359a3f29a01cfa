package scanner

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/discovery"
	"github.com/ppiankov/wpspectre/internal/logging"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/patterns"
	"github.com/ppiankov/wpspectre/internal/source"
)

// vcsProbes are version control files looked up directly, since their
// directories are not walked.
var vcsProbes = []string{".git/config", ".svn/entries", ".svn/wc.db", ".hg/hgrc"}

const nameHeadBytes = 4096

// Config audits server and application configuration files across the root.
type Config struct {
	opts Options
}

// NewConfig creates the filesystem config scanner.
func NewConfig(opts Options) *Config {
	return &Config{opts: opts.withDefaults()}
}

// Name implements Scanner.
func (s *Config) Name() string { return NameConfig }

// Scan implements Scanner.
func (s *Config) Scan(ctx context.Context, t Target, c *collector.Collector) (int, error) {
	l := t.layout()
	fsrc := t.fs()
	skips := []string{"node_modules", ".git", ".svn", ".hg"}
	if up := t.rel(l.UploadsDir); !filepath.IsAbs(up) {
		skips = append(skips, up)
	}
	entries, err := fsrc.ListTree(t.Root, source.ListOptions{MaxDepth: s.opts.ConfigMaxDepth, SkipDirs: skips})
	if err != nil {
		return 0, err
	}

	scanned := 0
	emit := c.Add

	if l.ConfigPath != "" {
		scanned++
		if !s.wpConfig(ctx, t, l, emit) {
			return scanned, nil
		}
	}

	dirs := []string{t.Root}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}
		if !e.IsFile {
			if !e.Mode.IsDir() {
				continue
			}
			dirs = append(dirs, e.Path)
			continue
		}
		scanned++
		if !s.inspect(ctx, fsrc, e, emit) {
			return scanned, nil
		}
	}

	for _, d := range dirs {
		for _, probe := range vcsProbes {
			p := filepath.Join(d, filepath.FromSlash(probe))
			e, ok := fsrc.Stat(p)
			if !ok || !e.IsFile {
				continue
			}
			e.Rel = t.rel(p)
			scanned++
			if r, ok := patterns.MatchName(e.Rel, nil); ok && !emit(nameFinding(r, e)) {
				return scanned, nil
			}
		}
	}
	return scanned, nil
}

// inspect applies the config libraries and the name table to one file.
func (s *Config) inspect(ctx context.Context, fsrc *source.FS, e source.Entry, emit func(models.Finding) bool) bool {
	name := strings.ToLower(e.Name())
	fileFinding := func(typ string, sev models.Severity, detail string) models.Finding {
		return models.Finding{
			Severity:   sev,
			Type:       typ,
			Subject:    e.Rel,
			Detail:     detail,
			Size:       models.SizePtr(e.Size),
			ModifiedAt: models.TimePtr(e.ModifiedAt),
		}
	}

	switch name {
	case ".htaccess":
		for _, r := range patterns.Htaccess().Eval(patterns.HtaccessViews(fsrc.ReadBounded(ctx, e.Path, s.opts.ConfigHead))) {
			sev := r.Base
			if r.Label == patterns.LabelHtaccessPHPEnable {
				sev = models.SeverityAlert
			}
			if !emit(fileFinding(r.Label, sev, r.Detail)) {
				return false
			}
		}
	case ".user.ini", "php.ini":
		for _, r := range patterns.UserIni().Eval(patterns.IniViews(fsrc.ReadBounded(ctx, e.Path, s.opts.ConfigHead))) {
			if !emit(fileFinding(r.Label, r.Base, r.Detail)) {
				return false
			}
		}
	}

	var head []byte
	if patterns.NeedsContent(e.Rel) {
		head = fsrc.ReadBounded(ctx, e.Path, nameHeadBytes)
		if head == nil {
			logging.L().Debugw("name rule content unreadable", "path", e.Rel)
		}
	}
	if r, ok := patterns.MatchName(e.Rel, head); ok {
		return emit(nameFinding(r, e))
	}
	return true
}

func nameFinding(r patterns.NameRule, e source.Entry) models.Finding {
	return models.Finding{
		Severity:   r.Severity,
		Type:       r.Label,
		Subject:    e.Rel,
		Detail:     r.Detail,
		Size:       models.SizePtr(e.Size),
		ModifiedAt: models.TimePtr(e.ModifiedAt),
	}
}

// wpConfig checks the hardening constants of wp-config.php.
func (s *Config) wpConfig(ctx context.Context, t Target, l *discovery.Layout, emit func(models.Finding) bool) bool {
	e, ok := t.fs().Stat(l.ConfigPath)
	if !ok {
		return true
	}
	subject := t.rel(l.ConfigPath)
	cfg := l.Config
	if cfg == nil {
		cfg = discovery.ParseWPConfig(t.fs().ReadBounded(ctx, l.ConfigPath, s.opts.ConfigHead), nil)
	}

	var out []models.Finding
	add := func(typ string, sev models.Severity, detail string) {
		out = append(out, models.Finding{
			Severity:   sev,
			Type:       typ,
			Subject:    subject,
			Detail:     detail,
			Size:       models.SizePtr(e.Size),
			ModifiedAt: models.TimePtr(e.ModifiedAt),
		})
	}

	debug := cfg.Bool("WP_DEBUG")
	if debug {
		add("wp_debug_enabled", models.SeverityAlert, "WP_DEBUG is enabled")
		// WordPress displays errors by default once debugging is on.
		if !cfg.Has("WP_DEBUG_DISPLAY") || cfg.Bool("WP_DEBUG_DISPLAY") {
			add("wp_debug_display", models.SeverityAlert, "debug output is displayed to visitors")
		}
	}
	if !cfg.Bool("DISALLOW_FILE_EDIT") && !cfg.Bool("DISALLOW_FILE_MODS") {
		add("file_edit_allowed", models.SeverityInfo, "DISALLOW_FILE_EDIT is not set; the dashboard file editor is available")
	}
	if cfg.TablePrefix == "wp_" {
		add("default_table_prefix", models.SeverityInfo, "default table prefix wp_")
	}
	if e.Mode.Perm()&0o004 != 0 {
		add("wp_config_world_readable", models.SeverityAlert, "wp-config.php is readable by every local user ("+e.Mode.Perm().String()+")")
	}

	for _, f := range out {
		if !emit(f) {
			return false
		}
	}
	return true
}
