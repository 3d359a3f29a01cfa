package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/wpspectre/internal/analyzer"
	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/patterns"
	"github.com/ppiankov/wpspectre/internal/source"
)

var (
	phpLikeExt = regexp.MustCompile(`(?i)\.(?:php\d?|phtml|phar)$`)
	imageExt   = regexp.MustCompile(`(?i)\.(?:png|jpe?g|gif|webp|bmp|ico|svg)$`)
)

// Uploads audits the media directory, where nothing should execute.
type Uploads struct {
	opts     Options
	analyzer *analyzer.Analyzer
	now      func() time.Time
}

// NewUploads creates the uploads scanner.
func NewUploads(opts Options) *Uploads {
	opts = opts.withDefaults()
	return &Uploads{opts: opts, analyzer: analyzer.New(opts.Analyzer), now: time.Now}
}

// Name implements Scanner.
func (s *Uploads) Name() string { return NameUploads }

// Scan implements Scanner. A missing uploads directory scans nothing.
func (s *Uploads) Scan(ctx context.Context, t Target, c *collector.Collector) (int, error) {
	dir := t.layout().UploadsDir
	fsrc := t.fs()
	if _, ok := fsrc.Stat(dir); !ok {
		return 0, nil
	}
	entries, err := fsrc.ListTree(dir, source.ListOptions{})
	if err != nil {
		return 0, err
	}

	recentSince := s.now().Add(-time.Duration(s.opts.RecentDays) * 24 * time.Hour)
	protected := false
	scanned := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}
		if !e.IsFile {
			continue
		}
		scanned++
		u := uploadItem{
			subject: t.rel(e.Path),
			entry:   e,
			recent:  e.ModifiedAt.After(recentSince),
		}
		findings, isGuard := s.inspect(ctx, fsrc, u)
		if isGuard && filepath.Dir(e.Path) == filepath.Clean(dir) {
			protected = true
		}
		for _, f := range findings {
			if !c.Add(f) {
				return scanned, nil
			}
		}
	}

	if !protected {
		c.Add(models.Finding{
			Severity: models.SeverityInfo,
			Type:     "uploads_unprotected",
			Subject:  t.rel(dir),
			Detail:   "no .htaccess disabling PHP execution at the top of uploads",
		})
	}
	return scanned, nil
}

type uploadItem struct {
	subject string
	entry   source.Entry
	recent  bool
}

func (u uploadItem) finding(typ string, sev models.Severity, detail string) models.Finding {
	if u.recent && sev != models.SeverityInfo {
		detail += " (recently modified)"
	}
	return models.Finding{
		Severity:   sev,
		Type:       typ,
		Subject:    u.subject,
		Detail:     detail,
		Size:       models.SizePtr(u.entry.Size),
		ModifiedAt: models.TimePtr(u.entry.ModifiedAt),
	}
}

// inspect returns the findings of one upload entry and whether it is a
// .htaccess that disables PHP.
func (s *Uploads) inspect(ctx context.Context, fsrc *source.FS, u uploadItem) ([]models.Finding, bool) {
	var out []models.Finding
	p := u.entry.Path
	name := strings.ToLower(u.entry.Name())

	switch {
	case name == ".htaccess":
		guard := false
		for _, r := range patterns.Htaccess().Eval(patterns.HtaccessViews(fsrc.ReadBounded(ctx, p, s.opts.ConfigHead))) {
			if r.Label == patterns.LabelHtaccessPHPDisabled {
				guard = true
			}
			out = append(out, u.finding(r.Label, r.Base, r.Detail+" in uploads"))
		}
		return out, guard

	case name == ".user.ini":
		for _, r := range patterns.UserIni().Eval(patterns.IniViews(fsrc.ReadBounded(ctx, p, s.opts.ConfigHead))) {
			out = append(out, u.finding(r.Label, r.Base, r.Detail+" in uploads"))
		}
		return out, false

	case phpLikeExt.MatchString(name):
		head := fsrc.ReadBounded(ctx, p, s.opts.UploadHead)
		if s.analyzer.IsPlaceholderIndex(name, u.entry.Size, head, s.opts.PlaceholderMax) {
			out = append(out, u.finding("placeholder_index", models.SeverityInfo, "index placeholder guarding against directory listing"))
		} else {
			out = append(out, u.finding("php_in_uploads", models.SeverityCritical, "PHP file inside uploads"))
		}
		return out, false

	case imageExt.MatchString(name):
		head := fsrc.ReadBounded(ctx, p, s.opts.UploadHead)
		if strings.HasSuffix(name, ".svg") && patterns.DangerousSVG(head) {
			out = append(out, u.finding("svg_js", models.SeverityAlert, "SVG with script, event handler or active URI"))
		}
		if patterns.HasCodeOpenTag(head) {
			out = append(out, u.finding("php_in_image", models.SeverityCritical, "PHP open tag in the image header"))
		}
	}

	if patterns.DoubleExtension(name) {
		out = append(out, u.finding("double_extension", models.SeverityAlert, "file name with a double extension"))
	}
	if u.entry.Size >= s.opts.LargeFile {
		out = append(out, u.finding("large_file", models.SeverityInfo,
			fmt.Sprintf("large file (>= %d MB)", s.opts.LargeFile/mb)))
	}
	return out, false
}
