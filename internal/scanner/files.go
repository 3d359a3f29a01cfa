package scanner

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiankov/wpspectre/internal/analyzer"
	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/logging"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/patterns"
	"github.com/ppiankov/wpspectre/internal/sanitize"
	"github.com/ppiankov/wpspectre/internal/severity"
	"github.com/ppiankov/wpspectre/internal/source"
)

// Files scans PHP sources under the WordPress root, or under FilesBase
// relative to it when set.
type Files struct {
	opts     Options
	analyzer *analyzer.Analyzer
	vendor   *analyzer.VendorAllowlist
	library  patterns.Library
	exts     map[string]bool
}

// NewFiles creates the PHP code scanner.
func NewFiles(opts Options) *Files {
	opts = opts.withDefaults()
	exts := make(map[string]bool, len(opts.FileExtensions))
	for _, e := range opts.FileExtensions {
		exts["."+strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return &Files{
		opts:     opts,
		analyzer: analyzer.New(opts.Analyzer),
		vendor:   analyzer.NewVendorAllowlist(opts.VendorPatterns...),
		library:  patterns.PHP(),
		exts:     exts,
	}
}

// Name implements Scanner.
func (s *Files) Name() string { return NameFiles }

// Scan implements Scanner.
func (s *Files) Scan(ctx context.Context, t Target, c *collector.Collector) (int, error) {
	base := t.Root
	if s.opts.FilesBase != "" {
		base = filepath.Join(t.Root, filepath.FromSlash(s.opts.FilesBase))
	}
	fsrc := t.fs()
	entries, err := fsrc.ListTree(base, source.ListOptions{})
	if err != nil {
		return 0, err
	}

	scanned := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}
		if !e.IsFile || !s.exts[strings.ToLower(filepath.Ext(e.Path))] {
			continue
		}
		scanned++
		subject := t.rel(e.Path)

		data := fsrc.ReadBounded(ctx, e.Path, s.opts.CodeReadLimit)
		if data == nil && e.Size > 0 {
			logging.L().Debugw("unreadable file", "path", subject)
			if s.opts.ReportUnreadable && !c.Add(models.Finding{
				Severity: models.SeverityInfo,
				Type:     "unreadable",
				Subject:  subject,
				Detail:   "file could not be read",
				Size:     models.SizePtr(e.Size),
			}) {
				return scanned, nil
			}
			continue
		}
		if !s.scanFile(subject, e, data, c) {
			return scanned, nil
		}
	}
	return scanned, nil
}

// scanFile emits the findings of one file and reports whether the
// collector still accepts findings.
func (s *Files) scanFile(subject string, e source.Entry, data []byte, c *collector.Collector) bool {
	views := sanitize.NewViews(data)
	flags := s.analyzer.Analyze(views)
	vendor := s.vendor.Match(subject)

	finding := func(typ string, sev models.Severity, detail string) models.Finding {
		f := models.Finding{
			Severity:   sev,
			Type:       typ,
			Subject:    subject,
			Detail:     detail,
			Size:       models.SizePtr(e.Size),
			ModifiedAt: models.TimePtr(e.ModifiedAt),
		}
		if vendor {
			f.Extra = map[string]string{"vendor": "true"}
		}
		return f
	}

	for _, r := range s.library.Eval(views) {
		sev := severity.Resolve(r, flags, vendor)
		detail := r.Detail
		if r.Payload && flags.PayloadLength > 0 {
			detail += ", longest base64 literal " + strconv.Itoa(flags.PayloadLength) + " chars"
		}
		if vendor && !flags.Hard() {
			detail += " (vendor path, severity lowered)"
		}
		if !c.Add(finding(r.Label, sev, detail)) {
			return false
		}
	}
	for _, d := range severity.Context(flags, vendor) {
		if !c.Add(finding(d.Type, d.Severity, d.Detail)) {
			return false
		}
	}
	return true
}
