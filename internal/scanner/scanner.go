// Package scanner holds the audit scanners. Each scanner reads one area of
// the install, applies the pattern tables and the severity resolver, and
// feeds a collector.
package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/wpspectre/internal/analyzer"
	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/discovery"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/source"
)

// Scanner names.
const (
	NameConfig  = "config"
	NameUploads = "uploads"
	NameHeaders = "headers"
	NameFiles   = "files"
	NameDB      = "db"
)

// DefaultNames is the default scanner order.
var DefaultNames = []string{NameConfig, NameUploads, NameHeaders, NameFiles, NameDB}

// Scanner audits one area of an install. Scan returns the number of items
// examined. Item-level problems become findings; an error means the scanner
// could not run at all.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, t Target, c *collector.Collector) (int, error)
}

// Target is what a scan runs against.
type Target struct {
	Root   string
	Layout *discovery.Layout
	FS     *source.FS
	DB     source.DB
	Schema string
	// Prefix overrides the discovered table prefix.
	Prefix string
}

// layout returns the discovered layout, or the stock one under Root.
func (t Target) layout() *discovery.Layout {
	if t.Layout != nil {
		return t.Layout
	}
	content := filepath.Join(t.Root, "wp-content")
	return &discovery.Layout{
		Root:       t.Root,
		ContentDir: content,
		UploadsDir: filepath.Join(content, "uploads"),
		PluginsDir: filepath.Join(content, "plugins"),
		MUPlugins:  filepath.Join(content, "mu-plugins"),
		ThemesDir:  filepath.Join(content, "themes"),
		DB:         discovery.DBSettings{Prefix: "wp_"},
	}
}

func (t Target) fs() *source.FS {
	if t.FS != nil {
		return t.FS
	}
	return &source.FS{}
}

// rel returns p relative to the root, slash separated.
func (t Target) rel(p string) string {
	r, err := filepath.Rel(t.Root, p)
	if err != nil || strings.HasPrefix(r, "..") {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

// Options holds every scanner threshold.
type Options struct {
	Analyzer       analyzer.Options `mapstructure:"analyzer" yaml:"analyzer"`
	VendorPatterns []string         `mapstructure:"vendor_patterns" yaml:"vendor_patterns"`
	Deep           bool             `mapstructure:"deep" yaml:"deep"`

	FilesBase        string   `mapstructure:"files_base" yaml:"files_base"`
	FileExtensions   []string `mapstructure:"file_extensions" yaml:"file_extensions"`
	CodeReadLimit    int64    `mapstructure:"code_read_limit" yaml:"code_read_limit"`
	ReportUnreadable bool     `mapstructure:"report_unreadable" yaml:"report_unreadable"`

	UploadHead     int64 `mapstructure:"upload_head" yaml:"upload_head"`
	RecentDays     int   `mapstructure:"recent_days" yaml:"recent_days"`
	LargeFile      int64 `mapstructure:"large_file" yaml:"large_file"`
	PlaceholderMax int64 `mapstructure:"placeholder_max" yaml:"placeholder_max"`

	ConfigHead     int64 `mapstructure:"config_head" yaml:"config_head"`
	ConfigMaxDepth int   `mapstructure:"config_max_depth" yaml:"config_max_depth"`

	HeaderRead int64 `mapstructure:"header_read" yaml:"header_read"`
	ReportOK   bool  `mapstructure:"report_ok" yaml:"report_ok"`

	TopTables           int   `mapstructure:"top_tables" yaml:"top_tables"`
	TableSizeAlert      int64 `mapstructure:"table_size_alert" yaml:"table_size_alert"`
	TopAutoload         int   `mapstructure:"top_autoload" yaml:"top_autoload"`
	AutoloadTotalAlert  int64 `mapstructure:"autoload_total_alert" yaml:"autoload_total_alert"`
	AutoloadOptionAlert int64 `mapstructure:"autoload_option_alert" yaml:"autoload_option_alert"`
	OptionScanLimit     int   `mapstructure:"option_scan_limit" yaml:"option_scan_limit"`
	DeepOptionScanLimit int   `mapstructure:"deep_option_scan_limit" yaml:"deep_option_scan_limit"`
	CronAlert           int64 `mapstructure:"cron_alert" yaml:"cron_alert"`
	CronInfo            int64 `mapstructure:"cron_info" yaml:"cron_info"`
	AdminLimit          int   `mapstructure:"admin_limit" yaml:"admin_limit"`
}

const (
	kb = 1 << 10
	mb = 1 << 20
)

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		Analyzer:       analyzer.DefaultOptions(),
		FileExtensions: []string{"php", "phtml", "php7", "php8"},
		CodeReadLimit:  250000,

		ReportUnreadable: true,

		UploadHead:     4096,
		RecentDays:     14,
		LargeFile:      50 * mb,
		PlaceholderMax: analyzer.DefaultPlaceholderMaxSize,

		ConfigHead:     64 * kb,
		ConfigMaxDepth: 6,

		HeaderRead: 8 * kb,
		ReportOK:   true,

		TopTables:           10,
		TableSizeAlert:      512 * mb,
		TopAutoload:         20,
		AutoloadTotalAlert:  2 * mb,
		AutoloadOptionAlert: 1 * mb,
		OptionScanLimit:     80,
		DeepOptionScanLimit: 200,
		CronAlert:           5 * mb,
		CronInfo:            1 * mb,
		AdminLimit:          50,
	}
}

// withDefaults fills non-positive thresholds. Booleans are taken as given.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	fillInt64 := func(v *int64, def int64) {
		if *v <= 0 {
			*v = def
		}
	}
	fillInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	if len(o.FileExtensions) == 0 {
		o.FileExtensions = d.FileExtensions
	}
	fillInt64(&o.CodeReadLimit, d.CodeReadLimit)
	fillInt64(&o.UploadHead, d.UploadHead)
	fillInt(&o.RecentDays, d.RecentDays)
	fillInt64(&o.LargeFile, d.LargeFile)
	fillInt64(&o.PlaceholderMax, d.PlaceholderMax)
	fillInt64(&o.ConfigHead, d.ConfigHead)
	fillInt(&o.ConfigMaxDepth, d.ConfigMaxDepth)
	fillInt64(&o.HeaderRead, d.HeaderRead)
	fillInt(&o.TopTables, d.TopTables)
	fillInt64(&o.TableSizeAlert, d.TableSizeAlert)
	fillInt(&o.TopAutoload, d.TopAutoload)
	fillInt64(&o.AutoloadTotalAlert, d.AutoloadTotalAlert)
	fillInt64(&o.AutoloadOptionAlert, d.AutoloadOptionAlert)
	fillInt(&o.OptionScanLimit, d.OptionScanLimit)
	fillInt(&o.DeepOptionScanLimit, d.DeepOptionScanLimit)
	fillInt64(&o.CronAlert, d.CronAlert)
	fillInt64(&o.CronInfo, d.CronInfo)
	fillInt(&o.AdminLimit, d.AdminLimit)
	return o
}

// optionScanLimit is the item cap of option value scans.
func (o Options) optionScanLimit() int {
	if o.Deep {
		return o.DeepOptionScanLimit
	}
	return o.OptionScanLimit
}

// Snapshot flattens the options of the named scanner into the string map
// stored with its run.
func (o Options) Snapshot(name string) map[string]string {
	o = o.withDefaults()
	i64 := func(n int64) string { return strconv.FormatInt(n, 10) }
	itoa := strconv.Itoa
	m := map[string]string{"deep": strconv.FormatBool(o.Deep)}
	switch name {
	case NameFiles:
		a := o.Analyzer
		m["base"] = o.FilesBase
		m["extensions"] = strings.Join(o.FileExtensions, ",")
		m["read_limit"] = i64(o.CodeReadLimit)
		m["report_unreadable"] = strconv.FormatBool(o.ReportUnreadable)
		m["vendor_patterns"] = strings.Join(o.VendorPatterns, ",")
		m["indirect_window"] = itoa(a.IndirectWindow)
		m["input_window"] = itoa(a.InputWindow)
		m["payload_present"] = itoa(a.PayloadPresent)
		m["payload_large"] = itoa(a.PayloadLarge)
	case NameUploads:
		m["head"] = i64(o.UploadHead)
		m["recent_days"] = itoa(o.RecentDays)
		m["large_file"] = i64(o.LargeFile)
		m["placeholder_max"] = i64(o.PlaceholderMax)
	case NameConfig:
		m["head"] = i64(o.ConfigHead)
		m["max_depth"] = itoa(o.ConfigMaxDepth)
	case NameHeaders:
		m["read"] = i64(o.HeaderRead)
		m["report_ok"] = strconv.FormatBool(o.ReportOK)
	case NameDB:
		m["top_tables"] = itoa(o.TopTables)
		m["table_size_alert"] = i64(o.TableSizeAlert)
		m["top_autoload"] = itoa(o.TopAutoload)
		m["autoload_total_alert"] = i64(o.AutoloadTotalAlert)
		m["autoload_option_alert"] = i64(o.AutoloadOptionAlert)
		m["option_scan_limit"] = itoa(o.optionScanLimit())
		m["cron_alert"] = i64(o.CronAlert)
		m["cron_info"] = i64(o.CronInfo)
		m["admin_limit"] = itoa(o.AdminLimit)
	}
	return m
}

// Factory builds a scanner from options.
type Factory func(Options) Scanner

// Registry maps scanner names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in scanners.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(NameConfig, func(o Options) Scanner { return NewConfig(o) })
	r.Register(NameUploads, func(o Options) Scanner { return NewUploads(o) })
	r.Register(NameHeaders, func(o Options) Scanner { return NewHeaders(o) })
	r.Register(NameFiles, func(o Options) Scanner { return NewFiles(o) })
	r.Register(NameDB, func(o Options) Scanner { return NewDB(o) })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named scanners in the given order. Unknown names
// are a misconfiguration.
func (r *Registry) Build(names []string, opts Options) ([]Scanner, error) {
	out := make([]Scanner, 0, len(names))
	seen := make(map[string]bool)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		f, ok := r.factories[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown scanner %q (available: %s)",
				models.ErrMisconfigured, n, strings.Join(r.Names(), ", "))
		}
		seen[n] = true
		out = append(out, f(opts))
	}
	return out, nil
}
