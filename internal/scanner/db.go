package scanner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/logging"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/patterns"
	"github.com/ppiankov/wpspectre/internal/source"
)

// CoreTables are the unprefixed names of the stock WordPress tables.
var CoreTables = []string{
	"options", "users", "usermeta", "posts", "postmeta", "comments", "commentmeta",
	"terms", "termmeta", "term_taxonomy", "term_relationships", "links",
}

var (
	suspiciousSuffix = regexp.MustCompile(`(?i)^(?:system|shadow|backup|tmp|old|copy|test)`)
	safePrefix       = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	bareBase64       = regexp.MustCompile(`[A-Za-z0-9+/]{64,}={0,2}`)
	remoteScript     = regexp.MustCompile(`(?i)<script[^>]+src\s*=\s*["']?(?:https?:)?//`)
	homoglyphs       = strings.NewReplacer("0", "o", "1", "l", "5", "s")
)

const (
	autoloadValues   = `'yes','on','auto-on','auto'`
	optionValueBytes = 65536
	// lookalikeMaxDistance is the largest edit distance reported as a look-alike.
	lookalikeMaxDistance = 2
)

// DB runs the database heuristics.
type DB struct {
	opts Options
	php  patterns.Library
}

// NewDB creates the database scanner.
func NewDB(opts Options) *DB {
	return &DB{opts: opts.withDefaults(), php: patterns.PHP()}
}

// Name implements Scanner.
func (s *DB) Name() string { return NameDB }

type dbScan struct {
	s       *DB
	ctx     context.Context
	db      source.DB
	c       *collector.Collector
	prefix  string
	scanned int
	open    bool
}

// add records f and reports whether the collector still accepts findings.
func (d *dbScan) add(f models.Finding) bool {
	if !d.c.Add(f) {
		d.open = false
	}
	return d.open
}

// rows runs sel; a failure becomes a query_failed finding and nil rows.
func (d *dbScan) rows(sel source.Selector, limit int) []source.Row {
	rows, err := d.db.Rows(d.ctx, sel, limit)
	if err != nil {
		logging.L().Debugw("db query failed", "query", sel.Name, "error", err)
		d.add(models.Finding{
			Severity: models.SeverityInfo,
			Type:     "query_failed",
			Subject:  sel.Name,
			Detail:   err.Error(),
		})
		return nil
	}
	d.scanned += len(rows)
	return rows
}

func (d *dbScan) table(name string) string { return "`" + d.prefix + name + "`" }

// Scan implements Scanner. Without a database source the scan fails.
func (s *DB) Scan(ctx context.Context, t Target, c *collector.Collector) (int, error) {
	if t.DB == nil {
		return 0, fmt.Errorf("%w: %w", models.ErrMisconfigured, models.ErrNoDatabase)
	}
	l := t.layout()
	prefix := t.Prefix
	if prefix == "" {
		prefix = l.DB.Prefix
	}
	if prefix == "" {
		prefix = "wp_"
	}
	if !safePrefix.MatchString(prefix) {
		return 0, fmt.Errorf("%w: invalid table prefix %q", models.ErrMisconfigured, prefix)
	}
	schema := t.Schema
	if schema == "" {
		schema = l.DB.Name
	}

	tables, err := t.DB.Tables(ctx, schema)
	if err != nil {
		return 0, fmt.Errorf("list tables of %q: %w", schema, err)
	}

	d := &dbScan{s: s, ctx: ctx, db: t.DB, c: c, prefix: prefix, scanned: len(tables), open: true}
	steps := []func([]source.TableMeta){
		d.tableNames,
		d.tableSizes,
		func([]source.TableMeta) { d.autoload() },
		func([]source.TableMeta) { d.optionValues() },
		func([]source.TableMeta) { d.cron() },
		func([]source.TableMeta) { d.admins() },
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return d.scanned, err
		}
		if !d.open {
			break
		}
		step(tables)
	}
	return d.scanned, nil
}

// tableNames flags suspicious names inside the prefix, missing core tables
// and look-alike tables outside it.
func (d *dbScan) tableNames(tables []source.TableMeta) {
	lowerPrefix := strings.ToLower(d.prefix)
	present := make(map[string]bool)

	for _, tb := range tables {
		name := tb.Name
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, lowerPrefix) {
			suffix := name[len(d.prefix):]
			present[strings.ToLower(suffix)] = true
			if suspiciousSuffix.MatchString(suffix) {
				if !d.add(tableFinding(tb, "suspicious_table_name", models.SeverityAlert,
					"table name inside the prefix looks like a copy or staging table")) {
					return
				}
			}
			continue
		}

		suffix, core, dist, ok := Lookalike(name, d.prefix)
		if !ok {
			continue
		}
		f := tableFinding(tb, "lookalike_core_table", models.SeverityAlert,
			fmt.Sprintf("table name resembles core table %q (suffix %q, distance %d)", core, suffix, dist))
		f.Extra["core"] = core
		f.Extra["distance"] = strconv.Itoa(dist)
		if !d.add(f) {
			return
		}
	}

	for _, core := range CoreTables {
		if present[core] {
			continue
		}
		if !d.add(models.Finding{
			Severity: models.SeverityInfo,
			Type:     "core_table_missing",
			Subject:  d.prefix + core,
			Detail:   "core table not found under the configured prefix",
		}) {
			return
		}
	}
}

// Lookalike compares the suffix of a table outside the prefix with the core
// table names. The suffix is the part after the first underscore, or after
// len(prefix) bytes when there is none. Digits that mimic letters are folded
// before the comparison. It reports the closest core name when the distance
// is at most 2 and the raw suffix is not that name.
func Lookalike(table, prefix string) (suffix, core string, distance int, ok bool) {
	if i := strings.IndexByte(table, '_'); i >= 0 {
		suffix = table[i+1:]
	} else if len(table) > len(prefix) {
		suffix = table[len(prefix):]
	}
	if suffix == "" {
		return "", "", 0, false
	}
	raw := strings.ToLower(suffix)
	folded := homoglyphs.Replace(raw)

	distance = -1
	for _, c := range CoreTables {
		dist := levenshtein.Distance(folded, c, nil)
		if distance < 0 || dist < distance {
			core, distance = c, dist
		}
	}
	if distance > lookalikeMaxDistance || raw == core {
		return suffix, core, distance, false
	}
	return suffix, core, distance, true
}

func tableFinding(tb source.TableMeta, typ string, sev models.Severity, detail string) models.Finding {
	f := models.Finding{
		Severity: sev,
		Type:     typ,
		Subject:  tb.Name,
		Detail:   detail,
		Size:     models.SizePtr(tb.TotalBytes()),
		Extra: map[string]string{
			"engine":    tb.Engine,
			"collation": tb.Collation,
			"rows":      strconv.FormatInt(tb.Rows, 10),
		},
	}
	if !tb.CreatedAt.IsZero() {
		f.Extra["created"] = tb.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	}
	return f
}

// tableSizes ranks tables by data plus index size.
func (d *dbScan) tableSizes(tables []source.TableMeta) {
	ranked := append([]source.TableMeta(nil), tables...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalBytes() != ranked[j].TotalBytes() {
			return ranked[i].TotalBytes() > ranked[j].TotalBytes()
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > d.s.opts.TopTables {
		ranked = ranked[:d.s.opts.TopTables]
	}
	for i, tb := range ranked {
		sev := models.SeverityInfo
		if tb.TotalBytes() > d.s.opts.TableSizeAlert {
			sev = models.SeverityAlert
		}
		f := tableFinding(tb, "table_size", sev, fmt.Sprintf("#%d by size: %s", i+1, models.HumanBytes(tb.TotalBytes())))
		if !d.add(f) {
			return
		}
	}
}

func (d *dbScan) autoload() {
	totals := d.rows(source.Selector{
		Name: "autoload_total",
		SQL: "SELECT COALESCE(SUM(LENGTH(option_value)), 0) AS total, COUNT(*) AS options FROM " +
			d.table("options") + " WHERE autoload IN (" + autoloadValues + ")",
	}, 1)
	if len(totals) > 0 {
		total := totals[0].Int("total")
		sev := models.SeverityInfo
		if total > d.s.opts.AutoloadTotalAlert {
			sev = models.SeverityAlert
		}
		if !d.add(models.Finding{
			Severity: sev,
			Type:     "autoload_total",
			Subject:  d.prefix + "options",
			Detail:   fmt.Sprintf("%s autoloaded across %s options", models.HumanBytes(total), totals[0]["options"]),
			Size:     models.SizePtr(total),
		}) {
			return
		}
	}

	top := d.rows(source.Selector{
		Name: "autoload_top",
		SQL: "SELECT option_name, LENGTH(option_value) AS bytes FROM " + d.table("options") +
			" WHERE autoload IN (" + autoloadValues + ") ORDER BY bytes DESC, option_name",
	}, d.s.opts.TopAutoload)
	for _, r := range top {
		n := r.Int("bytes")
		sev := models.SeverityInfo
		if n > d.s.opts.AutoloadOptionAlert {
			sev = models.SeverityAlert
		}
		if !d.add(optionFinding(r["option_name"], "autoload_option", sev, "autoloaded option of "+models.HumanBytes(n), n)) {
			return
		}
	}
}

func optionFinding(name, typ string, sev models.Severity, detail string, size int64) models.Finding {
	return models.Finding{Severity: sev, Type: typ, Subject: name, Detail: detail, Size: models.SizePtr(size)}
}

// An optionProbe prefilters option values in SQL and confirms in Go.
type optionProbe struct {
	typ     string
	likes   []string
	confirm func(value string) (models.Severity, string, bool)
}

func (s *DB) optionProbes() []optionProbe {
	opts := s.opts.Analyzer
	decompress, _ := s.php.Lookup("runtime_decompression")
	return []optionProbe{
		{
			typ:   "option_base64",
			likes: []string{"%base64_decode%", "%=="},
			confirm: func(v string) (models.Severity, string, bool) {
				n := Base64Length(v)
				hasDecode := strings.Contains(strings.ToLower(v), "base64_decode")
				switch {
				case n >= opts.PayloadLarge || (hasDecode && n >= opts.PayloadPresent):
					return models.SeverityAlert, fmt.Sprintf("base64 payload of %d characters", n), true
				case n >= opts.PayloadPresent || hasDecode:
					return models.SeverityInfo, fmt.Sprintf("base64 content (%d characters)", n), true
				}
				return "", "", false
			},
		},
		{
			typ:   "option_compression",
			likes: []string{"%gzinflate%", "%gzuncompress%", "%gzdecode%", "%str_rot13%"},
			confirm: func(v string) (models.Severity, string, bool) {
				if decompress.Match([]byte(v)) {
					return models.SeverityAlert, "runtime decompression call in option value", true
				}
				return "", "", false
			},
		},
		{
			typ:   "option_embedded_code",
			likes: []string{"%<?php%", "%<?=%"},
			confirm: func(v string) (models.Severity, string, bool) {
				if patterns.HasCodeOpenTag([]byte(v)) {
					return models.SeverityCritical, "PHP code stored in option value", true
				}
				return "", "", false
			},
		},
		{
			typ:   "option_remote_script",
			likes: []string{"%<script%src%"},
			confirm: func(v string) (models.Severity, string, bool) {
				if remoteScript.MatchString(v) {
					return models.SeverityAlert, "remote script tag in option value", true
				}
				return "", "", false
			},
		},
	}
}

// optionValues runs the value probes, each bounded by the item cap.
func (d *dbScan) optionValues() {
	limit := d.s.opts.optionScanLimit()
	for _, p := range d.s.optionProbes() {
		where := make([]string, len(p.likes))
		args := make([]any, len(p.likes))
		for i, l := range p.likes {
			where[i] = "option_value LIKE ?"
			args[i] = l
		}
		rows := d.rows(source.Selector{
			Name: p.typ,
			SQL: "SELECT option_name, SUBSTRING(option_value, 1, " + strconv.Itoa(optionValueBytes) + ") AS value, LENGTH(option_value) AS bytes FROM " +
				d.table("options") + " WHERE " + strings.Join(where, " OR ") + " ORDER BY option_id",
			Args: args,
		}, limit)
		for _, r := range rows {
			sev, detail, ok := p.confirm(r["value"])
			if !ok {
				continue
			}
			if !d.add(optionFinding(r["option_name"], p.typ, sev, detail, r.Int("bytes"))) {
				return
			}
		}
	}
}

func (d *dbScan) cron() {
	rows := d.rows(source.Selector{
		Name: "cron_size",
		SQL:  "SELECT option_name, LENGTH(option_value) AS bytes FROM " + d.table("options") + " WHERE option_name = ?",
		Args: []any{"cron"},
	}, 1)
	if len(rows) == 0 {
		return
	}
	n := rows[0].Int("bytes")
	var sev models.Severity
	switch {
	case n > d.s.opts.CronAlert:
		sev = models.SeverityAlert
	case n > d.s.opts.CronInfo:
		sev = models.SeverityInfo
	default:
		return
	}
	d.add(optionFinding("cron", "cron_oversized", sev, "scheduled task queue of "+models.HumanBytes(n), n))
}

// admins lists accounts whose capabilities mention the administrator role.
// It is a substring match on the serialized capability array.
func (d *dbScan) admins() {
	rows := d.rows(source.Selector{
		Name: "admin_accounts",
		SQL: "SELECT u.ID AS id, u.user_login AS login, u.user_email AS email, u.user_registered AS registered FROM " +
			d.table("users") + " u JOIN " + d.table("usermeta") + " m ON m.user_id = u.ID" +
			" WHERE m.meta_key = ? AND m.meta_value LIKE ? ORDER BY u.user_registered DESC, u.ID DESC",
		Args: []any{d.prefix + "capabilities", "%administrator%"},
	}, d.s.opts.AdminLimit)
	for _, r := range rows {
		f := models.Finding{
			Severity: models.SeverityInfo,
			Type:     "admin_account",
			Subject:  r["login"],
			Detail:   "administrator account registered " + r["registered"],
			Extra:    map[string]string{"key": r["id"], "email": r["email"], "registered": r["registered"]},
		}
		if !d.add(f) {
			return
		}
	}
}

// Base64Length returns the longest base64 run in v: a quoted literal, as in
// serialized arrays, or a bare run.
func Base64Length(v string) int {
	n := patterns.LongestBase64Literal([]byte(v))
	for _, m := range bareBase64.FindAllStringIndex(v, -1) {
		if l := m[1] - m[0]; l > n {
			n = l
		}
	}
	return n
}
