package patterns

import (
	"bytes"

	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/sanitize"
)

// Labels of server-config rules that scanners adjust by location.
const (
	LabelHtaccessPHPEnable   = "htaccess_php_enable"
	LabelHtaccessPHPDisabled = "htaccess_php_disabled"
	LabelUserIniAutoPrepend  = "userini_auto_prepend"
)

var htaccessLibrary = Library{
	{
		Label:    LabelHtaccessPHPEnable,
		Category: CategoryServer,
		Base:     models.SeverityCritical,
		View:     ViewCode,
		Match: anyOf(
			re(`(?im)^[ \t]*php_(?:admin_)?flag[ \t]+engine[ \t]+(?:on|1)\b`),
			re(`(?im)^[ \t]*add(?:handler|type)[ \t]+[^\n]*php`),
			re(`(?im)^[ \t]*sethandler[ \t]+[^\n]*php`),
		),
		Detail: "directive enables PHP execution",
	},
	{
		Label:    "htaccess_indexes",
		Category: CategoryServer,
		Base:     models.SeverityAlert,
		View:     ViewCode,
		Match:    re(`(?im)^[ \t]*options\b[^\n]*[ \t]\+?indexes\b`),
		Detail:   "directory listing enabled",
	},
	{
		Label:    LabelHtaccessPHPDisabled,
		Category: CategoryServer,
		Base:     models.SeverityInfo,
		View:     ViewCode,
		Match: anyOf(
			re(`(?im)^[ \t]*php_(?:admin_)?flag[ \t]+engine[ \t]+(?:off|0)\b`),
			re(`(?is)<files(?:match)?[ \t]+[^>]*ph(?:p|tml|ar)[^>]*>.*?(?:deny[ \t]+from[ \t]+all|require[ \t]+all[ \t]+denied)`),
		),
		Detail: "PHP execution explicitly disabled",
	},
	{
		Label:    "htaccess_wp_rewrite",
		Category: CategoryServer,
		Base:     models.SeverityInfo,
		View:     ViewRaw,
		Match: anyOf(
			re(`(?im)^[ \t]*#[ \t]*BEGIN WordPress`),
			re(`(?im)^[ \t]*RewriteRule[ \t]+\.[ \t]+/(?:[^ \t]*/)?index\.php[ \t]+\[L\]`),
		),
		Detail: "standard WordPress rewrite block",
	},
}

var userIniLibrary = Library{
	{
		Label:    LabelUserIniAutoPrepend,
		Category: CategoryIni,
		Base:     models.SeverityCritical,
		View:     ViewCode,
		Match:    re(`(?im)^[ \t]*auto_(?:prepend|append)_file[ \t]*=[ \t]*["']?[^\s"';]+`),
		Detail:   "auto_prepend_file/auto_append_file injects code into every request",
	},
	{
		Label:    "userini_remote_include",
		Category: CategoryIni,
		Base:     models.SeverityAlert,
		View:     ViewCode,
		Match:    re(`(?im)^[ \t]*allow_url_include[ \t]*=[ \t]*["']?(?:on|1|true|yes)\b`),
		Detail:   "allow_url_include enabled",
	},
	{
		Label:    "userini_remote_fopen",
		Category: CategoryIni,
		Base:     models.SeverityInfo,
		View:     ViewCode,
		Match:    re(`(?im)^[ \t]*allow_url_fopen[ \t]*=[ \t]*["']?(?:on|1|true|yes)\b`),
		Detail:   "allow_url_fopen enabled",
	},
	{
		Label:    "userini_empty_disable_functions",
		Category: CategoryIni,
		Base:     models.SeverityInfo,
		View:     ViewCode,
		Match:    re(`(?im)^[ \t]*disable_functions[ \t]*=[ \t]*(?:""|'')?[ \t]*$`),
		Detail:   "disable_functions is empty",
	},
	{
		Label:    "userini_empty_open_basedir",
		Category: CategoryIni,
		Base:     models.SeverityInfo,
		View:     ViewCode,
		Match:    re(`(?im)^[ \t]*open_basedir[ \t]*=[ \t]*(?:""|'')?[ \t]*$`),
		Detail:   "open_basedir is empty",
	},
}

// Htaccess returns the Apache per-directory config rule table.
func Htaccess() Library { return htaccessLibrary }

// UserIni returns the per-user PHP ini rule table.
func UserIni() Library { return userIniLibrary }

// ConfigViews builds views for line-oriented config text. Lines whose first
// non-blank byte is one of markers are blanked in the Code and Sanitized views.
func ConfigViews(raw []byte, markers string) sanitize.Views {
	code := make([]byte, len(raw))
	copy(code, raw)
	start := 0
	for start < len(code) {
		end := bytes.IndexByte(code[start:], '\n')
		if end < 0 {
			end = len(code)
		} else {
			end += start
		}
		line := bytes.TrimLeft(code[start:end], " \t")
		if len(line) > 0 && bytes.IndexByte([]byte(markers), line[0]) >= 0 {
			for k := start; k < end; k++ {
				if code[k] != '\r' {
					code[k] = ' '
				}
			}
		}
		start = end + 1
	}
	return sanitize.Views{Raw: raw, Code: code, Sanitized: code}
}

// HtaccessViews strips '#' comment lines.
func HtaccessViews(raw []byte) sanitize.Views { return ConfigViews(raw, "#") }

// IniViews strips ';' and '#' comment lines.
func IniViews(raw []byte) sanitize.Views { return ConfigViews(raw, ";#") }
