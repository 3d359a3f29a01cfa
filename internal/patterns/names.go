package patterns

import (
	"path"
	"regexp"
	"strings"

	"github.com/ppiankov/wpspectre/internal/models"
)

// NameRule flags a file by its name. Content, when set, must also confirm
// the hit on the file's head bytes.
type NameRule struct {
	Label    string
	Severity models.Severity
	Match    func(base, rel string) bool
	Content  func(head []byte) bool
	Detail   string
}

func baseIn(names ...string) func(base, rel string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(base, _ string) bool { return set[strings.ToLower(base)] }
}

func baseRe(expr string) func(base, rel string) bool {
	r := regexp.MustCompile(expr)
	return func(base, _ string) bool { return r.MatchString(base) }
}

func relSuffix(suffixes ...string) func(base, rel string) bool {
	return func(_, rel string) bool {
		rel = strings.ToLower(rel)
		for _, s := range suffixes {
			if rel == s || strings.HasSuffix(rel, "/"+s) {
				return true
			}
		}
		return false
	}
}

var envSamples = map[string]bool{".env.example": true, ".env.sample": true, ".env.dist": true, ".env.template": true}

var nameRules = []NameRule{
	{
		Label:    "sensitive_dotfile",
		Severity: models.SeverityCritical,
		Match: func(base, _ string) bool {
			b := strings.ToLower(base)
			return (b == ".env" || strings.HasPrefix(b, ".env.")) && !envSamples[b]
		},
		Detail: "environment secrets file in the document root",
	},
	{
		Label:    "sensitive_dotfile",
		Severity: models.SeverityCritical,
		Match:    relSuffix(".git/config"),
		Detail:   "git repository metadata exposed",
	},
	{
		Label:    "sensitive_dotfile",
		Severity: models.SeverityAlert,
		Match:    baseIn(".htpasswd"),
		Detail:   "password file in the document root",
	},
	{
		Label:    "sensitive_dotfile",
		Severity: models.SeverityAlert,
		Match:    relSuffix(".svn/entries", ".svn/wc.db", ".hg/hgrc"),
		Detail:   "version control metadata exposed",
	},
	{
		Label:    "sensitive_dotfile",
		Severity: models.SeverityInfo,
		Match:    baseIn(".ds_store"),
		Detail:   "Finder metadata leaks directory contents",
	},
	{
		Label:    "config_backup",
		Severity: models.SeverityCritical,
		Match:    baseRe(`(?i)^(?:wp-config\.php(?:[.~_\- ]\S*|~)|wp-config\.(?:bak|old|orig|save|txt|swp|dist|backup)|wp-config\s*-\s*copy\.php|\.wp-config\.php\.sw[op])$`),
		Detail:   "backup copy of wp-config.php may be served as plain text",
	},
	{
		Label:    "database_dump",
		Severity: models.SeverityCritical,
		Match:    baseRe(`(?i)\.(?:sql|sql\.gz|sql\.bz2|sql\.zip|sql\.xz|dump)$`),
		Detail:   "database dump in the document root",
	},
	{
		Label:    "archive_in_docroot",
		Severity: models.SeverityAlert,
		Match:    baseRe(`(?i)\.(?:zip|tar|tar\.gz|tgz|tar\.bz2|7z|rar)$`),
		Detail:   "archive in the document root",
	},
	{
		Label:    "stray_server_config",
		Severity: models.SeverityAlert,
		Match:    baseIn("php.ini", "nginx.conf", "httpd.conf", "apache2.conf", "lighttpd.conf", "php-fpm.conf"),
		Detail:   "server configuration file inside the document root",
	},
	{
		Label:    "stray_server_config",
		Severity: models.SeverityInfo,
		Match:    baseIn("web.config"),
		Detail:   "IIS configuration file",
	},
	{
		Label:    "phpinfo_file",
		Severity: models.SeverityAlert,
		Match:    baseIn("phpinfo.php", "info.php", "php_info.php", "pi.php", "test.php"),
		Content:  re(`(?i)\bphpinfo\s*\(`),
		Detail:   "phpinfo() page discloses server configuration",
	},
}

// Names returns the sensitive filename table.
func Names() []NameRule { return nameRules }

// MatchName returns the first name rule matching rel (slash separated),
// ignoring rules that need content confirmation when head is nil.
func MatchName(rel string, head []byte) (NameRule, bool) {
	base := path.Base(rel)
	for _, r := range nameRules {
		if !r.Match(base, rel) {
			continue
		}
		if r.Content != nil && (head == nil || !r.Content(head)) {
			continue
		}
		return r, true
	}
	return NameRule{}, false
}

// NeedsContent reports whether some name rule matching rel wants head bytes.
func NeedsContent(rel string) bool {
	base := path.Base(rel)
	for _, r := range nameRules {
		if r.Content != nil && r.Match(base, rel) {
			return true
		}
	}
	return false
}

var (
	execThenOther = regexp.MustCompile(`(?i)\.(?:php\d?|phtml|phar)\.[a-z0-9]{1,5}$`)
	otherThenExec = regexp.MustCompile(`(?i)\.(?:jpe?g|png|gif|webp|svg|bmp|ico|pdf|docx?|xlsx?|txt)\.(?:php\d?|phtml|phar|zip|tar|gz|7z|rar)$`)
)

// DoubleExtension reports whether name combines an executable extension with
// an image, document or archive extension in either order.
func DoubleExtension(name string) bool {
	return execThenOther.MatchString(name) || otherThenExec.MatchString(name)
}
