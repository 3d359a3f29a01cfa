package discovery

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/ppiankov/wpspectre/internal/sanitize"
)

// GetenvFunc matches the signature of os.Getenv.
type GetenvFunc func(key string) string

// WPConfig is the read-only parse of a wp-config.php file.
type WPConfig struct {
	Defines     map[string]string
	TablePrefix string
	// FromEnv lists the defines whose value came from getenv()/getenv_docker().
	FromEnv map[string]bool
}

var (
	defineRe = regexp.MustCompile(`(?is)\bdefine\s*\(\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]\s*,\s*(.*?)\s*\)\s*;`)
	prefixRe = regexp.MustCompile(`(?s)\$table_prefix\s*=\s*(.*?)\s*;`)
	getenvRe = regexp.MustCompile(`(?is)^(?:getenv|getenv_docker)\s*\(\s*['"]([^'"]+)['"]\s*(?:,\s*(.*?))?\s*\)$`)
)

// ParseWPConfig extracts define() constants and $table_prefix from src.
// Commented-out definitions are ignored. Values from getenv() calls are
// resolved through getenv, falling back to the getenv_docker default.
func ParseWPConfig(src []byte, getenv GetenvFunc) *WPConfig {
	code := sanitize.Comments(src)
	cfg := &WPConfig{Defines: make(map[string]string), FromEnv: make(map[string]bool)}

	for _, m := range defineRe.FindAllSubmatch(code, -1) {
		name := string(m[1])
		val, fromEnv := evalPHPValue(string(m[2]), getenv)
		if _, seen := cfg.Defines[name]; seen {
			continue // PHP keeps the first definition
		}
		cfg.Defines[name] = val
		if fromEnv {
			cfg.FromEnv[name] = true
		}
	}
	if m := prefixRe.FindSubmatch(code); m != nil {
		cfg.TablePrefix, _ = evalPHPValue(string(m[1]), getenv)
	}
	return cfg
}

// Bool reports whether a define holds a truthy literal.
func (c *WPConfig) Bool(name string) bool {
	switch strings.ToLower(c.Defines[name]) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Has reports whether name is defined.
func (c *WPConfig) Has(name string) bool {
	_, ok := c.Defines[name]
	return ok
}

// evalPHPValue evaluates the small subset of PHP expressions found in
// wp-config.php files: quoted literals, booleans, numbers and getenv calls.
// Anything else is returned verbatim.
func evalPHPValue(expr string, getenv GetenvFunc) (string, bool) {
	expr = strings.TrimSpace(expr)
	if m := getenvRe.FindStringSubmatch(expr); m != nil {
		if getenv != nil {
			if v := getenv(m[1]); v != "" {
				return v, true
			}
		}
		if m[2] != "" {
			v, _ := evalPHPValue(m[2], getenv)
			return v, true
		}
		return "", true
	}
	if len(expr) >= 2 && (expr[0] == '\'' || expr[0] == '"') && expr[len(expr)-1] == expr[0] {
		return unquotePHP(expr[1:len(expr)-1], expr[0]), false
	}
	switch strings.ToLower(expr) {
	case "true", "false":
		return strings.ToLower(expr), false
	}
	return expr, false
}

func unquotePHP(s string, q byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == q || s[i+1] == '\\') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// DBSettings are the connection parameters found for the site database.
type DBSettings struct {
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	Host     string `json:"host"`
	Charset  string `json:"charset,omitempty"`
	Prefix   string `json:"prefix"`
}

// DBSettings reads the DB_* constants and the table prefix.
func (c *WPConfig) DBSettings() DBSettings {
	return DBSettings{
		Name:     c.Defines["DB_NAME"],
		User:     c.Defines["DB_USER"],
		Password: c.Defines["DB_PASSWORD"],
		Host:     c.Defines["DB_HOST"],
		Charset:  c.Defines["DB_CHARSET"],
		Prefix:   c.TablePrefix,
	}
}

// Complete reports whether enough parameters exist to connect.
func (s DBSettings) Complete() bool {
	return s.Name != "" && s.User != ""
}

// Masked returns a copy safe to print.
func (s DBSettings) Masked() DBSettings {
	if s.Password != "" {
		s.Password = "********"
	}
	return s
}

// DSN builds a go-sql-driver/mysql DSN. DB_HOST may be host, host:port,
// host:/path/to/socket or a bare socket path.
func (s DBSettings) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.DBName = s.Name
	cfg.ParseTime = true
	if s.Charset != "" {
		cfg.Params = map[string]string{"charset": s.Charset}
	}

	host := s.Host
	if host == "" {
		host = "localhost"
	}
	switch {
	case strings.HasPrefix(host, "/"):
		cfg.Net, cfg.Addr = "unix", host
	case strings.Contains(host, ":/"):
		i := strings.Index(host, ":/")
		cfg.Net, cfg.Addr = "unix", host[i+1:]
	default:
		h, port, err := net.SplitHostPort(host)
		if err != nil {
			h, port = host, "3306"
		}
		if _, err := strconv.Atoi(port); err != nil {
			port = "3306"
		}
		cfg.Net, cfg.Addr = "tcp", net.JoinHostPort(h, port)
	}
	return cfg.FormatDSN()
}
