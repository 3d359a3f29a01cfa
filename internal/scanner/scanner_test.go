package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/discovery"
	"github.com/ppiankov/wpspectre/internal/models"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func discover(t *testing.T, root string) *discovery.Layout {
	t.Helper()
	l, err := discovery.New(nil, nil).Discover(context.Background(), root)
	require.NoError(t, err)
	return l
}

func scan(t *testing.T, s Scanner, target Target) ([]models.Finding, int) {
	t.Helper()
	c := collector.New(s.Name(), 0)
	n, err := s.Scan(context.Background(), target, c)
	require.NoError(t, err)
	return c.Findings(), n
}

func byType(findings []models.Finding) map[string][]models.Finding {
	out := make(map[string][]models.Finding)
	for _, f := range findings {
		out[f.Type] = append(out[f.Type], f)
	}
	return out
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"config", "db", "files", "headers", "uploads"}, r.Names())

	scanners, err := r.Build([]string{"files", " Uploads ", "files"}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, scanners, 2)
	assert.Equal(t, "files", scanners[0].Name())
	assert.Equal(t, "uploads", scanners[1].Name())

	_, err = r.Build([]string{"nope"}, DefaultOptions())
	assert.ErrorIs(t, err, models.ErrMisconfigured)
}

func TestOptionsDefaultsAndSnapshot(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, int64(250000), o.CodeReadLimit)
	assert.Equal(t, 80, o.optionScanLimit())
	o.Deep = true
	assert.Equal(t, 200, o.optionScanLimit())

	snap := DefaultOptions().Snapshot(NameUploads)
	assert.Equal(t, "4096", snap["head"])
	assert.Equal(t, "14", snap["recent_days"])
	assert.Equal(t, "false", snap["deep"])

	files := DefaultOptions().Snapshot(NameFiles)
	assert.Equal(t, "180", files["indirect_window"])
	assert.Equal(t, "php,phtml,php7,php8", files["extensions"])
}

func TestFilesScanner(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "wp-content/plugins/evil/shell.php", "<?php exec($_GET['cmd']);\n")
	writeFile(t, root, "wp-content/plugins/ok/ok.php", "<?php\n// eval($x) is mentioned only here\necho 'eval(1)';\n")
	writeFile(t, root, "wp-content/plugins/vendored/vendor/lib/run.php", "<?php\neval($code);\n")
	writeFile(t, root, "wp-content/plugins/plain/plain.php", "<?php\neval($code);\n")
	writeFile(t, root, "wp-content/themes/t/readme.txt", "<?php eval($_POST['x']);")

	findings, scanned := scan(t, NewFiles(DefaultOptions()), Target{Root: root})
	assert.Equal(t, 4, scanned)

	bySubject := map[string]map[string]models.Severity{}
	for _, f := range findings {
		if bySubject[f.Subject] == nil {
			bySubject[f.Subject] = map[string]models.Severity{}
		}
		bySubject[f.Subject][f.Type] = f.Severity
		assert.Equal(t, NameFiles, f.Scanner)
		assert.NotEmpty(t, f.Fingerprint)
	}

	shell := bySubject["wp-content/plugins/evil/shell.php"]
	assert.Equal(t, models.SeverityCritical, shell["user_input_to_exec"])
	assert.Equal(t, models.SeverityCritical, shell["system_exec"])

	assert.Empty(t, bySubject["wp-content/plugins/ok/ok.php"], "matches inside comments and strings are ignored")
	assert.Equal(t, models.SeverityAlert, bySubject["wp-content/plugins/plain/plain.php"]["eval"])
	assert.Equal(t, models.SeverityInfo, bySubject["wp-content/plugins/vendored/vendor/lib/run.php"]["eval"])
	assert.NotContains(t, bySubject, "wp-content/themes/t/readme.txt")
}

func TestFilesScannerVendorFlag(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "wp-content/plugins/x/vendor/a.php", "<?php eval($code);")
	findings, _ := scan(t, NewFiles(DefaultOptions()), Target{Root: root})
	require.Len(t, findings, 1)
	assert.Equal(t, "true", findings[0].Extra["vendor"])
	assert.Contains(t, findings[0].Detail, "vendor path")
}

func TestFilesScannerCap(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a", "b", "c", "d"} {
		writeFile(t, root, "wp-content/"+n+".php", "<?php eval($x); assert($y);")
	}
	c := collector.New(NameFiles, 3)
	_, err := NewFiles(DefaultOptions()).Scan(context.Background(), Target{Root: root}, c)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Truncated())
	assert.Equal(t, "wp-content/a.php", c.Findings()[0].Subject)
}

func TestFilesScannerMissingBase(t *testing.T) {
	opts := DefaultOptions()
	opts.FilesBase = "wp-content"
	c := collector.New(NameFiles, 0)
	_, err := NewFiles(opts).Scan(context.Background(), Target{Root: t.TempDir()}, c)
	assert.ErrorIs(t, err, models.ErrNotDirectory)
	assert.Zero(t, c.Len())
}

func TestFilesScannerWalksWholeRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "wp-blog-header.php", "<?php system($_GET['c']);\n")
	writeFile(t, root, "wp-includes/load.php", "<?php eval($_POST['p']);\n")
	writeFile(t, root, "wp-content/plugins/p/p.php", "<?php echo 1;\n")

	findings, scanned := scan(t, NewFiles(DefaultOptions()), Target{Root: root})
	assert.Equal(t, 3, scanned)
	subjects := map[string]bool{}
	for _, f := range findings {
		subjects[f.Subject] = true
	}
	assert.True(t, subjects["wp-blog-header.php"])
	assert.True(t, subjects["wp-includes/load.php"])

	opts := DefaultOptions()
	opts.FilesBase = "wp-content"
	findings, scanned = scan(t, NewFiles(opts), Target{Root: root})
	assert.Equal(t, 1, scanned)
	assert.Empty(t, findings)
}

func TestFilesScannerUndecodedLiteral(t *testing.T) {
	root := t.TempDir()
	blob := strings.Repeat("A", 700)
	writeFile(t, root, "wp-content/plugins/x/const.php", "<?php $k='"+blob+"';\n")
	writeFile(t, root, "wp-content/plugins/x/vendor/lib/a.php", "<?php eval(base64_decode($x)); $font='"+blob+"';\n")

	findings, _ := scan(t, NewFiles(DefaultOptions()), Target{Root: root})
	types := map[string]map[string]models.Severity{}
	for _, f := range findings {
		if types[f.Subject] == nil {
			types[f.Subject] = map[string]models.Severity{}
		}
		types[f.Subject][f.Type] = f.Severity
	}
	assert.NotContains(t, types, "wp-content/plugins/x/const.php", "a literal that is never decoded is not a payload")

	vendored := types["wp-content/plugins/x/vendor/lib/a.php"]
	assert.Equal(t, models.SeverityAlert, vendored["eval_obfuscated"], "vendor downgrade still applies")
	assert.NotContains(t, vendored, "base64_payload")
}

func TestFilesScannerIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "wp-content/a.php", "<?php system($_REQUEST['c']); $$n = 1; eval($x);")
	writeFile(t, root, "wp-content/b.php", "<?php include $_GET['p'];")
	first, _ := scan(t, NewFiles(DefaultOptions()), Target{Root: root})
	second, _ := scan(t, NewFiles(DefaultOptions()), Target{Root: root})
	assert.Equal(t, first, second)
}

func TestUploadsScanner(t *testing.T) {
	root := t.TempDir()
	up := "wp-content/uploads/"
	writeFile(t, root, up+"2024/01/index.php", "<?php // Silence is golden.\n")
	writeFile(t, root, up+"2024/01/shell.php", "<?php system($_GET['c']);")
	writeFile(t, root, up+"2024/01/pic.jpg", "\xff\xd8\xff<?php eval($_POST[1]); ?>")
	writeFile(t, root, up+"2024/01/logo.svg", `<svg xmlns="http://www.w3.org/2000/svg" onload="alert(1)"></svg>`)
	writeFile(t, root, up+"2024/01/clean.svg", `<svg xmlns="http://www.w3.org/2000/svg"><rect/></svg>`)
	writeFile(t, root, up+"2024/01/doc.php.txt", "text")
	writeFile(t, root, up+"2024/01/.htaccess", "AddHandler application/x-httpd-php .jpg\n")
	writeFile(t, root, up+".user.ini", "auto_prepend_file = /tmp/x.php\n")

	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, up+"2024/01/shell.php"), old, old))

	findings, scanned := scan(t, NewUploads(DefaultOptions()), Target{Root: root})
	assert.Equal(t, 8, scanned)
	types := byType(findings)

	require.Len(t, types["placeholder_index"], 1)
	assert.Equal(t, models.SeverityInfo, types["placeholder_index"][0].Severity)

	require.Len(t, types["php_in_uploads"], 1)
	assert.Equal(t, models.SeverityCritical, types["php_in_uploads"][0].Severity)
	assert.NotContains(t, types["php_in_uploads"][0].Detail, "recently")

	require.Len(t, types["php_in_image"], 1)
	assert.Contains(t, types["php_in_image"][0].Detail, "(recently modified)")

	require.Len(t, types["svg_js"], 1)
	assert.Equal(t, up+"2024/01/logo.svg", types["svg_js"][0].Subject)

	require.Len(t, types["double_extension"], 1)
	assert.Equal(t, models.SeverityCritical, types["htaccess_php_enable"][0].Severity)
	assert.Equal(t, models.SeverityCritical, types["userini_auto_prepend"][0].Severity)
	require.Len(t, types["uploads_unprotected"], 1)
}

func TestUploadsScannerProtected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "wp-content/uploads/.htaccess", "<Files *.php>\ndeny from all\n</Files>\n")
	findings, _ := scan(t, NewUploads(DefaultOptions()), Target{Root: root})
	types := byType(findings)
	assert.Empty(t, types["uploads_unprotected"])
	assert.Len(t, types["htaccess_php_disabled"], 1)
}

func TestUploadsScannerMissingDir(t *testing.T) {
	findings, scanned := scan(t, NewUploads(DefaultOptions()), Target{Root: t.TempDir()})
	assert.Zero(t, scanned)
	assert.Empty(t, findings)
}

func TestConfigScanner(t *testing.T) {
	root := t.TempDir()
	cfg := writeFile(t, root, "wp-config.php", "<?php\ndefine('WP_DEBUG', true);\n$table_prefix = 'wp_';\n")
	require.NoError(t, os.Chmod(cfg, 0o644))
	writeFile(t, root, ".htaccess", "# BEGIN WordPress\nRewriteRule . /index.php [L]\n# END WordPress\nphp_flag engine on\n")
	writeFile(t, root, ".env", "DB_PASSWORD=x")
	writeFile(t, root, ".env.example", "DB_PASSWORD=")
	writeFile(t, root, "wp-config.php.bak", "<?php")
	writeFile(t, root, "backup/site.sql.gz", "x")
	writeFile(t, root, "info.php", "<?php phpinfo();")
	writeFile(t, root, "test.php", "<?php echo 1;")
	writeFile(t, root, ".git/config", "[core]")
	writeFile(t, root, "wp-content/uploads/dump.sql", "x")
	writeFile(t, root, "wp-content/.user.ini", "allow_url_include = On\n")

	findings, _ := scan(t, NewConfig(DefaultOptions()), Target{Root: root, Layout: discover(t, root)})
	types := byType(findings)

	assert.Len(t, types["wp_debug_enabled"], 1)
	assert.Len(t, types["wp_debug_display"], 1)
	assert.Len(t, types["file_edit_allowed"], 1)
	assert.Len(t, types["default_table_prefix"], 1)
	assert.Len(t, types["wp_config_world_readable"], 1)

	assert.Equal(t, models.SeverityAlert, types["htaccess_php_enable"][0].Severity)
	assert.Len(t, types["htaccess_wp_rewrite"], 1)

	dotfiles := map[string]bool{}
	for _, f := range types["sensitive_dotfile"] {
		dotfiles[f.Subject] = true
	}
	assert.True(t, dotfiles[".env"])
	assert.True(t, dotfiles[".git/config"])
	assert.False(t, dotfiles[".env.example"])

	assert.Len(t, types["config_backup"], 1)
	require.Len(t, types["database_dump"], 1, "uploads belong to the uploads scanner")
	assert.Equal(t, "backup/site.sql.gz", types["database_dump"][0].Subject)
	require.Len(t, types["phpinfo_file"], 1)
	assert.Equal(t, "info.php", types["phpinfo_file"][0].Subject)
	assert.Len(t, types["userini_remote_include"], 1)
}

func TestConfigScannerHardened(t *testing.T) {
	root := t.TempDir()
	cfg := writeFile(t, root, "wp-config.php", "<?php\ndefine('WP_DEBUG', false);\ndefine('DISALLOW_FILE_EDIT', true);\n$table_prefix = 'x7_';\n")
	require.NoError(t, os.Chmod(cfg, 0o640))

	findings, scanned := scan(t, NewConfig(DefaultOptions()), Target{Root: root, Layout: discover(t, root)})
	assert.Equal(t, 2, scanned)
	assert.Empty(t, findings)
}
