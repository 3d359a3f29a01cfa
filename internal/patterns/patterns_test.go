package patterns

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/sanitize"
)

func labels(rules []Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Label)
	}
	return out
}

func evalPHP(src string) []string {
	return labels(PHP().Eval(sanitize.NewViews([]byte(src))))
}

func TestPHPRules(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"eval", `<?php eval($code);`, []string{"eval"}},
		{"eval in comment", "<?php // eval($code);\n", nil},
		{"eval in string", `<?php echo 'eval($code)';`, nil},
		{"obfuscated", `<?php eval(base64_decode('aGk='));`, []string{"eval_obfuscated", "eval", LabelBase64Decode}},
		{"system", `<?php system('ls');`, []string{LabelSystemExec}},
		{"pdo exec is a method", `<?php $pdo->exec($sql);`, nil},
		{"curl_exec is not exec", `<?php curl_exec($ch);`, nil},
		{"proc_open", `<?php $p = proc_open($cmd, $d, $pipes);`, []string{LabelProcOpen}},
		{"dynamic include", `<?php include $page;`, []string{"dynamic_include"}},
		{"anchored include", `<?php require_once __DIR__ . '/x.php';`, nil},
		{"anchored variable include", `<?php require $dir . '/x.php'; // ABSPATH`, []string{"dynamic_include"}},
		{"request function name", `<?php $_GET['f']($_GET['a']);`, []string{"dynamic_call"}},
		{"preg e", `<?php preg_replace('/.*/e', $r, $s);`, []string{"preg_replace_eval"}},
		{"preg plain", `<?php preg_replace('/.*/i', $r, $s);`, nil},
		{"gzinflate", `<?php $x = gzinflate($d);`, []string{"runtime_decompression"}},
		{"clean", `<?php function hello() { return 1; }`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evalPHP(tt.src)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLibraryEvalDedupesLabels(t *testing.T) {
	lib := Library{
		{Label: "a", Match: re(`x`)},
		{Label: "a", Match: re(`y`)},
		{Label: "b", Match: re(`y`)},
	}
	got := lib.Eval(sanitize.Views{Sanitized: []byte("xy")})
	assert.Equal(t, []string{"a", "b"}, labels(got))

	r, ok := lib.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "b", r.Label)
	_, ok = lib.Lookup("zzz")
	assert.False(t, ok)
}

func TestLongestBase64Literal(t *testing.T) {
	assert.Equal(t, 0, LongestBase64Literal([]byte(`<?php $a = 'short';`)))
	payload := strings.Repeat("QUJD", 200)
	src := `<?php $a = "` + strings.Repeat("A", 100) + `"; $b = '` + payload + `';`
	assert.Equal(t, len(payload), LongestBase64Literal([]byte(src)))
}

func TestLongestDecodedBase64(t *testing.T) {
	blob := strings.Repeat("QUJD", 200)
	assert.Zero(t, LongestDecodedBase64([]byte(`<?php $b = '`+blob+`';`)))
	assert.Zero(t, LongestDecodedBase64([]byte(`<?php $b = base64_decode($x . '`+blob+`');`)))
	assert.Equal(t, len(blob), LongestDecodedBase64([]byte(`<?php eval(BASE64_DECODE( "`+blob+`" ));`)))
}

func TestHasCodeOpenTag(t *testing.T) {
	assert.True(t, HasCodeOpenTag([]byte("GIF89a<?php system($_GET[1]); ?>")))
	assert.True(t, HasCodeOpenTag([]byte("\x89PNG<?= `id` ?>")))
	assert.False(t, HasCodeOpenTag([]byte("<?xml version=\"1.0\"?>")))
}

func TestHtaccessRules(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"engine on", "php_flag engine on\n", []string{LabelHtaccessPHPEnable}},
		{"addhandler", "AddHandler application/x-httpd-php .jpg\n", []string{LabelHtaccessPHPEnable}},
		{"commented", "# AddHandler application/x-httpd-php .jpg\n", nil},
		{"indexes", "Options +Indexes\n", []string{"htaccess_indexes"}},
		{"no indexes", "Options -Indexes +FollowSymLinks\n", nil},
		{"engine off", "php_flag engine off\n", []string{LabelHtaccessPHPDisabled}},
		{"deny php", "<FilesMatch \"\\.php$\">\n  Require all denied\n</FilesMatch>\n", []string{LabelHtaccessPHPDisabled}},
		{"wordpress", "# BEGIN WordPress\nRewriteEngine On\nRewriteRule . /index.php [L]\n# END WordPress\n", []string{"htaccess_wp_rewrite"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labels(Htaccess().Eval(HtaccessViews([]byte(tt.src))))
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserIniRules(t *testing.T) {
	src := "auto_prepend_file = /tmp/x.php\nallow_url_include = On\nallow_url_fopen=1\ndisable_functions =\nopen_basedir = \"\"\n"
	got := labels(UserIni().Eval(IniViews([]byte(src))))
	assert.Equal(t, []string{
		LabelUserIniAutoPrepend,
		"userini_remote_include",
		"userini_remote_fopen",
		"userini_empty_disable_functions",
		"userini_empty_open_basedir",
	}, got)

	assert.Empty(t, UserIni().Eval(IniViews([]byte("; auto_prepend_file = /tmp/x.php\ndisable_functions = exec,system\n"))))
	assert.Empty(t, UserIni().Eval(IniViews([]byte("auto_prepend_file =\n"))))
}

func TestMatchName(t *testing.T) {
	tests := []struct {
		rel   string
		label string
		sev   models.Severity
	}{
		{".env", "sensitive_dotfile", models.SeverityCritical},
		{"sub/.env.production", "sensitive_dotfile", models.SeverityCritical},
		{".git/config", "sensitive_dotfile", models.SeverityCritical},
		{".htpasswd", "sensitive_dotfile", models.SeverityAlert},
		{"wp-config.php.bak", "config_backup", models.SeverityCritical},
		{"wp-config.php~", "config_backup", models.SeverityCritical},
		{"wp-config - Copy.php", "config_backup", models.SeverityCritical},
		{"backup/site.sql.gz", "database_dump", models.SeverityCritical},
		{"site.tar.gz", "archive_in_docroot", models.SeverityAlert},
		{"php.ini", "stray_server_config", models.SeverityAlert},
		{"web.config", "stray_server_config", models.SeverityInfo},
	}
	for _, tt := range tests {
		r, ok := MatchName(tt.rel, nil)
		require.True(t, ok, tt.rel)
		assert.Equal(t, tt.label, r.Label, tt.rel)
		assert.Equal(t, tt.sev, r.Severity, tt.rel)
	}

	for _, rel := range []string{"wp-config.php", "wp-config-sample.php", ".env.example", "index.php", "style.css"} {
		_, ok := MatchName(rel, nil)
		assert.False(t, ok, rel)
	}
}

func TestMatchNameContentConfirmation(t *testing.T) {
	assert.True(t, NeedsContent("info.php"))
	assert.False(t, NeedsContent("index.php"))

	_, ok := MatchName("info.php", nil)
	assert.False(t, ok)
	_, ok = MatchName("info.php", []byte("<?php echo 'hello';"))
	assert.False(t, ok)
	r, ok := MatchName("info.php", []byte("<?php phpinfo(); ?>"))
	require.True(t, ok)
	assert.Equal(t, "phpinfo_file", r.Label)
}

func TestDoubleExtension(t *testing.T) {
	for _, name := range []string{"shell.php.jpg", "x.phtml.png", "photo.jpg.php", "a.png.zip", "doc.pdf.phar"} {
		assert.True(t, DoubleExtension(name), name)
	}
	for _, name := range []string{"photo.jpg", "jquery.min.js", "archive.tar.gz", "index.php"} {
		assert.False(t, DoubleExtension(name), name)
	}
}

func TestDangerousSVG(t *testing.T) {
	tests := []struct {
		name string
		svg  string
		want bool
	}{
		{"plain", `<svg xmlns="http://www.w3.org/2000/svg"><rect width="1" height="1"/></svg>`, false},
		{"script", `<svg><script>alert(1)</script></svg>`, true},
		{"onload", `<svg onload="alert(1)"></svg>`, true},
		{"javascript href", `<svg><a href="javascript:alert(1)"><text>x</text></a></svg>`, true},
		{"data xlink", `<svg><image xlink:href="data:text/html;base64,PHNjcmlwdD4="/></svg>`, true},
		{"not svg", `<html><script>x</script></html>`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DangerousSVG([]byte(tt.svg)), tt.name)
	}
}
