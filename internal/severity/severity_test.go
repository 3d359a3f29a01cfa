package severity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/wpspectre/internal/analyzer"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/patterns"
	"github.com/ppiankov/wpspectre/internal/sanitize"
)

type resolved struct {
	Type     string
	Severity models.Severity
}

// evaluate mimics the files scanner for one subject.
func evaluate(src string, vendor bool) []resolved {
	views := sanitize.NewViews([]byte(src))
	flags := analyzer.New(analyzer.Options{}).Analyze(views)
	var out []resolved
	for _, r := range patterns.PHP().Eval(views) {
		out = append(out, resolved{r.Label, Resolve(r, flags, vendor)})
	}
	for _, d := range Context(flags, vendor) {
		out = append(out, resolved{d.Type, d.Severity})
	}
	return out
}

func severityOf(t *testing.T, got []resolved, typ string) models.Severity {
	t.Helper()
	for _, r := range got {
		if r.Type == typ {
			return r.Severity
		}
	}
	require.Failf(t, "missing finding", "type %s not in %v", typ, got)
	return ""
}

func TestExecTaintIsCritical(t *testing.T) {
	got := evaluate(`<?php exec($_GET['cmd']);`, false)
	assert.Equal(t, models.SeverityCritical, severityOf(t, got, TypeUserInputToExec))
	assert.Equal(t, models.SeverityCritical, severityOf(t, got, patterns.LabelSystemExec))
}

func TestEscapedExecTaintIsAlert(t *testing.T) {
	got := evaluate(`<?php exec(escapeshellarg($_GET['cmd']));`, false)
	assert.Equal(t, models.SeverityAlert, severityOf(t, got, TypeUserInputToExec))
	assert.Equal(t, models.SeverityAlert, severityOf(t, got, patterns.LabelSystemExec))
}

func TestExecWithoutTaintIsInfo(t *testing.T) {
	got := evaluate(`<?php exec('uptime');`, false)
	assert.Equal(t, []resolved{{patterns.LabelSystemExec, models.SeverityInfo}}, got)
}

func TestBase64Boundary(t *testing.T) {
	small := evaluate(`<?php $x = base64_decode('`+strings.Repeat("QUJD", 75)+`');`, false)
	assert.Equal(t, []resolved{{patterns.LabelBase64Decode, models.SeverityInfo}}, small)

	large := evaluate(`<?php $x = base64_decode('`+strings.Repeat("QUJD", 175)+`');`, false)
	assert.Equal(t, models.SeverityAlert, severityOf(t, large, patterns.LabelBase64Decode))
	assert.Equal(t, models.SeverityAlert, severityOf(t, large, TypeBase64Payload))
}

func TestUploadIncludeAlwaysCritical(t *testing.T) {
	srcs := []string{
		`<?php include 'wp-content/uploads/2023/01/a.php';`,
		`<?php include 'wp-content/uploads/a.php'; exec(escapeshellarg($_GET['c']));`,
	}
	for _, src := range srcs {
		for _, vendor := range []bool{false, true} {
			got := evaluate(src, vendor)
			assert.Equal(t, models.SeverityCritical, severityOf(t, got, TypeIncludeFromUploads), "%s vendor=%v", src, vendor)
		}
	}
}

func TestVendorDowngradesOneLevel(t *testing.T) {
	src := `<?php eval(gzinflate($blob));`
	plain := evaluate(src, false)
	vendored := evaluate(src, true)

	assert.Equal(t, models.SeverityCritical, severityOf(t, plain, "eval_obfuscated"))
	assert.Equal(t, models.SeverityAlert, severityOf(t, vendored, "eval_obfuscated"))
	assert.Equal(t, models.SeverityAlert, severityOf(t, plain, "eval"))
	assert.Equal(t, models.SeverityInfo, severityOf(t, vendored, "eval"))
	assert.Equal(t, models.SeverityInfo, severityOf(t, vendored, "runtime_decompression"))
}

func TestVendorDoesNotDowngradeHardSignals(t *testing.T) {
	got := evaluate(`<?php eval($_POST['x']);`, true)
	assert.Equal(t, models.SeverityCritical, severityOf(t, got, "eval"))
	assert.Equal(t, models.SeverityCritical, severityOf(t, got, TypeUserInputToEval))
}

func TestIndirectFindings(t *testing.T) {
	got := evaluate(`<?php $$k = 1; assert($v);`, false)
	assert.Equal(t, models.SeverityAlert, severityOf(t, got, TypeIndirectCallNearSink))

	got = evaluate(`<?php $$k = 1; assert($v);`, true)
	assert.Equal(t, models.SeverityInfo, severityOf(t, got, TypeIndirectCallNearSink))

	got = evaluate(`<?php $$k = $_GET['n']; assert($v);`, false)
	assert.Equal(t, models.SeverityCritical, severityOf(t, got, TypeIndirectCallFromInput))
}

func TestResolveIsPure(t *testing.T) {
	r := patterns.Rule{Label: "x", Base: models.SeverityAlert, SinkPresence: true}
	f := analyzer.Flags{}
	for i := 0; i < 3; i++ {
		assert.Equal(t, models.SeverityInfo, Resolve(r, f, false))
	}
}

func TestCleanFileHasNoFindings(t *testing.T) {
	assert.Empty(t, evaluate("<?php\n/** eval($_GET['x']) in docs */\nfunction ok() { return 'system(1)'; }\n", false))
}
