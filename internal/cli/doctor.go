package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/discovery"
	"github.com/ppiankov/wpspectre/internal/policy"
	"github.com/ppiankov/wpspectre/internal/source"
)

const doctorDBTimeout = 5 * time.Second

var (
	doctorFormat string
	doctorNoDB   bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [root]",
	Short: "Check environment readiness and diagnose common problems",
	Long: `Doctor validates your wpspectre setup end-to-end:

  1. Config file: found and valid?
  2. Root: a directory that looks like WordPress?
  3. wp-config.php: found, with database settings?
  4. Database: reachable with a read-only ping?
  5. Storage: directory writable?
  6. Policy: present and compiling?

Fix the issues it reports, then run 'wpspectre scan' with confidence.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text",
		"output format: text or json")
	doctorCmd.Flags().BoolVar(&doctorNoDB, "no-db", false,
		"skip the database connectivity check")
}

type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

type doctorResult struct {
	Checks  []doctorCheck `json:"checks"`
	Summary string        `json:"summary"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	root := cfg.Root
	if len(args) == 1 {
		root = args[0]
	}

	var checks []doctorCheck
	checks = append(checks, checkConfig())

	rootCheck, layout := checkRoot(root)
	checks = append(checks, rootCheck)
	if layout != nil {
		checks = append(checks, checkWPConfig(layout))
		if !doctorNoDB {
			checks = append(checks, checkDatabase(layout))
		}
	}

	checks = append(checks, checkStorage())
	checks = append(checks, checkPolicy())

	result := summarizeChecks(checks)
	if doctorFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	writeDoctorText(os.Stdout, result)
	return nil
}

func summarizeChecks(checks []doctorCheck) doctorResult {
	fails, warns := 0, 0
	for _, c := range checks {
		switch c.Status {
		case "fail":
			fails++
		case "warn":
			warns++
		}
	}

	summary := "all checks passed"
	if fails > 0 {
		summary = fmt.Sprintf("%d issue(s) found", fails)
	} else if warns > 0 {
		summary = fmt.Sprintf("ok with %d warning(s)", warns)
	}
	return doctorResult{Checks: checks, Summary: summary}
}

func writeDoctorText(w io.Writer, result doctorResult) {
	icons := map[string]string{
		"ok":   "✓",
		"warn": "△",
		"fail": "✗",
	}

	for _, c := range result.Checks {
		icon := icons[c.Status]
		if c.Detail != "" {
			fmt.Fprintf(w, "  %s %-12s %s\n", icon, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "  %s %s\n", icon, c.Name)
		}
	}
	fmt.Fprintf(w, "\n%s\n", result.Summary)
}

func checkConfig() doctorCheck {
	if configFile == "" {
		return doctorCheck{
			Name:   "config",
			Status: "ok",
			Detail: "no --config given (defaults, wpspectre.yaml search path, WPSPECTRE_* env)",
		}
	}
	if _, err := os.Stat(configFile); err != nil {
		return doctorCheck{Name: "config", Status: "fail", Detail: fmt.Sprintf("%s: %v", configFile, err)}
	}
	return doctorCheck{Name: "config", Status: "ok", Detail: configFile}
}

func checkRoot(root string) (doctorCheck, *discovery.Layout) {
	layout, err := discoverLayout(root)
	if err != nil {
		return doctorCheck{Name: "root", Status: "fail", Detail: err.Error()}, nil
	}
	if !layout.IsWordPress {
		return doctorCheck{
			Name:   "root",
			Status: "warn",
			Detail: fmt.Sprintf("%s has no wp-config.php, version.php or wp-content", layout.Root),
		}, layout
	}
	detail := layout.Root
	if layout.Version != "" {
		detail += " (WordPress " + layout.Version + ")"
	}
	return doctorCheck{Name: "root", Status: "ok", Detail: detail}, layout
}

func checkWPConfig(layout *discovery.Layout) doctorCheck {
	if layout.ConfigPath == "" {
		return doctorCheck{Name: "wp-config", Status: "warn", Detail: "not found in root or its parent"}
	}
	if !layout.DB.Complete() {
		return doctorCheck{
			Name:   "wp-config",
			Status: "warn",
			Detail: layout.ConfigPath + " (DB_NAME or DB_USER missing)",
		}
	}
	return doctorCheck{Name: "wp-config", Status: "ok", Detail: layout.ConfigPath}
}

func checkDatabase(layout *discovery.Layout) doctorCheck {
	dsn := cfg.DB.DSN
	if dsn == "" && layout.DB.Complete() {
		dsn = layout.DB.DSN()
	}
	if dsn == "" {
		return doctorCheck{Name: "database", Status: "warn", Detail: "no credentials; the db scanner will fail. Set db.dsn or --db-dsn"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorDBTimeout)
	defer cancel()
	db, err := source.OpenMySQL(ctx, dsn)
	if err != nil {
		return doctorCheck{Name: "database", Status: "fail", Detail: err.Error()}
	}
	defer func() { _ = db.Close() }()
	return doctorCheck{Name: "database", Status: "ok", Detail: "reachable"}
}

func checkStorage() doctorCheck {
	storagePath, err := cfg.GetStoragePath()
	if err != nil {
		return doctorCheck{Name: "storage", Status: "fail", Detail: err.Error()}
	}

	info, err := os.Stat(storagePath)
	if err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "ok",
			Detail: fmt.Sprintf("%s (will be created on first --store)", storagePath),
		}
	}
	if !info.IsDir() {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s exists but is not a directory", storagePath),
		}
	}

	tmpFile := filepath.Join(storagePath, ".doctor-check")
	if err := os.WriteFile(tmpFile, []byte("ok"), 0o600); err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s not writable: %v", storagePath, err),
		}
	}
	_ = os.Remove(tmpFile)
	return doctorCheck{Name: "storage", Status: "ok", Detail: storagePath}
}

func checkPolicy() doctorCheck {
	path := policy.FindPolicyFile()
	if path == "" {
		return doctorCheck{Name: "policy", Status: "ok", Detail: "none (only --fail-on gates the exit code)"}
	}
	if _, err := policy.LoadFromFile(path); err != nil {
		return doctorCheck{Name: "policy", Status: "fail", Detail: err.Error()}
	}
	return doctorCheck{Name: "policy", Status: "ok", Detail: path}
}
