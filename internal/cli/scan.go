package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/discovery"
	"github.com/ppiankov/wpspectre/internal/metrics"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/runner"
	"github.com/ppiankov/wpspectre/internal/scanner"
	"github.com/ppiankov/wpspectre/internal/source"
	"github.com/ppiankov/wpspectre/internal/telemetry"
)

var (
	scanScanners     []string
	scanMax          int
	scanDeep         bool
	scanFormat       string
	scanOutput       string
	scanStore        bool
	scanFailOn       string
	scanDBDSN        string
	scanPrefix       string
	scanMetricsFile  string
	scanOTLPEndpoint string
	scanPolicy       string
	scanLimit        int
)

var scanCmd = &cobra.Command{
	Use:   "scan [root]",
	Short: "Audit a WordPress install",
	Long: `Scan runs the selected scanners against a WordPress document root
(default: the configured root, or the current directory).

Scanners:
  config   wp-config.php, debug flags, exposed backups and dumps
  uploads  executables, disguised scripts and SVG payloads in uploads
  headers  plugin and theme headers, lookalike and unknown components
  files    PHP code heuristics (webshells, obfuscation, backdoors)
  db       options, cron, admins and table hygiene (read-only queries)

The database is reached with --db-dsn, or with the credentials found in
wp-config.php. Nothing is ever written to the site or the database.

Exit codes:
  0  Scan completed
  1  Findings at or above --fail-on, or a policy violation
  2  Invalid flags or configuration
  3  Runtime error, including every scanner failing

Example:
  wpspectre scan /var/www/html
  wpspectre scan --scanners files,uploads --fail-on CRITIQUE
  wpspectre scan --store --format markdown -o audit.md
  wpspectre scan --db-dsn 'ro:secret@tcp(db:3306)/wordpress' --deep`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringSliceVar(&scanScanners, "scanners", nil,
		"scanners to run, comma separated (default: all)")
	f.IntVar(&scanMax, "max", 0,
		"findings cap per scanner (default from config)")
	f.BoolVar(&scanDeep, "deep", false,
		"widen database option scans")
	f.StringVarP(&scanFormat, "format", "f", "",
		"output format: text, json, markdown, or both (default from config)")
	f.StringVarP(&scanOutput, "output", "o", "",
		"write output to file instead of stdout")
	f.BoolVar(&scanStore, "store", false,
		"store the report for trends, diff and browse")
	f.StringVar(&scanFailOn, "fail-on", "",
		"exit 1 when a finding at or above this severity exists (INFO, ALERTE, CRITIQUE)")
	f.StringVar(&scanDBDSN, "db-dsn", "",
		"MySQL DSN (default: credentials from wp-config.php)")
	f.StringVar(&scanPrefix, "prefix", "",
		"table prefix (default: $table_prefix from wp-config.php)")
	f.StringVar(&scanMetricsFile, "metrics-file", "",
		"write Prometheus textfile metrics to this path")
	f.StringVar(&scanOTLPEndpoint, "otlp-endpoint", "",
		"export traces to this OTLP gRPC endpoint")
	f.StringVar(&scanPolicy, "policy", "",
		"policy file (default: .wpspectre-policy.yaml found upward from cwd)")
	f.IntVar(&scanLimit, "limit", 0,
		"findings printed in text output, 0 prints all")
}

// applyScanFlags overrides config values with flags the user set.
func applyScanFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("scanners") {
		cfg.Scanners = scanScanners
	}
	if flags.Changed("max") {
		cfg.MaxFindings = scanMax
	}
	if flags.Changed("deep") {
		cfg.Deep = scanDeep
	}
	if flags.Changed("format") {
		cfg.Format = scanFormat
	}
	if flags.Changed("fail-on") {
		cfg.FailOn = scanFailOn
	}
	if flags.Changed("db-dsn") {
		cfg.DB.DSN = scanDBDSN
	}
	if flags.Changed("prefix") {
		cfg.DB.Prefix = scanPrefix
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = scanMetricsFile
	}
	if flags.Changed("otlp-endpoint") {
		cfg.OTLPEndpoint = scanOTLPEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := applyScanFlags(cmd); err != nil {
		return err
	}
	root := cfg.Root
	if len(args) == 1 {
		root = args[0]
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint: cfg.OTLPEndpoint,
		Insecure: cfg.OTLPInsecure,
		Version:  version,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logError("Failed to flush traces: %v", err)
		}
	}()

	fsrc := source.NewFS(cfg.IORate)
	layout, err := discovery.New(fsrc, os.Getenv).Discover(ctx, root)
	if err != nil {
		if errors.Is(err, models.ErrNotDirectory) {
			return &ValidationError{Message: err.Error()}
		}
		return err
	}
	if !layout.IsWordPress {
		logError("%s does not look like a WordPress install; scanning anyway", layout.Root)
	}
	logVerbose("Root %s, content %s, wp-config %q", layout.Root, layout.ContentDir, layout.ConfigPath)

	opts := cfg.ScanOptions()
	scanners, err := scanner.NewRegistry().Build(cfg.Scanners, opts)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}

	target := scanner.Target{
		Root:   layout.Root,
		Layout: layout,
		FS:     fsrc,
		Schema: cfg.DB.Schema,
		Prefix: cfg.DB.Prefix,
	}
	if wantsDB(scanners) {
		db, closeDB := connectDB(ctx, layout)
		defer closeDB()
		target.DB = db
		if target.Schema == "" && cfg.DB.DSN != "" {
			target.Schema = dsnSchema(cfg.DB.DSN)
		}
	}

	recorder := metrics.New()
	run := runner.New(scanners, runner.Config{
		MaxFindings: cfg.MaxFindings,
		Timeout:     cfg.Timeout,
		Options:     opts,
		Recorder:    recorder,
	})
	runs := run.Run(ctx, target)

	failOn, _ := cfg.FailSeverity()
	_, err = RunPipeline(runs, PipelineConfig{
		Root:        layout.Root,
		Format:      cfg.Format,
		Output:      scanOutput,
		TextLimit:   scanLimit,
		Store:       scanStore,
		StorageDir:  cfg.StorageDir,
		KeepRuns:    cfg.KeepRuns,
		FailOn:      failOn,
		MetricsFile: cfg.MetricsFile,
		Recorder:    recorder,
		PolicyPath:  scanPolicy,
	})
	return err
}

func wantsDB(scanners []scanner.Scanner) bool {
	return slices.ContainsFunc(scanners, func(s scanner.Scanner) bool {
		return s.Name() == scanner.NameDB
	})
}

// connectDB opens the site database. A failed connection is handed to the
// db scanner as a source whose every query fails, so the run records the
// error while the other scanners proceed.
func connectDB(ctx context.Context, layout *discovery.Layout) (source.DB, func()) {
	dsn := cfg.DB.DSN
	if dsn == "" && layout.DB.Complete() {
		dsn = layout.DB.DSN()
	}
	if dsn == "" {
		logVerbose("No database credentials found; db scanner will be skipped")
		return nil, func() {}
	}

	db, err := source.OpenMySQL(ctx, dsn)
	if err != nil {
		logError("Database unavailable: %v", err)
		return unavailableDB{err: err}, func() {}
	}
	return db, func() { _ = db.Close() }
}

func dsnSchema(dsn string) string {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return ""
	}
	return c.DBName
}

// unavailableDB fails every query with the connection error.
type unavailableDB struct{ err error }

func (u unavailableDB) Tables(context.Context, string) ([]source.TableMeta, error) {
	return nil, fmt.Errorf("database unavailable: %w", u.err)
}

func (u unavailableDB) Rows(context.Context, source.Selector, int) ([]source.Row, error) {
	return nil, fmt.Errorf("database unavailable: %w", u.err)
}
