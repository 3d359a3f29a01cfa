package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/config"
	"github.com/ppiankov/wpspectre/internal/logging"
)

const (
	ExitOK           = 0 // Success
	ExitPolicyFail   = 1 // Findings at or above --fail-on, or a policy violation
	ExitInvalidInput = 2 // Bad flags, config or report file
	ExitRuntimeError = 3 // I/O, database, or every scanner failed
)

var (
	// Global config instance
	cfg *config.Config

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	version = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "wpspectre",
	Short: "wpspectre - read-only WordPress security auditor",
	Long: `wpspectre audits a WordPress install without modifying it. It reads
wp-config.php, the content tree, plugin and theme headers, and the site
database, and reports findings graded INFO, ALERTE or CRITIQUE.

It provides:
- Heuristic detection of webshells, obfuscation and backdoors
- Upload, configuration and database hygiene checks
- Stored history with trends and drift between runs
- CI/CD integration with exit codes and policy files

Quick start:
  wpspectre doctor
  wpspectre scan /var/www/html --store
  wpspectre browse

Other commands:
  wpspectre discover /var/www/html
  wpspectre diff
  wpspectre export --format sarif`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("failed to load config: %v", err)}
		}

		if verbose {
			cfg.Verbose = true
		}
		if debug {
			cfg.Debug = true
		}

		if err := logging.Init(cfg.Verbose, cfg.Debug); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		return nil
	},
}

// SetVersion sets the version reported by the version command and exporters.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		var thr *ThresholdExceededError
		if !errors.As(err, &thr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(HandleError(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./wpspectre.yaml or ~/wpspectre.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"debug mode (very verbose)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(explainGradeCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wpspectre %s\n", version)
		fmt.Println("Read-only WordPress security auditor")
	},
}

// HandleError determines the appropriate exit code for an error
func HandleError(err error) int {
	if err == nil {
		return ExitOK
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return ExitInvalidInput
	}
	var terr *ThresholdExceededError
	if errors.As(err, &terr) {
		return ExitPolicyFail
	}
	return ExitRuntimeError
}

// ValidationError represents invalid user input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ThresholdExceededError represents a fail-on or policy failure
type ThresholdExceededError struct {
	Count  int
	Reason string
}

func (e *ThresholdExceededError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Reason, e.Count)
}

// logVerbose logs at info level, shown with --verbose
func logVerbose(format string, args ...interface{}) {
	logging.L().Infof(format, args...)
}

// logDebug logs at debug level, shown with --debug
func logDebug(format string, args ...interface{}) {
	logging.L().Debugf(format, args...)
}

// logError logs an error; always shown
func logError(format string, args ...interface{}) {
	logging.L().Errorf(format, args...)
}
