package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/discovery"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/source"
)

var discoverFormat string

var discoverCmd = &cobra.Command{
	Use:   "discover [root]",
	Short: "Detect the WordPress layout and database settings",
	Long: `Discover probes a document root to find wp-config.php, the content,
uploads, plugins, mu-plugins and themes directories, the WordPress version,
and the database settings declared in wp-config.php.

This is a read-only operation: files are read, nothing is executed and no
connection is made. The database password is masked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverFormat, "format", "text",
		"output format: text or json")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if discoverFormat != "text" && discoverFormat != "json" {
		return &ValidationError{Message: fmt.Sprintf("invalid format: %s (must be text or json)", discoverFormat)}
	}
	root := cfg.Root
	if len(args) == 1 {
		root = args[0]
	}

	layout, err := discoverLayout(root)
	if err != nil {
		return err
	}
	layout.DB = layout.DB.Masked()

	if discoverFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(layout)
	}
	printDiscoveryText(os.Stdout, layout)
	return nil
}

func discoverLayout(root string) (*discovery.Layout, error) {
	layout, err := discovery.New(source.NewFS(cfg.IORate), os.Getenv).Discover(context.Background(), root)
	if err != nil {
		if errors.Is(err, models.ErrNotDirectory) {
			return nil, &ValidationError{Message: err.Error()}
		}
		return nil, err
	}
	return layout, nil
}

func printDiscoveryText(w io.Writer, l *discovery.Layout) {
	p := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format, args...)
	}

	p("Root: %s\n", l.Root)
	if l.IsWordPress {
		version := l.Version
		if version == "" {
			version = "unknown version"
		}
		p("WordPress: yes (%s)\n\n", version)
	} else {
		p("WordPress: not detected\n\n")
	}

	for _, ps := range l.Paths {
		status := "✗ missing"
		if ps.Exists {
			status = "✓ found"
		}
		p("  %-24s %s\n", ps.Name, status)
		if ps.Path != "" {
			p("  %-24s %s\n", "", l.Rel(ps.Path))
		}
	}
	p("\n")

	if l.ConfigPath == "" {
		p("Database: no wp-config.php, use --db-dsn to scan the database\n")
		return
	}
	db := l.DB
	p("Database:\n")
	p("  name:     %s\n", db.Name)
	p("  user:     %s\n", db.User)
	p("  password: %s\n", db.Password)
	p("  host:     %s\n", db.Host)
	if db.Charset != "" {
		p("  charset:  %s\n", db.Charset)
	}
	p("  prefix:   %s\n", db.Prefix)
	if !db.Complete() {
		p("  (incomplete, the db scanner needs DB_NAME and DB_USER or --db-dsn)\n")
	}
}
