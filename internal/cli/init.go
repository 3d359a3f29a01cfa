package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/config"
)

var (
	initOutput string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Init writes a commented wpspectre.yaml with every key at its default.
Without --output the sample is printed to stdout.

Example:
  wpspectre init -o wpspectre.yaml
  wpspectre init > ~/wpspectre.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "",
		"write the sample to this path")
	initCmd.Flags().BoolVar(&initForce, "force", false,
		"overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	sample, err := config.GenerateSampleConfig()
	if err != nil {
		return err
	}
	if initOutput == "" {
		fmt.Print(sample)
		return nil
	}

	if _, err := os.Stat(initOutput); err == nil && !initForce {
		return &ValidationError{Message: fmt.Sprintf("%s already exists (use --force to overwrite)", initOutput)}
	}
	if err := os.WriteFile(initOutput, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", initOutput)
	return nil
}
