package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/scanguard/internal/classifier"
	"firestige.xyz/scanguard/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config.yml]",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the daemon.
The file defaults to the --config flag.

Examples:
  scanguard validate /etc/scanguard/config.yml
  scanguard -c config.yml validate`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) == 1 {
			path = args[0]
		}
		return runValidate(path, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	if path == "" {
		return fmt.Errorf("no config file given")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	table, err := classifier.NewTable(cfg.Classifier.Windows())
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	fmt.Fprintf(out, "VALID: %s (mode %s, %d rule(s), window gate %v)\n",
		path, cfg.Intercept.Mode, len(table.Rules), table.Gate.Windows)
	return nil
}
