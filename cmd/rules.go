package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/scanguard/internal/classifier"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the signature table",
	Long: `Print the signature table in evaluation order: the window gate first,
then every rule with its predicate and verdict. The first matching rule
decides; packets matching none are accepted.

By default the table is built from the config file. With --remote the
table of the running daemon is printed instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rulesRemote {
			return withClient(cmd, func(ctx context.Context, c ClientInterface) error {
				return runRemoteRules(ctx, c, rulesFormat, cmd.OutOrStdout())
			})
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		table, err := classifier.NewTable(cfg.Classifier.Windows())
		if err != nil {
			return err
		}
		return printRules(table.Describe(), rulesFormat, cmd.OutOrStdout())
	},
}

var (
	rulesFormat string
	rulesRemote bool
)

func init() {
	rulesCmd.Flags().StringVarP(&rulesFormat, "format", "o", formatTable, "output format: table, yaml or json")
	rulesCmd.Flags().BoolVar(&rulesRemote, "remote", false, "query the running daemon")
}

func runRemoteRules(ctx context.Context, client ClientInterface, format string, out io.Writer) error {
	res, err := client.ClassifierRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to query rules: %w", err)
	}
	return printRules(res.Rules, format, out)
}

func printRules(rows []classifier.RuleInfo, format string, out io.Writer) error {
	return render(out, format, rows, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "#\tNAME\tPREDICATE\tVERDICT")
		for i, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, r.Name, r.Predicate, r.Verdict)
		}
	})
}
