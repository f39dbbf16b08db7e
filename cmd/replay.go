package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/scanguard/internal/classifier"
	"firestige.xyz/scanguard/internal/config"
	"firestige.xyz/scanguard/internal/engine"
	"firestige.xyz/scanguard/internal/intercept"
	"firestige.xyz/scanguard/internal/log"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.pcap>[=scan|benign]...",
	Short: "Classify the packets of capture files",
	Long: `Classify every packet of pcap or pcapng captures offline with the
configured signature table and print per-rule totals. Nothing is dropped;
this is useful to evaluate the table against recorded scan traffic.

Suffix every file with =scan or =benign to label its traffic. With labels
the report adds precision, recall, F1 and accuracy of the drop verdict
(scan is the positive class) and precision and recall per rule.

Examples:
  scanguard replay nmap-xmas.pcap
  scanguard replay -o yaml --log-drops capture.pcapng
  scanguard replay nmap-sF.pcap=scan office-day.pcap=benign`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := parseReplayArgs(args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runReplay(cmd.Context(), cfg, inputs, replayOpts, cmd.OutOrStdout())
	},
}

type replayOptions struct {
	workers  int
	format   string
	logDrops bool
}

var replayOpts replayOptions

func init() {
	replayCmd.Flags().IntVarP(&replayOpts.workers, "workers", "w", 0, "classification goroutines (resources.workers if 0)")
	replayCmd.Flags().StringVarP(&replayOpts.format, "format", "o", formatTable, "output format: table, yaml or json")
	replayCmd.Flags().BoolVar(&replayOpts.logDrops, "log-drops", false, "log every dropped packet")
}

type replayInput struct {
	path  string
	label engine.Label // empty when unlabelled
}

// parseReplayArgs splits "path=label" arguments. Either every file carries a
// label or none does.
func parseReplayArgs(args []string) ([]replayInput, error) {
	inputs := make([]replayInput, 0, len(args))
	labelled := 0
	for _, arg := range args {
		in := replayInput{path: arg}
		if i := strings.LastIndex(arg, "="); i > 0 {
			if l, err := engine.ParseLabel(arg[i+1:]); err == nil {
				in = replayInput{path: arg[:i], label: l}
				labelled++
			}
		}
		inputs = append(inputs, in)
	}
	if labelled != 0 && labelled != len(inputs) {
		return nil, fmt.Errorf("either label every capture (file=scan|benign) or none")
	}
	return inputs, nil
}

// RuleTotal is the number of packets one rule matched.
type RuleTotal struct {
	Rule    string `json:"rule" yaml:"rule"`
	Matches uint64 `json:"matches" yaml:"matches"`
}

// FileReport summarizes one replayed capture.
type FileReport struct {
	File     string `json:"file" yaml:"file"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Packets  int    `json:"packets" yaml:"packets"`
	Accepted uint64 `json:"accepted" yaml:"accepted"`
	Dropped  uint64 `json:"dropped" yaml:"dropped"`
}

// ReplayReport summarizes all replayed captures.
type ReplayReport struct {
	Files         []FileReport       `json:"files" yaml:"files"`
	Packets       int                `json:"packets" yaml:"packets"`
	Accepted      uint64             `json:"accepted" yaml:"accepted"`
	Dropped       uint64             `json:"dropped" yaml:"dropped"`
	Rules         []RuleTotal        `json:"rules" yaml:"rules"`
	Reasons       map[string]uint64  `json:"reasons" yaml:"reasons"`
	ExtractErrors map[string]uint64  `json:"extract_errors" yaml:"extract_errors"`
	Evaluation    *engine.Evaluation `json:"evaluation,omitempty" yaml:"evaluation,omitempty"`
}

func runReplay(ctx context.Context, cfg *config.GlobalConfig, inputs []replayInput, opts replayOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	table, err := classifier.NewTable(cfg.Classifier.Windows())
	if err != nil {
		return err
	}

	workers := opts.workers
	if workers <= 0 {
		workers = cfg.Resources.Workers
	}

	var (
		report            ReplayReport
		total, scan, safe engine.Stats
	)
	for _, in := range inputs {
		var reporters []engine.Reporter
		if opts.logDrops {
			reporters = append(reporters, engine.NewLogReporter(log.GetLogger().WithField("file", in.path), true, math.Inf(1), 1))
		}
		// one engine per file keeps the stats of each label apart
		e := engine.New(classifier.New(table), reporters...)

		src := intercept.NewReplaySource(in.path, workers, cfg.Resources.ChannelCapacity)
		n, err := src.Run(ctx, e.Verdict)
		if err != nil {
			return fmt.Errorf("replay %s: %w", in.path, err)
		}

		s := e.Stats()
		report.Files = append(report.Files, FileReport{
			File:     in.path,
			Label:    string(in.label),
			Packets:  n,
			Accepted: s.Accepted,
			Dropped:  s.Dropped,
		})
		report.Packets += n
		total = total.Merge(s)
		switch in.label {
		case engine.LabelScan:
			scan = scan.Merge(s)
		case engine.LabelBenign:
			safe = safe.Merge(s)
		}
	}

	report.Accepted = total.Accepted
	report.Dropped = total.Dropped
	report.Reasons = total.Reasons
	report.ExtractErrors = total.ExtractErrors
	for _, name := range table.RuleNames() {
		report.Rules = append(report.Rules, RuleTotal{Rule: name, Matches: total.RuleMatches[name]})
	}
	if inputs[0].label != "" {
		ev := engine.Evaluate(table.RuleNames(), scan, safe)
		report.Evaluation = &ev
	}

	return render(out, opts.format, report, func(w *tabwriter.Writer) {
		writeReplayTable(w, &report)
	})
}

func writeReplayTable(w io.Writer, r *ReplayReport) {
	fmt.Fprintln(w, "FILE\tLABEL\tPACKETS\tACCEPTED\tDROPPED")
	for _, f := range r.Files {
		label := f.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", f.File, label, f.Packets, f.Accepted, f.Dropped)
	}
	fmt.Fprintf(w, "total\t\t%d\t%d\t%d\n", r.Packets, r.Accepted, r.Dropped)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "RULE\tMATCHES")
	for _, rt := range r.Rules {
		fmt.Fprintf(w, "%s\t%d\n", rt.Rule, rt.Matches)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "REASON\tPACKETS")
	for _, k := range sortedKeys(r.Reasons) {
		fmt.Fprintf(w, "%s\t%d\n", k, r.Reasons[k])
	}

	ev := r.Evaluation
	if ev == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "\tPREDICTED DROP\tPREDICTED ACCEPT")
	fmt.Fprintf(w, "scan\t%d\t%d\n", ev.TruePositives, ev.FalseNegatives)
	fmt.Fprintf(w, "benign\t%d\t%d\n", ev.FalsePositives, ev.TrueNegatives)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "precision:\t%.4f\n", ev.Precision)
	fmt.Fprintf(w, "recall:\t%.4f\n", ev.Recall)
	fmt.Fprintf(w, "f1:\t%.4f\n", ev.F1)
	fmt.Fprintf(w, "accuracy:\t%.4f\n", ev.Accuracy)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "RULE\tSCAN\tBENIGN\tPRECISION\tRECALL")
	for _, rs := range ev.Rules {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\t%.4f\n", rs.Rule, rs.ScanMatches, rs.BenignMatches, rs.Precision, rs.Recall)
	}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
