// Package main implements tracefilter, a CLI that compacts a stack trace the
// same way the analysis service does before sending it to a model.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"traceback-analyser/internal/config"
	"traceback-analyser/internal/observability/metrics"
	"traceback-analyser/internal/tracefilter"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tracefilter",
		Short:         "Compact repetitive stack traces",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newCompactCmd())
	return root
}

type compactOptions struct {
	variant    string
	threshold  float64
	maxSimilar int
	passes     int
	extract    bool
	configPath string
	stats      bool
}

func newCompactCmd() *cobra.Command {
	opts := compactOptions{}
	defaults := tracefilter.DefaultPolicy()

	cmd := &cobra.Command{
		Use:   "compact [file]",
		Short: "Remove runs of similar lines from a stack trace",
		Long: `Compact reads a stack trace from a file, or stdin when no file is given,
and prints it with runs of similar frames shortened.

Examples:
  # Compact a Java trace
  tracefilter compact --variant java crash.log

  # Strip a shared log prefix first and print line counts
  kubectl logs pod/api | tracefilter compact --extract --stats

  # Use a policy file, overriding one field
  tracefilter compact --config policy.yaml --passes 3 trace.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.variant, "variant", "generic", "trace language: java, python or generic")
	f.Float64Var(&opts.threshold, "threshold", defaults.SimilarityThreshold, "similarity ratio in [0,1] above which lines are alike")
	f.IntVar(&opts.maxSimilar, "max-similar", defaults.MaxSimilarLines, "similar lines kept per run")
	f.IntVar(&opts.passes, "passes", defaults.Passes, "number of compaction passes")
	f.BoolVar(&opts.extract, "extract", false, "strip the log prefix shared by every line first")
	f.StringVar(&opts.configPath, "config", "", "YAML policy file")
	f.BoolVar(&opts.stats, "stats", false, "print line counts to stderr")
	return cmd
}

func runCompact(cmd *cobra.Command, args []string, opts compactOptions) error {
	variant, err := parseVariantFlag(opts.variant)
	if err != nil {
		return err
	}
	policy, err := resolvePolicy(cmd, opts)
	if err != nil {
		return err
	}

	input, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if opts.extract {
		input = tracefilter.ExtractStacktrace(input)
	}

	out, stats := tracefilter.FilterWithStats(input, variant, policy)
	if out != "" {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	}
	if opts.stats {
		printStats(cmd.ErrOrStderr(), variant, stats)
	}
	return nil
}

// parseVariantFlag is stricter than tracefilter.ParseVariant: a typo on the
// command line is an error, not a silent fallback to generic.
func parseVariantFlag(s string) (tracefilter.Variant, error) {
	v := tracefilter.ParseVariant(s)
	if v.String() != strings.ToLower(strings.TrimSpace(s)) {
		return 0, fmt.Errorf("unknown variant %q (want java, python or generic)", s)
	}
	return v, nil
}

// resolvePolicy layers defaults, the policy file and explicitly set flags.
func resolvePolicy(cmd *cobra.Command, opts compactOptions) (tracefilter.Policy, error) {
	policy := tracefilter.DefaultPolicy()
	if opts.configPath != "" {
		p, err := config.LoadPolicyFile(opts.configPath, policy)
		if err != nil {
			return tracefilter.Policy{}, err
		}
		policy = p
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		policy.SimilarityThreshold = opts.threshold
	}
	if flags.Changed("max-similar") {
		policy.MaxSimilarLines = opts.maxSimilar
	}
	if flags.Changed("passes") {
		policy.Passes = opts.passes
	}
	if err := policy.Validate(); err != nil {
		return tracefilter.Policy{}, err
	}
	return policy, nil
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	// #nosec G304 -- the user names the file to read
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read trace: %w", err)
	}
	return string(data), nil
}

func printStats(w io.Writer, v tracefilter.Variant, s tracefilter.Stats) {
	_, _ = fmt.Fprintf(w, "variant: %s\n", v)
	_, _ = fmt.Fprintf(w, "input lines: %d\n", s.InputLines)
	for i, n := range s.PassLines {
		_, _ = fmt.Fprintf(w, "after pass %d: %d\n", i+1, n)
	}
	_, _ = fmt.Fprintf(w, "output lines: %d\n", s.OutputLines)
	_, _ = fmt.Fprintf(w, "reduction: %.1f%%\n", 100*metrics.ReductionRatio(s.InputLines, s.OutputLines))
}
