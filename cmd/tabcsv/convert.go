package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/oleg578/tabcsv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type convertOptions struct {
	configPath   string
	output       string
	mode         string
	headerLength int
	noWarnings   bool
	noColor      bool
	verbose      bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tabcsv",
		Short:         "Write drifting key/value records as CSV",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newConvertCmd())
	return root
}

func newConvertCmd() *cobra.Command {
	opts := &convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert [input.jsonl|-]",
		Short: "Convert JSON objects (one record each) into a CSV file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(tabcsv.NewConsoleHandler(cmd.ErrOrStderr(), &tabcsv.ConsoleOptions{
				Level:   level,
				NoColor: cfg.NoColor,
			}))
			return convert(in, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output CSV path")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "none", "Reconciliation mode: none, copy-on-close, fixed-header-length")
	cmd.Flags().IntVar(&opts.headerLength, "header-length", tabcsv.DefaultHeaderLength, "Header budget in bytes for fixed-header-length mode")
	cmd.Flags().BoolVar(&opts.noWarnings, "no-warnings", false, "Suppress inconsistent-key warnings")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Write warnings without colors")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

// config loads the config file, if any, and applies the flags the user set.
func (o *convertOptions) config(cmd *cobra.Command) (tabcsv.Config, error) {
	cfg := tabcsv.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = tabcsv.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Path = o.output
	}
	if flags.Changed("mode") {
		mode, err := tabcsv.ParseMode(o.mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if flags.Changed("header-length") {
		cfg.HeaderLength = o.headerLength
	}
	if flags.Changed("no-warnings") {
		cfg.DisableWarnings = o.noWarnings
	}
	if flags.Changed("no-color") {
		cfg.NoColor = o.noColor
	}
	if cfg.Path == "" {
		return cfg, fmt.Errorf("%w: --output or config path is required", tabcsv.ErrInvalidConfig)
	}
	return cfg, cfg.Validate()
}

// convert writes every JSON object read from in as one record.
func convert(in io.Reader, cfg tabcsv.Config, logger *slog.Logger) (err error) {
	reg := prometheus.NewRegistry()
	metrics, err := tabcsv.NewMetrics(reg, "tabcsv")
	if err != nil {
		return err
	}

	out, err := tabcsv.Create(cfg.Path, cfg, tabcsv.WithLogger(logger), tabcsv.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
		logStats(logger, reg)
	}()

	dec := json.NewDecoder(in)
	dec.UseNumber()
	tab := tabcsv.NewTabular()

	for n := 1; ; n++ {
		tab.Clear()
		if err := decodeObject(dec, tab); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("record %d: %w", n, err)
		}
		if err := out.Write(tab); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		if unmarked := tab.Unmarked(); len(unmarked) > 0 {
			logger.Debug("Fields not written",
				"record", n,
				"fields", unmarked)
		}
	}
}

// decodeObject records the members of the next JSON object on tab in
// document order. Nested values are recorded too; Tabular leaves them out
// of the row because they are not scalars.
func decodeObject(dec *json.Decoder, tab *tabcsv.Tabular) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		tab.Record(key, value)
	}
	_, err = dec.Token()
	return err
}

func logStats(logger *slog.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn("Failed to gather metrics", "error", err)
		return
	}
	attrs := make([]any, 0, 2*len(families))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, mf.GetName(), m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				attrs = append(attrs, mf.GetName(), m.GetGauge().GetValue())
			}
		}
	}
	logger.Info("Conversion finished", attrs...)
}
