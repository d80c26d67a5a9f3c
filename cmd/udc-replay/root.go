package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ardnew/softudc/device/udc/replay"
	"github.com/ardnew/softudc/pkg"
)

var (
	logLevel   string
	logFormat  string
	logFile    string
	logMaxSize int

	useBuiltin        bool
	forceTxCompletion bool

	rootCmd = &cobra.Command{
		Use:          "udc-replay",
		Short:        "Replay USB bus scenarios against the device controller core",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return configureLogging(cmd.ErrOrStderr())
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [scenario.yaml ...]",
		Short: "Replay scenarios and print a report",
		Long: "Replay each scenario file (and, with --builtin, the scenarios compiled into " +
			"the binary) against a simulated peripheral. The exit status is nonzero if any " +
			"step does not behave as its scenario expects.",
		RunE: run,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the built-in scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := replay.Builtin()
			if err != nil {
				return err
			}
			for _, s := range scenarios {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", s.Name, strings.TrimSpace(s.Description))
			}
			return nil
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "warn", "minimum log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	pf.StringVar(&logFile, "log-file", "", "write logs to this file, rotated by size, instead of stderr")
	pf.IntVar(&logMaxSize, "log-max-size", 10, "megabytes before the log file is rotated")

	runCmd.Flags().BoolVar(&useBuiltin, "builtin", false, "also replay the built-in scenarios")
	runCmd.Flags().BoolVar(&forceTxCompletion, "check-tx-completion", false,
		"report IN completions in every scenario instead of trapping them")

	rootCmd.AddCommand(runCmd, listCmd)
}

func configureLogging(stderr io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	pkg.SetLogLevel(level)

	var format pkg.LogFormat
	switch logFormat {
	case "text":
		format = pkg.LogFormatText
	case "json":
		format = pkg.LogFormatJSON
	default:
		return fmt.Errorf("--log-format: unknown format %q", logFormat)
	}

	w := stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSize,
			MaxBackups: 3,
		}
	}
	pkg.SetLogFormat(format, w)
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	var scenarios []*replay.Scenario
	if useBuiltin {
		builtin, err := replay.Builtin()
		if err != nil {
			return err
		}
		scenarios = append(scenarios, builtin...)
	}
	for _, name := range args {
		s, err := replay.LoadFile(name)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, s)
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios: pass files or --builtin")
	}

	runner := &replay.Runner{ForceTxCompletion: forceTxCompletion}
	results := make([]*replay.Result, 0, len(scenarios))
	for _, s := range scenarios {
		res, err := runner.Run(cmd.Context(), s)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if err := replay.Render(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	for _, res := range results {
		if err := res.Err(); err != nil {
			return err
		}
	}
	return nil
}
