package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "qrse"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-venue regime-aware signal engine",
		Version: version,
		Long: `qrse ingests exchange tick data, tracks a time-varying hidden Markov
regime, runs an SPRT-based decision engine per hypothesis, sizes positions
with Kelly, and dispatches signals to a sink.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine against live venues",
		RunE:  runEngine,
	}
	runCmd.Flags().String("config", "", "path to the YAML configuration file (required)")
	runCmd.Flags().String("checkpoint-dir", "", "directory for HMM warm-restart checkpoints (disabled if empty and checkpoint-redis-addr is also empty)")
	runCmd.Flags().String("checkpoint-redis-addr", "", "Redis address for shared HMM warm-restart checkpoints; takes priority over checkpoint-dir when both are set")
	runCmd.Flags().String("sink", "stdout", "signal sink: stdout or a file path")
	runCmd.Flags().String("metrics-addr", "", "address to serve Prometheus /metrics on (disabled if empty)")
	_ = runCmd.MarkFlagRequired("config")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file without running",
		RunE:  runValidate,
	}
	validateCmd.Flags().String("config", "", "path to the YAML configuration file (required)")
	_ = validateCmd.MarkFlagRequired("config")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Run the engine against a recorded tick log instead of a live venue",
		Long: `replay drives every configured instrument from a recorded tick log
(see internal/replay) instead of dialing a live venue, for backtesting or
reproducing a past run's signal decisions.`,
		RunE: runReplay,
	}
	replayCmd.Flags().String("config", "", "path to the YAML configuration file (required)")
	replayCmd.Flags().String("log", "", "path to the recorded tick log (required)")
	replayCmd.Flags().Float64("speed", 0, "playback speed multiplier (1.0 = real-time, 0 = unpaced)")
	replayCmd.Flags().String("sink", "stdout", "signal sink: stdout or a file path")
	replayCmd.Flags().Duration("timeout", 10*time.Minute, "wall-clock bound on the replay run; the engine keeps its goroutines alive after the log is exhausted, so this is what ends the process")
	_ = replayCmd.MarkFlagRequired("config")
	_ = replayCmd.MarkFlagRequired("log")

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record one instrument's live venue ticks to a replay log",
		RunE:  runRecord,
	}
	recordCmd.Flags().String("config", "", "path to the YAML configuration file (required)")
	recordCmd.Flags().String("instrument", "", "instrument to record, e.g. BTC/USD (required)")
	recordCmd.Flags().String("out", "", "output log path (required)")
	recordCmd.Flags().Duration("duration", time.Hour, "how long to record before stopping")
	_ = recordCmd.MarkFlagRequired("config")
	_ = recordCmd.MarkFlagRequired("instrument")
	_ = recordCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(runCmd, validateCmd, replayCmd, recordCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("qrse: command failed")
		os.Exit(1)
	}
}
