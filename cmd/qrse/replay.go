package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantregime/qrse/internal/config"
	"github.com/quantregime/qrse/internal/orchestrator"
)

func runReplay(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logPath, _ := cmd.Flags().GetString("log")
	speed, _ := cmd.Flags().GetFloat64("speed")
	sinkFlag, _ := cmd.Flags().GetString("sink")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Every instrument replays from the same log; the replay Supervisor
	// stops once the log is exhausted, but a Pipeline's other stage
	// goroutines keep running, so --timeout is what actually ends the
	// process rather than the log running out.
	cfg.Venues = []config.Venue{{Name: "replay", Endpoint: logPath, ReplaySpeed: speed}}

	sink, closeSink, err := openSink(sinkFlag)
	if err != nil {
		return err
	}
	defer closeSink()

	o := orchestrator.New(cfg, sink, nil)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(signalCtx, timeout)
	defer cancel()

	log.Info().Str("log", logPath).Float64("speed", speed).Dur("timeout", timeout).
		Msg("qrse: starting replay")
	o.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("qrse: replay window elapsed or interrupted, draining pipelines")
	o.Stop()
	return nil
}
