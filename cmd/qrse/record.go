package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quantregime/qrse/internal/config"
	"github.com/quantregime/qrse/internal/orchestrator"
	"github.com/quantregime/qrse/internal/replay"
	"github.com/quantregime/qrse/internal/tick"
)

// runRecord dials the configured venues for one instrument and writes every
// received tick to a replay log, for later use with `qrse replay`.
func runRecord(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	instrument, _ := cmd.Flags().GetString("instrument")
	outPath, _ := cmd.Flags().GetString("out")
	duration, _ := cmd.Flags().GetDuration("duration")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	w, f, err := replay.CreateLog(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	sources := orchestrator.BuildVenueSources(instrument, cfg.Venues)
	raw := make(chan tick.Tick, cfg.Limits.IngestQueueCap)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(signalCtx, duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sources {
		sup := s
		g.Go(func() error {
			sup.Run(gctx, raw)
			return nil
		})
	}

	count := 0
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case t := <-raw:
				if err := w.Write(t); err != nil {
					return err
				}
				count++
			}
		}
	})

	log.Info().Str("instrument", instrument).Str("out", outPath).Dur("duration", duration).
		Msg("qrse: recording live ticks")
	_ = g.Wait()
	log.Info().Int("ticks", count).Str("out", outPath).Msg("qrse: recording finished")
	return nil
}
