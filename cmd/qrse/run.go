package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantregime/qrse/internal/checkpoint"
	"github.com/quantregime/qrse/internal/config"
	"github.com/quantregime/qrse/internal/dispatch"
	"github.com/quantregime/qrse/internal/orchestrator"
)

func runEngine(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	checkpointDir, _ := cmd.Flags().GetString("checkpoint-dir")
	checkpointRedisAddr, _ := cmd.Flags().GetString("checkpoint-redis-addr")
	sinkFlag, _ := cmd.Flags().GetString("sink")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	sink, closeSink, err := openSink(sinkFlag)
	if err != nil {
		return err
	}
	defer closeSink()

	o := orchestrator.New(cfg, sink, checkpoint.NewAuto(checkpointDir, checkpointRedisAddr))

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", o.Metrics().Handler())
		metricsServer = &http.Server{
			Addr:         metricsAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", metricsAddr).Msg("qrse: serving /metrics")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("qrse: metrics server failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Strs("instruments", cfg.Instruments).Msg("qrse: starting engine")
	o.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("qrse: shutdown signal received, draining pipelines")
	o.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}

// openSink resolves the --sink flag to a dispatch.Sink plus a cleanup func.
// "stdout" is the reference transport; any other value is treated as a
// file path (spec.md §6).
func openSink(flag string) (dispatch.Sink, func(), error) {
	if flag == "stdout" || flag == "" {
		return dispatch.StdoutSink(), func() {}, nil
	}
	sink, f, err := dispatch.FileSink(flag)
	if err != nil {
		return nil, nil, err
	}
	return sink, func() { _ = f.Close() }, nil
}
