package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantregime/qrse/internal/config"
)

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	log.Info().
		Int("instruments", len(cfg.Instruments)).
		Int("venues", len(cfg.Venues)).
		Int("hmm_K", cfg.HMM.K).
		Msg("qrse: configuration valid")
	fmt.Println("OK")
	return nil
}
