/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/field-notes/apiserver/config"
	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// relayCmd consumes queued send-to-chat jobs.
var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Consume queued notes and post them to the chat webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New("relay")

		cfg, err := config.LoadConfig()
		if err != nil {
			log.Error().Err(err).Msg("invalid configuration")
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		worker, err := server.NewWorker(ctx, cfg, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to start relay worker")
			return err
		}
		defer worker.Close()

		return worker.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
}
