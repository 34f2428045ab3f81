/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookstore-api/apiserver/config"
	"github.com/bookstore-api/apiserver/internal/logging"
	"github.com/bookstore-api/apiserver/internal/mq"
	"github.com/bookstore-api/apiserver/internal/services"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes catalog events",
	Long: `Subscribes to the catalog events channel and logs every event. Usage:

	MQ_BACKEND=rabbitmq bookstore worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.LogLevel, cfg.IsDevelopment())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.New(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not set")
		}
		defer broker.Close()

		logger.Info("worker subscribed", "channel", cfg.MQ.EventsChannel, "backend", cfg.MQ.Backend)
		err = broker.Subscribe(ctx, cfg.MQ.EventsChannel, logCatalogEvent(logger))
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscription ended: %w", err)
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// logCatalogEvent acknowledges malformed payloads after logging them so they
// are not redelivered forever.
func logCatalogEvent(logger *slog.Logger) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var event services.CatalogEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("discarding malformed catalog event", "message_id", msg.ID, "error", err)
			return nil
		}
		logger.Info("catalog event",
			"message_id", msg.ID,
			"type", event.Type,
			"id", event.ID,
			"occurred_at", event.OccurredAt,
		)
		return nil
	}
}
