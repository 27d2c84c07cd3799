/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/orderdesk/apiserver/config"
	"github.com/orderdesk/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect order lifecycle events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log order events from the configured broker until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		publisher, err := mq.FromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if publisher == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer publisher.Close()

		logger.Info("tailing order events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		err = publisher.SubscribeOrderEvents(ctx, func(ctx context.Context, event mq.OrderEvent) error {
			logger.Info("order event",
				"type", event.Type,
				"order_id", event.Order.ID,
				"user_id", event.Order.UserID,
				"actor_id", event.ActorID,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
