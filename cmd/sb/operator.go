package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/notify/discord"
	"github.com/zulandar/switchboard/internal/notify/slack"
	"github.com/zulandar/switchboard/internal/operator"
	"gorm.io/gorm"
)

func newOperatorCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Run the coordinator",
		Long:  "Starts the operator: accepts station registrations, routes tool calls to bound stations, sweeps silent stations offline, and serves the dashboard.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Switchboard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func runOperator(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Operator.Port = port
	}

	gormDB, err := openStore(cfg)
	if err != nil {
		return err
	}

	senders, err := buildSenders(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	op := operator.New(operator.Opts{
		Config:         cfg.Operator,
		DB:             gormDB,
		Notifier:       notify.New(senders...),
		DigestSchedule: cfg.Digest.Schedule,
		Retention:      cfg.Retention,
		Out:            cmd.OutOrStdout(),
	})
	return op.Start(ctx)
}

// openStore connects the call-record store, or returns nil when persistence
// is disabled.
func openStore(cfg *config.Config) (*gorm.DB, error) {
	if !cfg.PersistenceEnabled() {
		return nil, nil
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect call store: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

// buildSenders wires the notification senders that have credentials
// configured. No credentials means no senders.
func buildSenders(cfg *config.Config) ([]notify.Sender, error) {
	var senders []notify.Sender
	if cfg.Notify.Slack.Token != "" {
		s, err := slack.New(slack.Opts{
			Token:     cfg.Notify.Slack.Token,
			ChannelID: cfg.Notify.Slack.Channel,
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, s)
	}
	if cfg.Notify.Discord.Token != "" {
		d, err := discord.New(discord.Opts{
			Token:     cfg.Notify.Discord.Token,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, d)
	}
	return senders, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
