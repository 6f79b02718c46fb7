package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mohammad-safakhou/postshot/config"
	"github.com/mohammad-safakhou/postshot/internal/bot"
	"github.com/mohammad-safakhou/postshot/internal/runtime"
	"github.com/spf13/cobra"
)

func botCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot that replies to forwarded channel posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Telegram.Validate(); err != nil {
				return err
			}

			ctx, stop := runtime.SignalContext(cmd.Context(), "BOT")
			defer stop()

			tele, flush, err := startTelemetry(ctx, cfg, "postshot-bot")
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			defer flush()

			svc, err := runtime.NewCaptureService(cfg, tele)
			if err != nil {
				return err
			}
			store, closer, err := runtime.NewDedupStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
			if err != nil {
				return fmt.Errorf("telegram login: %w", err)
			}
			api.Debug = cfg.General.Debug

			logger := log.New(log.Writer(), "[BOT] ", log.LstdFlags)
			logger.Printf("authorized as @%s", api.Self.UserName)

			d := bot.NewDispatcher(api, svc, store, logger)
			err = d.Run(ctx, bot.Updates(ctx, api, cfg.Telegram.PollTimeout), cfg.Telegram.MaxConcurrency)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
