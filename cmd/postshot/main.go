package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/mohammad-safakhou/postshot/config"
	"github.com/mohammad-safakhou/postshot/internal/runtime"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "postshot",
		Short:         "Capture screenshots of public Telegram channel posts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.*)")

	root.AddCommand(botCMD(&cfgPath), serveCMD(&cfgPath), captureCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		log.Printf("postshot: %v", err)
		os.Exit(1)
	}
}

// startTelemetry loads telemetry for a long-running command. The returned
// func flushes providers.
func startTelemetry(ctx context.Context, cfg *config.Config, service string) (*runtime.Telemetry, func(), error) {
	tele, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{
		ServiceName:    service,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, nil, err
	}
	return tele, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tele.Shutdown(ctx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}, nil
}
