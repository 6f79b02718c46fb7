package main

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/postshot/config"
	"github.com/mohammad-safakhou/postshot/internal/runtime"
	srv "github.com/mohammad-safakhou/postshot/internal/server"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP capture API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}

			ctx, stop := runtime.SignalContext(cmd.Context(), "HTTP")
			defer stop()

			tele, flush, err := startTelemetry(ctx, cfg, "postshot-api")
			if err != nil {
				return err
			}
			defer flush()

			svc, err := runtime.NewCaptureService(cfg, tele)
			if err != nil {
				return err
			}

			s := srv.New(svc, srv.Options{Address: cfg.Server.Address, Metrics: tele.Handler()})
			errc := make(chan error, 1)
			go func() { errc <- s.Start() }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Capture.Timeout+5*time.Second)
			defer cancel()
			return s.Shutdown(shutdownCtx)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	return serve
}
