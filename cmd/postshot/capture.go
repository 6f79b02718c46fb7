package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mohammad-safakhou/postshot/config"
	"github.com/mohammad-safakhou/postshot/internal/capture"
	"github.com/mohammad-safakhou/postshot/internal/runtime"
	"github.com/spf13/cobra"
)

func captureCMD(cfgPath *string) *cobra.Command {
	var out string
	var c = &cobra.Command{
		Use:   "capture <post-url>",
		Short: "Capture a single channel post and write the image to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := capture.ParseRequest(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := runtime.SignalContext(cmd.Context(), "CAPTURE")
			defer stop()

			svc, err := runtime.NewCaptureService(cfg, nil)
			if err != nil {
				return err
			}
			res := svc.Capture(ctx, req)
			if !res.OK() {
				if res.Failure != nil {
					return res.Failure
				}
				return fmt.Errorf("capture %s produced no image", req)
			}
			if out == "" {
				out = fmt.Sprintf("%s-%d%s", req.Channel(), req.MessageID(), res.Image.Format.Extension())
			}
			if err := os.WriteFile(out, res.Image.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%dx%d, %s)\n", res.Caption(), out, res.Image.Width, res.Image.Height, res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
	c.Flags().StringVarP(&out, "output", "o", "", "output file (default <channel>-<id>.<ext>)")
	return c
}
