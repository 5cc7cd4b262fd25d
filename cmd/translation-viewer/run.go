package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voice-translation-viewer/internal/app"
)

var devIngest bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the room and serve the viewer until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application := app.New(loadConfig())
		application.Start()
		defer application.Shutdown()

		err := application.Run(ctx, app.Options{AllowIngest: devIngest})
		if err != nil && ctx.Err() == nil {
			application.Logger.Error().Err(err).Msg("Viewer stopped with error")
			return err
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&devIngest, "dev-ingest", false, "expose POST /v1/segments for feeding segments without an agent")
	rootCmd.AddCommand(runCmd)
}
