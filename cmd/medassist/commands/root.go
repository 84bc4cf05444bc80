package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "medassist",
	Short: "Two-stage medical inference pipeline",
	Long: `medassist - a two-stage medical inference pipeline.

A request with an attached medical image first runs an imaging-analysis
stage on a vision-capable model; the resulting report and the user's
question are then synthesized by a text model into a plain-language
answer. Requests without an image go straight to the synthesis stage.

Examples:
  medassist serve --config medassist.yaml
  medassist ask "What does a normal chest x-ray look like?"
  medassist ask --image scan.jpg "Any abnormalities?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
