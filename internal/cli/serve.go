package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvcoi/freeytzone/internal/app"
	"github.com/lvcoi/freeytzone/internal/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	logger, err := logging.Setup(fs, cfg.Logs)
	if err != nil {
		return err
	}
	defer logger.Close()

	if cfg.ConfigFile != "" {
		logger.WithField("path", cfg.ConfigFile).Info("loaded config file")
	}
	if cfg.Demo {
		logger.Warn("demo mode: metadata is fixed and downloads show a placeholder page")
	}

	a, err := app.New(cfg, logger.Logger, fs)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.Server(logger.Path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("server stopped")
		return nil
	}
	return err
}
