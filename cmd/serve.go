package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/logger"
	"github.com/spigell/radar-pilot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host pipelines behind an HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")

	viper.BindPFlag("serve.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the radar-pilot server", zap.String("version", version))

	d, err := newDeps(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing dependencies", zap.Error(err))
	}

	if _, err := d.thresholds.Refresh(ctx); err != nil {
		logger.Warn("using configured thresholds", zap.Error(err))
	}

	srv := server.New(ctx, logger.Named("server"), d.newController, d.thresholds)
	srv.SetRetention(config.Serve.Retention)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(config.Serve.Listen)
	}()

	select {
	case err := <-errCh:
		logger.Fatal("serving", zap.Error(err))
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		logger.Error("shutting down", zap.Error(err))
	}
}
