package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restaurant-backend/internal/app"
	"restaurant-backend/internal/config"
	"restaurant-backend/internal/database"
	"restaurant-backend/pkg/logger"
	"restaurant-backend/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootCmd = &cobra.Command{
		Use:   "api",
		Short: "Restaurant management backend",
		Long:  `Serves the restaurant, order, invoicing and payment API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Sync permissions, seed default roles and the configured superuser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *app.Container, log *zap.Logger) error {
				if err := c.Bootstrap(ctx); err != nil {
					return err
				}
				log.Info("seed completed")
				return nil
			})
		},
	}

	backfillCmd = &cobra.Command{
		Use:   "backfill-tables",
		Short: "Mark tables without a status as available",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *app.Container, log *zap.Logger) error {
				n, err := c.Tables.BackfillStatuses(ctx)
				if err != nil {
					return err
				}
				log.Info("table statuses backfilled", zap.Int64("updated", n))
				return nil
			})
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd, seedCmd, backfillCmd)
}

// withContainer loads config, opens the database and hands a wired container to fn.
func withContainer(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, c *app.Container, log *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Error("database connection failed", zap.Error(err))
		return err
	}
	log.Info("connected to database", zap.String("driver", cfg.Database.Driver))

	return fn(ctx, cfg, app.New(db, cfg, log, metrics.New(cfg.Metrics)), log)
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withContainer(ctx, func(ctx context.Context, cfg *config.Config, c *app.Container, log *zap.Logger) error {
		if err := c.Bootstrap(ctx); err != nil {
			return err
		}
		go c.Hub.Run(ctx)

		if cfg.ReleaseMode {
			gin.SetMode(gin.ReleaseMode)
		}

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           c.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
