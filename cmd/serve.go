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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NgigiN/stkpush/internal/api"
	"github.com/NgigiN/stkpush/internal/retention"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the STK push HTTP API and the daily retention sweep",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	sweeper := retention.NewSweeper(a.db, a.cfg.RetentionHorizon, a.log)
	scheduler, err := sweeper.Schedule(a.cfg.RetentionSchedule)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	if a.bot != nil {
		if err := a.bot.Start(); err != nil {
			return fmt.Errorf("failed to start bot: %w", err)
		}
		defer a.bot.Stop()
	}

	server := api.NewServer(a.service, api.Options{
		CORSOrigins:   a.cfg.CORSOrigins,
		DefaultAmount: a.cfg.DefaultAmount,
	}, a.log)
	httpServer := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server is running", zap.String("addr", a.cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-sc:
	}

	// In-flight pushes may still be polling; give them their full window.
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.MaxWorkflowDuration()+10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		a.log.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	a.log.Info("server stopped")
	return nil
}
