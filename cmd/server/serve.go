package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quote-sentinel/internal/alerting"
	"quote-sentinel/internal/api/handler"
	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/coordinator"
	"quote-sentinel/internal/infrastructure/mailer"
	"quote-sentinel/internal/logging"
	"quote-sentinel/internal/scheduler"
	"quote-sentinel/internal/worker"

	"github.com/gin-gonic/gin"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if a.bus != nil {
		consumer := coordinator.NewCoordinator(a.bus, a.tracker, logging.WithModule(logger, "coordinator"))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("step-event consumer stopped", zap.Error(err))
			}
		}()
	}

	var followUps *worker.Worker
	if url := cmd.String("mailer-url"); url != "" && a.queue != nil {
		followUps = worker.NewWorker(worker.Options{
			Queue:    a.queue,
			Sender:   mailer.NewClient(url, 10*time.Second),
			Breakers: a.breakers,
			Retry:    a.cfg.Breakers.Retry,
			Pause:    a.cfg.Breakers.Services[circuitbreaker.ServiceGmail].CoolDown,
			Clock:    a.clock,
			Logger:   logging.WithModule(logger, "follow_up_worker"),
		})
		followUps.StartPool(ctx, cmd.Int("follow-up-workers"))
	}

	sweeps, err := scheduler.New(a.dispatcher, a.cfg.Schedules, time.Minute, logging.WithModule(logger, "scheduler"))
	if err != nil {
		return err
	}
	sweeps.Start()

	if cmd.String("log-level") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(
		handler.NewWorkflowHandler(a.tracker, a.dispatcher, a.recovery),
		handler.NewOpsHandler(a.dispatcher, a.health, a.breakers, cmd.Duration("summary-window")),
		logging.WithModule(logger, "api"),
	)
	srv := &http.Server{
		Addr:              cmd.String("listen"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := sweeps.Stop(shutdownCtx); err != nil {
		logger.Warn("sweeps still running at shutdown", zap.Error(err))
	}
	if followUps != nil {
		followUps.Wait()
	}
	return nil
}

func runSweep(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return cli.Exit("sweep name required: stuck, supplier-response, acceptance, failure-rate or all", 2)
	}

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var out any
	if name == "all" {
		out = a.dispatcher.RunAll(ctx)
	} else {
		result, err := a.dispatcher.Sweep(ctx, name)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		out = result
	}

	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to print sweep result: %w", err)
	}
	return sweepFailure(out)
}

// sweepFailure turns errors reported inside sweep results into a non-zero exit.
func sweepFailure(out any) error {
	var results []alerting.SweepResult
	switch v := out.(type) {
	case alerting.SweepResult:
		results = []alerting.SweepResult{v}
	case []alerting.SweepResult:
		results = v
	}
	for _, r := range results {
		if r.Error != "" {
			return cli.Exit(fmt.Sprintf("sweep %s: %s", r.Sweep, r.Error), 1)
		}
	}
	return nil
}
