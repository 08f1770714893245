package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/logging"
	"github.com/rcookie777/pizza-api/pkg/server"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 30 * time.Second
	hubStopTimeout     = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogJSON); err != nil {
		return err
	}
	log := logging.Component("main")

	log.WithFields(logrus.Fields{
		"version": server.Version,
		"backend": cfg.StoreBackend,
		"port":    cfg.Port,
	}).Info("starting pizza index server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := server.OpenBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.StoreBackend, err)
	}

	cat, err := server.LoadCatalog(cfg)
	if err != nil {
		_ = backend.Store.Close()
		return err
	}
	log.WithField("restaurants", cat.Len()).Info("catalog loaded")

	srv := server.New(cfg, backend, cat)
	defer func() {
		if err := srv.Close(); err != nil {
			log.WithError(err).Warn("failed to close storage")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.RunHub(ctx)
	}()

	tasks, err := srv.NewTasks(ctx)
	if err != nil {
		return err
	}
	tasks.Start()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("server ready to accept requests")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	// Background work stops before the listener so no job races Close
	cancel()
	tasks.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(hubStopTimeout):
		log.Warn("websocket hub did not stop in time")
	}

	log.Info("server exited")
	return runErr
}
