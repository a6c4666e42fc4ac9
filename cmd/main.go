package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"batchocr/internal/api"
	"batchocr/internal/config"
	fileutil "batchocr/internal/file"
	"batchocr/internal/job"
	"batchocr/internal/orchestrator"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	progressInterval  = time.Second
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	headless := flag.Bool("headless", false, "process the configured sources once and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("ensure data dir")
	}

	manager := buildManager(cfg)

	if *headless {
		os.Exit(runHeadless(manager))
	}
	serve(cfg, manager)
}

func buildManager(cfg config.Config) *orchestrator.Manager {
	m := orchestrator.NewManager(cfg)
	if err := m.LoadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("loading run history failed")
	}
	return m
}

func serve(cfg config.Config, manager *orchestrator.Manager) {
	gin.SetMode(gin.ReleaseMode)
	router := setupRouter()
	wireAPI(router, manager)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	manager.SetBaseContext(baseCtx)

	srv := newHTTPServer(cfg, router)
	go func() {
		log.Info().Str("addr", srv.Addr).Int("workers", cfg.Workers()).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, manager, cfg.StopGracePeriod+shutdownTimeout)
}

func setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func wireAPI(router *gin.Engine, m *orchestrator.Manager) {
	apiHandler := api.NewAPI(m)
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
}

// newHTTPServer wraps the router with CORS when external front-ends are
// allowed to call the API.
func newHTTPServer(cfg config.Config, router *gin.Engine) *http.Server {
	var handler http.Handler = router
	if len(cfg.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		}).Handler(router)
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, m *orchestrator.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	m.StopAll()
	if !m.WaitAll(ctx) {
		log.Warn().Msg("runs did not finish before timeout, terminating")
		cancelBase()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer waitCancel()
		_ = m.WaitAll(waitCtx)
	}
	cancelBase()
	log.Info().Msg("server exited cleanly")
}

// runHeadless discovers the configured sources, runs them to a terminal
// state and prints progress once per second. Interrupts request a stop.
func runHeadless(m *orchestrator.Manager) int {
	batch, err := m.DiscoverFromConfig()
	if err != nil {
		log.Error().Err(err).Msg("discovery failed")
		return 1
	}
	run, err := m.Start(batch.ID)
	if err != nil {
		log.Error().Err(err).Msg("start failed")
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		_ = m.Wait(context.Background(), run.ID)
		close(done)
	}()

	for {
		select {
		case <-done:
			snap, _ := m.Snapshot(run.ID)
			fmt.Println(api.ProgressLabel(snap, time.Now()))
			log.Info().Str("run_id", run.ID).Str("state", string(snap.State)).
				Int("succeeded", snap.Succeeded).Int("failed", snap.Failed).Msg("run finished")
			_ = m.WaitAll(context.Background())
			if snap.State != job.StateCompleted || snap.Failed > 0 {
				return 2
			}
			return 0
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Str("run_id", run.ID).Msg("stopping run")
			if err := m.Stop(run.ID); err != nil && !errors.Is(err, orchestrator.ErrRunNotActive) {
				log.Warn().Err(err).Msg("stop failed")
			}
		case <-ticker.C:
			if snap, err := m.Snapshot(run.ID); err == nil {
				fmt.Println(api.ProgressLabel(snap, time.Now()))
			}
		}
	}
}
