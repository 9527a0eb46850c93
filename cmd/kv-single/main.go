package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/heysubinoy/pyazwatch/internal/api"
	"github.com/heysubinoy/pyazwatch/internal/store"
	"github.com/heysubinoy/pyazwatch/pkg/config"
	"github.com/heysubinoy/pyazwatch/pkg/log"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.New(log.Options{Level: log.LevelError}).Log(log.LevelError, "Failed to load config", log.Fields{"error": err.Error()})
		os.Exit(1)
	}

	logger := log.New(log.Options{Level: log.LevelTrace, Type: cfg.LoggerType()})
	log.SetGlobalLevel(cfg.Level())

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Log(log.LevelError, "Server stopped with error", log.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger *log.ZeroLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create the in-memory store
	memStore := store.NewMemStore(store.Options{Logger: logger.With("store")})
	defer memStore.Close()
	instrumentedStore := store.NewInstrumentedStore(memStore)

	logger.Log(log.LevelInfo, "Store started", log.Fields{"store_id": memStore.ID()})

	apiOpts := api.Options{WatchBuffer: cfg.WatchBuffer}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	grpcOpts := apiOpts
	grpcOpts.Logger = logger.With("grpc")
	api.RegisterKVServiceServer(grpcServer, api.NewGRPCServer(instrumentedStore, grpcOpts))

	httpOpts := apiOpts
	httpOpts.Logger = logger.With("http")
	srv := api.NewServer(instrumentedStore, httpOpts)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.HandleFunc("/metrics", api.MetricsHandler(instrumentedStore, memStore))
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	errs := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Log(log.LevelInfo, "gRPC server listening", log.Fields{"addr": cfg.GRPCAddr})
		if err := grpcServer.Serve(grpcLis); err != nil {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Log(log.LevelInfo, "HTTP server listening", log.Fields{"addr": cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	if configPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, configPath, logger.With("config"), func(next *config.Config) {
				log.SetGlobalLevel(next.Level())
				logger.Log(log.LevelInfo, "Log level updated", log.Fields{"level": next.LogLevel})
				if fields := cfg.RestartFields(next); len(fields) > 0 {
					logger.Log(log.LevelInfo, "Config changes need a restart", log.Fields{"fields": fields})
				}
			})
			if err != nil {
				logger.Log(log.LevelWarn, "Config watcher stopped", log.Fields{"error": err.Error()})
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Log(log.LevelInfo, "Shutting down", nil)
	case runErr = <-errs:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Log(log.LevelWarn, "HTTP shutdown failed", log.Fields{"error": err.Error()})
	}
	// Watch streams only end when their context does, so GracefulStop
	// would wait for every open watcher.
	grpcServer.Stop()

	wg.Wait()
	return runErr
}
