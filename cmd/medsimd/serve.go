package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/lab"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/labd"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/metrics"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/notify"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/synth"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/config"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
)

var (
	httpAddr      string
	grpcAddr      string
	epochInterval time.Duration
	seedOnStart   bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	serveCmd.Flags().DurationVar(&epochInterval, "epoch-interval", 0, "delay between generated epochs of a running experiment")
	serveCmd.Flags().BoolVar(&seedOnStart, "seed", false, "load demo data before serving")
}

// openLab opens the configured store and builds a lab on top of it. The returned
// cleanup stops run loops before closing the store.
func openLab(cfg *config.Config, opts lab.Options) (*lab.Lab, func(), error) {
	gen, err := synth.New(cfg.Generator)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	l := lab.New(st, gen, opts)
	cleanup := func() {
		l.Close()
		if err := st.Close(); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}
	return l, cleanup, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if cmd.Flags().Changed("grpc-addr") {
		cfg.Server.GRPCAddr = grpcAddr
	}
	shutdownTimeout, err := cfg.Server.GetShutdownTimeout()
	if err != nil {
		return fmt.Errorf("shutdown_timeout: %w", err)
	}

	logCloser, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)
	opts := lab.Options{EpochInterval: epochInterval, Recorder: rec}
	if cfg.Notify != nil {
		wh := notify.NewWebhook(*cfg.Notify)
		defer wh.Close()
		opts.Notifier = wh
		logger.Info("experiment notifications enabled", "url", cfg.Notify.URL)
	}
	l, cleanup, err := openLab(cfg, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seedOnStart {
		sum, err := l.Seed(ctx)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("demo data seeded", "experiments", sum.Experiments, "evaluations", sum.Evaluations)
	}

	httpSrv := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: labd.NewHTTPServer(l, labd.HTTPOptions{
			CORSOrigins: cfg.Server.CORSOrigins,
			Recorder:    rec,
			Gatherer:    prometheus.DefaultGatherer,
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	var (
		grpcSrv *grpc.Server
		grpcLis net.Listener
	)
	if cfg.Server.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen for gRPC on %s: %w", cfg.Server.GRPCAddr, err)
		}
		// TODO: add TLS credentials before exposing the gRPC listener beyond localhost.
		grpcSrv = grpc.NewServer()
		labd.RegisterLabServiceServer(grpcSrv, labd.NewLabGRPCServer(l))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr, "storage", cfg.Storage.Driver)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcSrv != nil {
		g.Go(func() error {
			logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
			if err := grpcSrv.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
