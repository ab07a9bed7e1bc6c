package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/joseph-ayodele/certificate-verifier/internal/async"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/export"
	"github.com/joseph-ayodele/certificate-verifier/internal/httpapi"
	"github.com/joseph-ayodele/certificate-verifier/internal/metrics"
	"github.com/joseph-ayodele/certificate-verifier/internal/ocr"
	"github.com/joseph-ayodele/certificate-verifier/internal/pipeline"
	repo "github.com/joseph-ayodele/certificate-verifier/internal/repository"
	"github.com/joseph-ayodele/certificate-verifier/internal/server"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
)

func main() {
	// Setup structured logger that outputs messages with variables but no time/level
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("certverifyd stopped with errors", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]httpapi.HealthCheck{}
	var closers []func() error

	opts := []pipeline.Option{pipeline.WithMetrics(m)}
	var exporter httpapi.Exporter
	if cfg.JournalEnabled() {
		db, err := openJournal(ctx, cfg, logger)
		if err != nil {
			return err
		}
		closers = append(closers, db.Close)
		attempts := repo.NewAttemptRepository(db, clock.WallClock, logger)
		opts = append(opts, pipeline.WithJournal(attempts))
		exporter = export.NewService(attempts, clock.WallClock, logger)
		checks["db"] = func(ctx context.Context) bool {
			return db.HealthCheck(ctx, 2*time.Second) == nil
		}
	} else {
		logger.Info("attempt journal disabled")
	}

	extractor := pipeline.NewOCRExtractor(ocr.ConfigFromSettings(cfg.OCR), m, logger)
	verifier := pipeline.NewVerifier(session.RequestProvider{}, extractor, logger, opts...)

	var store async.ResultStore
	switch cfg.Queue.ResultBackend {
	case "redis":
		client := async.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		closers = append(closers, client.Close)
		rs := async.NewRedisStore(client, cfg.Queue.ResultTTL)
		checks["redis"] = rs.Healthy
		store = rs
		logger.Info("async results in redis", "addr", cfg.Redis.Addr)
	default:
		store = async.NewMemoryStore(clock.WallClock, cfg.Queue.ResultTTL)
	}
	queue := async.NewQueue(verifier, store, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)

	maxUpload := cfg.Server.MaxUploadMB << 20
	errCh := make(chan error, 2)

	var httpSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		api := httpapi.New(httpapi.Config{
			Issuer:          cfg.Auth.Issuer,
			SigningKey:      cfg.Auth.SigningKey,
			AccessTTL:       cfg.Auth.AccessTTL,
			DevSessions:     cfg.Auth.DevSessions,
			MaxUploadBytes:  maxUpload,
			RateLimitPerMin: cfg.Server.RateLimitPerMin,
		}, httpapi.Deps{
			Verifier: verifier,
			Attempts: queue,
			Exporter: exporter,
			Gatherer: reg,
			Health:   checks,
		}, logger)
		httpSrv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var grpcSrv *grpc.Server
	var hs *health.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			return err
		}
		svc := server.NewVerificationService(verifier, cfg.Auth.SigningKey, cfg.Auth.Issuer, maxUpload, logger)
		grpcSrv, hs = server.NewGRPCServer(svc, maxUpload, logger)
		go func() {
			logger.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		result = multierror.Append(result, err)
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if hs != nil {
		hs.Shutdown()
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shCtx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	queue.Shutdown(shCtx)
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && !errors.Is(err, redis.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func openJournal(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*repo.DB, error) {
	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", cfg.Database.Driver)
		return nil, err
	}
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		_ = db.Close()
		logger.Error("failed to ping database", "error", err)
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		logger.Error("failed to migrate database", "error", err)
		return nil, err
	}
	return db, nil
}
