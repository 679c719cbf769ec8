package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/config"
	"github.com/Setouprincely/automated-results-system-sub005/dbhelper"
	"github.com/Setouprincely/automated-results-system-sub005/kvstore"
	"github.com/Setouprincely/automated-results-system-sub005/mailer"
	"github.com/Setouprincely/automated-results-system-sub005/routes"
	"github.com/Setouprincely/automated-results-system-sub005/services"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
)

const redisKeyPrefix = "exam"

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}

	out, closeLog, err := logOutput(cfg.LogFile)
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogLevel == slog.LevelDebug,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, nil)
	stop()
	closeLog()
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func logOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// run returns instead of exiting so deferred closes always happen. It shuts
// down when ctx is cancelled. If ready is non-nil the base URL is sent on it
// once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	var users services.UserStore
	if cfg.DatabaseDSN != "" {
		db, err := dbhelper.OpenDB(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer dbhelper.CloseDB(db)
		if err := dbhelper.InitDB(db); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		users = dbhelper.NewUserStore(db)
	} else {
		slog.Warn("DATABASE_DSN not set, users are kept in memory")
		users = dbhelper.NewMemoryUserStore(nil)
	}

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	var kv kvstore.Store
	var ml mailer.Mailer = &mailer.LogMailer{}
	if cfg.RedisURL != "" {
		rdb, err := kvstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		kv = kvstore.NewRedisStore(rdb, redisKeyPrefix)

		queue := mailer.NewQueuedMailer(ml, rdb, cfg.MailQueue, mailer.DefaultMaxQueueSize)
		go queue.StartWorker(bgCtx)
		ml = queue
	} else {
		slog.Warn("REDIS_URL not set, sessions and tokens are kept in memory")
		mem := kvstore.NewMemoryStore(nil)
		go mem.StartJanitor(bgCtx, time.Minute)
		kv = mem
	}

	opts := services.DefaultOptions()
	opts.RefreshTTL = cfg.RefreshTokenTTL
	opts.ResetTTL = cfg.ResetTokenTTL
	opts.VerifyTTL = cfg.VerifyTokenTTL
	opts.LockoutThreshold = cfg.LockoutThreshold
	opts.LockoutWindow = cfg.LockoutDuration
	opts.BcryptCost = cfg.BcryptCost
	opts.AppBaseURL = cfg.AppBaseURL
	opts.TOTPIssuer = cfg.TOTPIssuer

	svc, err := services.New(services.Deps{
		Users:  users,
		KV:     kv,
		Tokens: utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTSecretOld, cfg.AccessTokenTTL, nil),
		Mailer: ml,
	}, opts)
	if err != nil {
		return fmt.Errorf("building services: %w", err)
	}

	if cfg.AdminEmail != "" {
		admin, err := svc.Credentials.BootstrapAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrapping admin: %w", err)
		}
		slog.Info("admin account ready", "user_id", admin.ID)
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:           routes.NewHandler(svc, routes.Options{RateLimitPerSecond: cfg.RateLimitPerSecond}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
