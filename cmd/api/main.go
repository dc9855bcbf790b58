package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/database"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/ratelimit"
	"github.com/Wikid82/warden/internal/server"
	"github.com/Wikid82/warden/internal/services"
	"github.com/Wikid82/warden/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	setupLogging(cfg)

	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
			log.Fatalf("%s: %v", os.Args[1], err)
		}
		return
	}

	if err := serve(cfg); err != nil {
		logger.Log().WithError(err).Fatal("server error")
	}
}

// setupLogging sends the application log and the security channel to their
// own rotated files, each tee'd to stdout.
func setupLogging(cfg config.Config) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		log.Printf("WARNING: cannot create log directory %s: %v", cfg.LogDir, err)
		logger.Init(cfg.Debug, os.Stdout)
		logger.InitSecurity(os.Stdout)
		return
	}

	app := io.MultiWriter(os.Stdout, rotator(filepath.Join(cfg.LogDir, "warden.log")))
	log.SetOutput(app)
	logger.Init(cfg.Debug, app)
	logger.InitSecurity(io.MultiWriter(os.Stdout, rotator(filepath.Join(cfg.LogDir, "security.log"))))
}

func rotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

func serve(cfg config.Config) error {
	logger.Log().Infof("starting %s", version.Full())

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	defer closeStore()

	alerts := services.NewAlertService(cfg.AlertURLs)
	defer alerts.Wait()

	srv, err := server.New(db, cfg, store, alerts)
	if err != nil {
		return err
	}

	retention, err := newRetention(db, cfg.RateLimit)
	if err != nil {
		return err
	}
	retention.Start()
	defer retention.Stop()

	logger.Log().WithFields(map[string]interface{}{
		"port":  cfg.HTTPPort,
		"store": cfg.RateLimit.Store,
	}).Info("listening")
	return srv.Run(ctx)
}

// openStore builds the counter store selected by cfg. The returned close
// function is always safe to call.
func openStore(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.CounterStore, func(), error) {
	if cfg.Store == config.StoreRedis {
		store, err := ratelimit.NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Log().WithError(err).Warn("Failed to close redis client")
			}
		}, nil
	}
	return ratelimit.NewMemoryStore(cfg.CacheSize), func() {}, nil
}

func newRetention(db *gorm.DB, cfg config.RateLimitConfig) (*services.RetentionService, error) {
	violations := services.NewViolationService(db, cfg.CriticalThreshold, services.NewAuditService(db))
	return services.NewRetentionService(violations, cfg.CleanupSchedule, cfg.LogRetentionDays)
}

// runCommand executes an operator subcommand.
func runCommand(cfg config.Config, name string, args []string, out io.Writer) error {
	switch name {
	case "cleanup-violations":
		if len(args) > 1 {
			return fmt.Errorf("usage: %s cleanup-violations [days]", os.Args[0])
		}
		days := cfg.RateLimit.LogRetentionDays
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid days %q", args[0])
			}
			days = n
		}
		db, err := database.Connect(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		return cleanupViolations(context.Background(), db, cfg.RateLimit, days, out)

	case "issue-token":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s issue-token <user-id> <role>", os.Args[0])
		}
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		tokens, err := services.NewTokenService(cfg.JWTSecret, services.DefaultTokenTTL)
		if err != nil {
			return err
		}
		token, err := tokens.Issue(uint(id), args[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, token)
		return err

	case "version":
		_, err := fmt.Fprintln(out, version.Full())
		return err
	}
	return fmt.Errorf("unknown command %q", name)
}

func cleanupViolations(ctx context.Context, db *gorm.DB, cfg config.RateLimitConfig, days int, out io.Writer) error {
	if err := database.Migrate(db); err != nil {
		return err
	}
	violations := services.NewViolationService(db, cfg.CriticalThreshold, services.NewAuditService(db))
	deleted, err := violations.PurgeOlderThan(ctx, days)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Deleted %d violation records older than %d days\n", deleted, days)
	return err
}
