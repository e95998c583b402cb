package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dropshare/internal/api"
	"dropshare/internal/config"
	"dropshare/internal/database"
	"dropshare/internal/logging"
	"dropshare/internal/middleware"
	"dropshare/internal/migrations"
	"dropshare/internal/password"
	"dropshare/internal/repository"
	memrepo "dropshare/internal/repository/memory"
	pgrepo "dropshare/internal/repository/postgres"
	"dropshare/internal/service"
	"dropshare/internal/shortcode"
	"dropshare/internal/stats"
	redisstats "dropshare/internal/stats/redis"
	"dropshare/internal/storage"
	"dropshare/internal/storage/awss3"
	"dropshare/internal/storage/local"
	memblob "dropshare/internal/storage/memory"
	"dropshare/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("配置加载完成，开始启动服务",
		slog.String("store", cfg.StoreDriver),
		slog.String("storage", cfg.StorageDriver),
		slog.String("stats", cfg.StatsDriver),
		slog.String("auth", cfg.AuthMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("服务异常退出", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("服务已停止")
}

// metadata 是元数据存储的一组实现。
type metadata struct {
	shares repository.ShareRepository
	owners repository.OwnerRepository
	// stats 为用户表自带的计数实现
	stats stats.Aggregator
	db    *sql.DB
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	meta, err := openMetadata(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if meta.db != nil {
		defer meta.db.Close()
	}

	signer, err := storage.NewURLSigner(cfg.BaseURL, cfg.BlobSigningSecret)
	if err != nil {
		return err
	}
	blobs, err := openBlobStore(ctx, cfg, signer)
	if err != nil {
		return err
	}

	aggregator := meta.stats
	if cfg.StatsDriver == "redis" {
		rs, err := redisstats.New(ctx, redisstats.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return err
		}
		defer rs.Close()
		aggregator = rs
	}

	hasher, err := password.New(cfg.PasswordAlgorithm)
	if err != nil {
		return err
	}
	codes, err := shortcode.New(cfg.ShortCodeMinLength)
	if err != nil {
		return err
	}

	svc, err := service.New(service.Deps{
		Shares: meta.shares,
		Owners: meta.owners,
		Stats:  aggregator,
		Blobs:  blobs,
		Hasher: hasher,
		Codes:  codes,
	}, service.Config{
		BaseURL:              cfg.BaseURL,
		StoragePrefix:        cfg.StoragePrefix,
		SignedURLTTL:         cfg.SignedURLTTL,
		BlobTimeout:          cfg.BlobTimeout,
		MaxUploadBytes:       cfg.MaxUploadBytes,
		MaxBatchFiles:        cfg.MaxBatchFiles,
		AllowedExtensions:    cfg.AllowedExtensions,
		DefaultRetention:     cfg.DefaultRetention,
		MaxExpiryHours:       cfg.MaxExpiryHours,
		ShortCodeMaxAttempts: cfg.ShortCodeMaxAttempts,
		OwnerCacheSize:       cfg.OwnerCacheSize,
		OwnerCacheTTL:        cfg.OwnerCacheTTL,
	}, service.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := svc.SeedOwners(ctx, cfg.SeedOwners); err != nil {
		return err
	}
	if len(cfg.SeedOwners) > 0 {
		logger.Info("已登记预置用户", slog.Int("count", len(cfg.SeedOwners)))
	}

	deps := api.RouterDeps{
		Shares:    api.NewShareHandler(svc, cfg.MaxUploadBytes, cfg.MaxBatchFiles, logger),
		Auth:      authMiddleware(cfg, logger),
		Registrar: svc,
		Logger:    logger,
	}
	// 只有无法生成原生预签名地址的驱动需要回源下载
	if reader, ok := blobs.(storage.Reader); ok {
		deps.Blobs = api.NewBlobHandler(reader, signer, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      api.NewRouter(deps),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务监听端口", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("监听失败: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("优雅关闭失败", slog.Any("error", err))
	}
	return nil
}

func openMetadata(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*metadata, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("使用内存元数据存储，重启后数据丢失")
		owners := memrepo.NewOwnerRepository()
		return &metadata{shares: memrepo.NewShareRepository(), owners: owners, stats: owners}, nil
	}

	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := migrations.Apply(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	owners := pgrepo.NewOwnerRepository(db)
	return &metadata{shares: pgrepo.NewShareRepository(db), owners: owners, stats: owners, db: db}, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config, signer *storage.URLSigner) (storage.BlobStore, error) {
	switch cfg.StorageDriver {
	case "s3":
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		})
	case "aws":
		return awss3.New(ctx, awss3.Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.AWSEndpoint,
		})
	case "memory":
		return memblob.New(signer), nil
	default:
		return local.New(cfg.StorageDir, signer), nil
	}
}

func authMiddleware(cfg *config.Config, logger *slog.Logger) func(http.Handler) http.Handler {
	switch cfg.AuthMode {
	case "apikey":
		return middleware.APIKeyAuth(cfg.APIKeys)
	case "supabase":
		return middleware.SupabaseAuth(middleware.SupabaseConfig{
			ProjectURL: cfg.SupabaseURL,
			AnonKey:    cfg.SupabaseAnonKey,
			JWTSecret:  cfg.SupabaseJWTSecret,
		}, logger)
	default:
		logger.Warn("鉴权已关闭，owner 取自请求参数 userId，只有 SEED_OWNERS 中登记的用户可以上传",
			slog.Int("seed_owners", len(cfg.SeedOwners)))
		return nil
	}
}
