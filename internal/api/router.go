package api

import (
	"log/slog"
	"net/http"

	dsmiddleware "dropshare/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps 聚合路由需要的处理器与鉴权组件。
type RouterDeps struct {
	Shares *ShareHandler
	// Blobs 仅在本地或内存存储时提供
	Blobs *BlobHandler
	// Auth 为空表示开发模式，owner 取自请求中的 userId
	Auth      func(http.Handler) http.Handler
	Registrar dsmiddleware.OwnerRegistrar
	Logger    *slog.Logger
}

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(dsmiddleware.Metrics())

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	if deps.Blobs != nil {
		deps.Blobs.RegisterRoutes(r)
	}

	if deps.Shares != nil {
		deps.Shares.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			if deps.Auth != nil {
				r.Use(deps.Auth)
				if deps.Registrar != nil {
					r.Use(dsmiddleware.RegisterOwner(deps.Registrar, logger))
				}
			}
			deps.Shares.RegisterOwnerRoutes(r)
		})
	}

	return r
}
