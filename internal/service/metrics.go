package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 解析结果标签取值。
const (
	outcomeSuccess           = "success"
	outcomeNotFound          = "not_found"
	outcomeDisabled          = "disabled"
	outcomeExpired           = "expired"
	outcomePasswordRequired  = "password_required"
	outcomeIncorrectPassword = "incorrect_password"
	outcomeError             = "error"
)

var (
	linksIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropshare_links_issued_total",
		Help: "Number of share links created.",
	})

	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dropshare_resolutions_total",
		Help: "Share link resolutions by outcome.",
	}, []string{"outcome"})

	downloadCountErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropshare_download_count_errors_total",
		Help: "Download counter increments that failed after a successful resolution.",
	})

	blobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dropshare_blob_operation_duration_seconds",
		Help:    "Latency of blob store calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, ErrDisabled):
		return outcomeDisabled
	case errors.Is(err, ErrExpired):
		return outcomeExpired
	case errors.Is(err, ErrPasswordRequired):
		return outcomePasswordRequired
	case errors.Is(err, ErrIncorrectPassword):
		return outcomeIncorrectPassword
	default:
		return outcomeError
	}
}
