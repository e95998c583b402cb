package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"time"

	"dropshare/internal/storage"

	"github.com/go-chi/chi/v5"
)

// BlobHandler 为本地与内存存储提供签名下载地址的回源读取。
type BlobHandler struct {
	reader storage.Reader
	signer *storage.URLSigner
	logger *slog.Logger
}

func NewBlobHandler(reader storage.Reader, signer *storage.URLSigner, logger *slog.Logger) *BlobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobHandler{reader: reader, signer: signer, logger: logger}
}

func (h *BlobHandler) RegisterRoutes(r chi.Router) {
	r.Get("/blobs/*", h.handleGet)
}

func (h *BlobHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := storage.CleanKey(chi.URLParam(r, "*"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid object key")
		return
	}

	claims, err := h.signer.Verify(key, r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusForbidden, "download link is invalid or expired")
		return
	}

	body, err := h.reader.Read(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "object not found")
			return
		}
		h.logger.Error("read blob failed", slog.String("object_key", key), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", storage.ContentDisposition(claims.Filename))
	w.Header().Set("Cache-Control", "private, no-store")

	// 磁盘文件支持 Range 请求
	if rs, ok := body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, claims.Filename, time.Time{}, rs)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream blob interrupted", slog.String("object_key", key), slog.Any("error", err))
	}
}
