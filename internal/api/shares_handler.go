package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dropshare/internal/repository"
	"dropshare/internal/service"

	"github.com/go-chi/chi/v5"
)

// ShareHandler 暴露分享链接相关的 HTTP 接口。
type ShareHandler struct {
	svc    *service.ShareService
	logger *slog.Logger
	// 单次上传请求体上限，超过直接返回 413
	maxRequestBytes int64
}

// NewShareHandler 创建处理器。maxUploadBytes 与 maxFiles 用于计算请求体上限。
func NewShareHandler(svc *service.ShareService, maxUploadBytes int64, maxFiles int, logger *slog.Logger) *ShareHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFiles <= 0 {
		maxFiles = 1
	}
	return &ShareHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "share_handler")),
		// 表单字段与 multipart 边界另留 1MiB
		maxRequestBytes: maxUploadBytes*int64(maxFiles) + 1<<20,
	}
}

// RegisterPublicRoutes 注册无需鉴权的下载与解析路由。
func (h *ShareHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/files/download/{fileId}", h.handleDownload)
	r.Get("/files/resolveShareLink/{code}", h.handlePeek)
	r.Post("/files/resolveShareLink/{code}", h.handleResolve)
	r.Post("/files/verifyFilePassword", h.handleVerifyPassword)
	r.Get("/files/getDownloadCount/{fileId}", h.handleDownloadCount)
}

// RegisterOwnerRoutes 注册只对所有者开放的路由，调用方负责挂载鉴权中间件。
func (h *ShareHandler) RegisterOwnerRoutes(r chi.Router) {
	r.Post("/files/upload", h.handleUpload)
	r.Delete("/files/delete/{fileId}", h.handleDelete)
	r.Put("/files/update/{fileId}", h.handleUpdateStatus)
	r.Post("/files/updateFileExpiry", h.handleUpdateExpiry)
	r.Post("/files/updateFilePassword", h.handleUpdatePassword)
	r.Post("/files/generateShareShortenLink", h.handleRegenerate)
	r.Get("/files/getFileDetails/{fileId}", h.handleGet)
	r.Get("/files/getUserFiles", h.handleList)
	r.Get("/files/stats", h.handleStats)
}

type passwordRequest struct {
	Password string `json:"password"`
}

type downloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
	FileName    string `json:"fileName"`
	ExpiresAt   string `json:"expiresAt"`
}

func newDownloadResponse(dl *service.Download) downloadResponse {
	return downloadResponse{
		DownloadURL: dl.URL,
		FileName:    dl.FileName,
		ExpiresAt:   dl.ExpiresAt.Format(time.RFC3339),
	}
}

func (h *ShareHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	dl, err := h.svc.ResolveByID(r.Context(), chi.URLParam(r, "fileId"), req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: newDownloadResponse(dl)})
}

func (h *ShareHandler) handlePeek(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Peek(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: info})
}

func (h *ShareHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	dl, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "code"), req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: newDownloadResponse(dl)})
}

type verifyPasswordRequest struct {
	FileID   string `json:"fileId"`
	Password string `json:"password"`
}

func (h *ShareHandler) handleVerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req verifyPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if strings.TrimSpace(req.FileID) == "" {
		writeError(w, http.StatusBadRequest, "fileId is required")
		return
	}

	ok, err := h.svc.VerifyPassword(r.Context(), req.FileID, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]bool{"valid": ok}})
}

func (h *ShareHandler) handleDownloadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.DownloadCount(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]int64{"downloadCount": count}})
}

// requireOwner 取得调用者身份，失败时已写出响应。
func (h *ShareHandler) requireOwner(w http.ResponseWriter, r *http.Request, fallback string) (string, bool) {
	owner := ownerID(r, fallback)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "owner id is required")
		return "", false
	}
	return owner, true
}

func (h *ShareHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r, "")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), owner, chi.URLParam(r, "fileId")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	UserID string `json:"userId"`
}

func (h *ShareHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	owner, ok := h.requireOwner(w, r, req.UserID)
	if !ok {
		return
	}

	status := repository.ShareStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	rec, err := h.svc.SetStatus(r.Context(), owner, chi.URLParam(r, "fileId"), status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: rec})
}

type updateExpiryRequest struct {
	FileID    string `json:"fileId"`
	HasExpiry bool   `json:"hasExpiry"`
	ExpiresAt int    `json:"expiresAt"` // 从现在起的小时数
	UserID    string `json:"userId"`
}

func (h *ShareHandler) handleUpdateExpiry(w http.ResponseWriter, r *http.Request) {
	var req updateExpiryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	owner, ok := h.requireOwner(w, r, req.UserID)
	if !ok {
		return
	}

	var (
		rec *repository.ShareRecord
		err error
	)
	if req.HasExpiry {
		rec, err = h.svc.SetExpiry(r.Context(), owner, req.FileID, req.ExpiresAt)
	} else {
		rec, err = h.svc.ClearExpiry(r.Context(), owner, req.FileID)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: rec})
}

type updatePasswordRequest struct {
	FileID     string `json:"fileId"`
	IsPassword bool   `json:"isPassword"`
	Password   string `json:"password"`
	UserID     string `json:"userId"`
}

func (h *ShareHandler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	owner, ok := h.requireOwner(w, r, req.UserID)
	if !ok {
		return
	}

	var (
		rec *repository.ShareRecord
		err error
	)
	if req.IsPassword {
		rec, err = h.svc.SetPassword(r.Context(), owner, req.FileID, req.Password)
	} else {
		rec, err = h.svc.ClearPassword(r.Context(), owner, req.FileID)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: rec})
}

type regenerateRequest struct {
	FileID string `json:"fileId"`
	UserID string `json:"userId"`
}

func (h *ShareHandler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	owner, ok := h.requireOwner(w, r, req.UserID)
	if !ok {
		return
	}

	rec, err := h.svc.RegenerateShortCode(r.Context(), owner, req.FileID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: rec})
}

func (h *ShareHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r, "")
	if !ok {
		return
	}

	rec, err := h.svc.Get(r.Context(), owner, chi.URLParam(r, "fileId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: rec})
}

func (h *ShareHandler) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r, "")
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	records, err := h.svc.List(r.Context(), repository.ListSharesParams{
		OwnerID: owner,
		Query:   r.URL.Query().Get("query"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: records})
}

func (h *ShareHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r, "")
	if !ok {
		return
	}

	st, err := h.svc.OwnerStats(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: st})
}

// isTooLarge 判断错误是否来自请求体上限。
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
