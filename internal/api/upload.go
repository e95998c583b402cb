package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"dropshare/internal/service"
)

const multipartMemoryBudget = 16 << 20 // 16MiB

type uploadError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type uploadResponse struct {
	FileIDs []string      `json:"fileIds"`
	Files   []any         `json:"files"`
	Errors  []uploadError `json:"errors"`
}

// handleUpload 接收 multipart 表单中的一个或多个文件并逐个签发分享链接。
// 只要有一个文件成功就返回 201，失败的文件出现在 errors 中。
func (h *ShareHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	defer r.Body.Close()

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	owner, ok := h.requireOwner(w, r, r.FormValue("userId"))
	if !ok {
		return
	}

	opts, err := parseShareOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}

	inputs := make([]service.IssueInput, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("open %s: %v", header.Filename, err))
			return
		}
		defer file.Close()

		size, err := determineFileSize(file, header)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mimeType, err := resolveMimeType(header, file)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		inputs = append(inputs, service.IssueInput{
			OwnerID:      owner,
			OriginalName: header.Filename,
			MimeType:     mimeType,
			Size:         size,
			Body:         file,
			Options:      opts,
		})
	}

	results, err := h.svc.IssueBatch(r.Context(), inputs)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := uploadResponse{FileIDs: []string{}, Files: []any{}, Errors: []uploadError{}}
	var firstErr error
	for _, res := range results {
		if res.Err != nil {
			if firstErr == nil {
				firstErr = res.Err
			}
			status := statusFor(res.Err)
			resp.Errors = append(resp.Errors, uploadError{Name: res.Name, Error: errorMessage(res.Err, status)})
			continue
		}
		resp.FileIDs = append(resp.FileIDs, res.Record.ID)
		resp.Files = append(resp.Files, res.Record)
	}

	if len(resp.FileIDs) == 0 {
		writeServiceError(w, r, h.logger, firstErr)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Data: resp})
}

// parseShareOptions 读取表单中的密码与过期设置。expiresAt 为小时数。
func parseShareOptions(r *http.Request) (service.ShareOptions, error) {
	var opts service.ShareOptions

	if parseBool(r.FormValue("isPassword")) {
		opts.Password = r.FormValue("password")
		if opts.Password == "" {
			return opts, fmt.Errorf("password is required when isPassword is set")
		}
	}

	if parseBool(r.FormValue("hasExpiry")) {
		raw := strings.TrimSpace(r.FormValue("expiresAt"))
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			return opts, fmt.Errorf("expiresAt must be a positive number of hours")
		}
		opts.ExpiryHours = hours
	}

	return opts, nil
}

func determineFileSize(file multipart.File, header *multipart.FileHeader) (int64, error) {
	if header != nil && header.Size > 0 {
		return header.Size, nil
	}

	seeker, ok := file.(io.Seeker)
	if !ok {
		return 0, fmt.Errorf("cannot determine file size")
	}

	size, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("measure file: %w", err)
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind file: %w", err)
	}

	return size, nil
}

func resolveMimeType(header *multipart.FileHeader, file multipart.File) (string, error) {
	if header != nil {
		if value := header.Header.Get("Content-Type"); value != "" {
			return value, nil
		}
	}

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("detect mime: %w", err)
	}

	if err := rewindFile(file); err != nil {
		return "", err
	}
	if n == 0 {
		return "application/octet-stream", nil
	}
	return http.DetectContentType(buf[:n]), nil
}

func rewindFile(file multipart.File) error {
	seeker, ok := file.(io.Seeker)
	if !ok {
		return fmt.Errorf("upload reader is not seekable")
	}
	_, err := seeker.Seek(0, io.SeekStart)
	return err
}
