package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
)

// multipart 头部和边界的额外余量
const uploadOverhead = 1 << 20

var allowedExtensions = map[string]bool{
	".sol": true,
	".txt": true,
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	if s.requireAPIKey && strings.TrimSpace(r.Header.Get(APIKeyHeader)) == "" {
		writeError(w, http.StatusUnauthorized, "API key is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, internal.MaxContractSize+uploadOverhead)
	if err := r.ParseMultipartForm(internal.MaxContractSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		// 未选择文件时浏览器仍会提交 filename 为空的 file 字段，multipart 将其视为普通值
		if _, ok := r.MultipartForm.Value["file"]; ok {
			writeError(w, http.StatusBadRequest, "No file selected")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		writeError(w, http.StatusBadRequest, "Invalid file type")
		return
	}
	if header.Size > internal.MaxContractSize {
		writeError(w, http.StatusRequestEntityTooLarge, "File is too large")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(file, internal.MaxContractSize+1))
	if err != nil {
		log.Error("failed to read upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, internal.UserMessage(err))
		return
	}

	log.Info("auditing upload",
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(raw)))

	result, err := s.auditor.Audit(r.Context(), raw)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error("audit failed", zap.Error(err))
		} else {
			log.Warn("audit failed", zap.Int("status", status), zap.Error(err))
		}
		writeError(w, status, internal.UserMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// statusFor 把错误类别映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, internal.ErrInvalidInput), errors.Is(err, internal.ErrNotAContract):
		return http.StatusBadRequest
	case errors.Is(err, internal.ErrSchemaViolation):
		return http.StatusBadGateway
	case errors.Is(err, internal.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
