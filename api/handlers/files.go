package handlers

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/fsutil"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📁 文件 Handler
// =============================================================================

// FileHandler 列出与下载会话工作目录中的文件
type FileHandler struct {
	store  *session.Store
	logger *zap.Logger
}

// NewFileHandler 创建文件处理器
func NewFileHandler(store *session.Store, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{
		store:  store,
		logger: logger.With(zap.String("handler", "files")),
	}
}

// HandleList 处理 /files
// @Summary 文件列表
// @Tags 文件
// @Produce json
// @Param session_id query string true "会话 ID"
// @Success 200 {object} api.FileListResponse
// @Failure 404 {object} Response "会话不存在"
// @Router /files [get]
func (h *FileHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	files, err := fsutil.ListFiles(sess.WorkDir())
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to list files").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, r, api.FileListResponse{SessionID: sess.ID(), Files: files})
}

// HandleDownload 处理 /download
// @Summary 下载文件
// @Tags 文件
// @Produce octet-stream
// @Param session_id query string true "会话 ID"
// @Param file_path query string true "相对工作目录的路径"
// @Success 200 {file} file
// @Failure 400 {object} Response "不是文件"
// @Failure 403 {object} Response "路径越界"
// @Failure 404 {object} Response "会话或文件不存在"
// @Router /download [get]
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("file_path")
	if rel == "" {
		rel = r.URL.Query().Get("path")
	}
	if rel == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "file_path is required"), h.logger)
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	full, err := fsutil.Resolve(sess.WorkDir(), rel)
	if err != nil {
		if errors.Is(err, fsutil.ErrOutsideRoot) {
			h.logger.Warn("download outside working directory rejected",
				zap.String("session_id", sess.ID()),
				zap.String("path", rel),
			)
			WriteError(w, r, types.NewError(types.ErrPathForbidden, "cannot access files outside working directory"), h.logger)
			return
		}
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			WriteError(w, r, types.Errorf(types.ErrNotFound, "file %s does not exist", rel), h.logger)
			return
		}
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to open file").WithCause(err), h.logger)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to stat file").WithCause(err), h.logger)
		return
	}
	if !info.Mode().IsRegular() {
		WriteError(w, r, types.Errorf(types.ErrInvalidRequest, "%s is not a file", rel), h.logger)
		return
	}

	name := filepath.Base(full)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *FileHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := SessionIDFrom(r)
	if id == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "session_id is required"), h.logger)
		return nil, false
	}
	sess, ok := h.store.Get(id)
	if !ok {
		WriteError(w, r, types.Errorf(types.ErrSessionNotFound, "session %s does not exist", id), h.logger)
		return nil, false
	}
	return sess, true
}
