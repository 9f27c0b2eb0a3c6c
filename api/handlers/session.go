package handlers

import (
	"net/http"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🗂️ 会话 Handler
// =============================================================================

// SessionHandler 会话接口处理器
type SessionHandler struct {
	store  *session.Store
	logger *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(store *session.Store, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		store:  store,
		logger: logger.With(zap.String("handler", "session")),
	}
}

// HandleSession 按方法分发 /session
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.HandleCreate(w, r)
	case http.MethodGet:
		h.HandleGetOrCreate(w, r)
	case http.MethodDelete:
		h.HandleDelete(w, r)
	default:
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleCreate 创建新会话
// @Summary 创建会话
// @Tags 会话
// @Produce json
// @Success 200 {object} api.SessionResponse
// @Router /session [post]
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Create(r.Context())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w, r, sess, true)
}

// HandleGetOrCreate 返回 session_id 对应的会话, 不存在或未提供时新建
// @Summary 获取或创建会话
// @Tags 会话
// @Produce json
// @Param session_id query string false "会话 ID"
// @Success 200 {object} api.SessionResponse
// @Router /session [get]
func (h *SessionHandler) HandleGetOrCreate(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFrom(r)
	sess, created, err := h.store.GetOrCreate(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if created && id != "" {
		h.logger.Info("unknown session requested, created a new one",
			zap.String("requested", id),
			zap.String("session_id", sess.ID()),
		)
	}
	h.writeSession(w, r, sess, created)
}

// HandleDelete 删除会话及其工作目录
// @Summary 删除会话
// @Tags 会话
// @Param session_id query string true "会话 ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /session [delete]
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFrom(r)
	if id == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "session_id is required"), h.logger)
		return
	}
	if sess, ok := h.store.Get(id); ok && sess.Busy() {
		WriteError(w, r, types.NewError(types.ErrSessionBusy, "session has a run in progress"), h.logger)
		return
	}
	if !h.store.Remove(id) {
		WriteError(w, r, types.Errorf(types.ErrSessionNotFound, "session %s does not exist", id), h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"session_id": id})
}

func (h *SessionHandler) writeSession(w http.ResponseWriter, r *http.Request, sess *session.Session, created bool) {
	info := sess.Info()
	w.Header().Set(HeaderSessionID, info.SessionID)
	WriteSuccess(w, r, api.SessionResponse{
		SessionID:  info.SessionID,
		CreatedAt:  info.CreatedAt,
		LastUsedAt: info.LastUsedAt,
		Busy:       info.Busy,
		Created:    created,
	})
}
