package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"go.uber.org/zap"
)

// DefaultRecursionLimit 未指定 recursion_limit 时的步数上限
const DefaultRecursionLimit = 150

// sseErrorPrefix 错误事件的 data 前缀
const sseErrorPrefix = "ERROR: "

// =============================================================================
// 🔎 查询 Handler
// =============================================================================

// QueryHandler 以 SSE 流式返回团队的每一步
type QueryHandler struct {
	store        *session.Store
	pipeline     *session.Pipeline
	defaultLimit int
	logger       *zap.Logger
}

// NewQueryHandler 创建查询处理器. defaultLimit <= 0 时使用 DefaultRecursionLimit.
func NewQueryHandler(store *session.Store, pipeline *session.Pipeline, defaultLimit int, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultRecursionLimit
	}
	return &QueryHandler{
		store:        store,
		pipeline:     pipeline,
		defaultLimit: defaultLimit,
		logger:       logger.With(zap.String("handler", "query")),
	}
}

// HandleQuery 处理 GET/POST /query
// @Summary 流式查询
// @Description 在会话中运行一次查询, 每一步作为一个 SSE 事件返回, 最后一个事件为 end
// @Tags 查询
// @Accept json
// @Produce text/event-stream
// @Param query query string false "用户查询 (GET)"
// @Param recursion_limit query int false "步数上限" default(150)
// @Param session_id query string false "会话 ID"
// @Param request body api.QueryRequest false "查询请求 (POST)"
// @Success 200 {string} string "SSE 流"
// @Failure 400 {object} Response "无效请求"
// @Failure 409 {object} Response "会话正忙"
// @Router /query [get]
// @Router /query [post]
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parse(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	sess, err := h.resolveSession(r.Context(), req.SessionID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	h.logger.Info("query received",
		zap.String("method", r.Method),
		zap.String("session_id", sess.ID()),
		zap.Int("recursion_limit", req.RecursionLimit),
	)

	events, err := h.pipeline.Start(r.Context(), sess, req.Query, req.RecursionLimit)
	if err != nil {
		w.Header().Set(HeaderSessionID, sess.ID())
		WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.Header().Set(HeaderSessionID, sess.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var writeErr error
	for ev := range events {
		// 客户端断开后 r.Context() 取消, 继续读完通道让运行收尾
		if writeErr != nil {
			continue
		}
		if writeErr = WriteSSE(w, ev); writeErr != nil {
			h.logger.Debug("client went away", zap.String("session_id", sess.ID()), zap.Error(writeErr))
			continue
		}
		flusher.Flush()
	}
}

func (h *QueryHandler) parse(w http.ResponseWriter, r *http.Request) (api.QueryRequest, bool) {
	var req api.QueryRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.SessionID = q.Get("session_id")
		if raw := q.Get("recursion_limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				WriteError(w, r, types.Errorf(types.ErrInvalidRequest, "recursion_limit must be an integer, got %q", raw), h.logger)
				return req, false
			}
			req.RecursionLimit = n
		}
	case http.MethodPost:
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return req, false
		}
	default:
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return req, false
	}

	if req.SessionID == "" {
		req.SessionID = r.Header.Get(HeaderSessionID)
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "query is required"), h.logger)
		return req, false
	}
	if req.RecursionLimit <= 0 {
		req.RecursionLimit = h.defaultLimit
	}
	return req, true
}

func (h *QueryHandler) resolveSession(ctx context.Context, id string) (*session.Session, error) {
	sess, created, err := h.store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	if created && id != "" {
		h.logger.Info("unknown session on query, created a new one",
			zap.String("requested", id),
			zap.String("session_id", sess.ID()),
		)
	}
	return sess, nil
}

// =============================================================================
// 📡 SSE 编码
// =============================================================================

// WriteSSE 按以下格式写出一个事件:
//
//	step:  data: {"response": ..., "metadata": {...}}
//	error: data: ERROR: <message>
//	end:   event: end / data: <message>
func WriteSSE(w io.Writer, ev session.Event) error {
	switch ev.Type {
	case session.EventStep:
		payload, err := json.Marshal(api.StepPayload{Response: ev.Content, Metadata: toAPIMetadata(ev.Metadata)})
		if err != nil {
			return err
		}
		return writeSSEFrame(w, "", string(payload))
	case session.EventError:
		return writeSSEFrame(w, "", sseErrorPrefix+ev.Content)
	case session.EventEnd:
		return writeSSEFrame(w, "end", ev.Content)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// writeSSEFrame 多行内容拆成多个 data 行
func writeSSEFrame(w io.Writer, event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func toAPIMetadata(m session.Metadata) api.StepMetadata {
	return api.StepMetadata{
		SessionID: m.SessionID,
		RunID:     m.RunID,
		Step:      m.Step,
		Graph:     m.Graph,
		Node:      m.Node,
		Author:    m.Author,
		Next:      m.Next,
	}
}
