package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// wsReadTimeout 等待首条查询消息的时间
const wsReadTimeout = 30 * time.Second

// =============================================================================
// 🔌 WebSocket 查询 Handler
// =============================================================================

// WSQueryHandler 是 /query 的 websocket 版本. 客户端先发送一条 api.QueryRequest,
// 随后收到 api.WSEvent 序列, 最后一条 type 为 end, 然后服务端正常关闭连接.
type WSQueryHandler struct {
	query          *QueryHandler
	originPatterns []string
}

// NewWSQueryHandler 复用 QueryHandler 的会话与流水线. originPatterns 为空时只允许同源.
func NewWSQueryHandler(query *QueryHandler, originPatterns []string) *WSQueryHandler {
	return &WSQueryHandler{query: query, originPatterns: originPatterns}
}

// HandleWS 处理 /ws/query
// @Summary WebSocket 查询
// @Tags 查询
// @Router /ws/query [get]
func (h *WSQueryHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	logger := h.query.logger
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		// Accept 已写出错误响应
		logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	req, err := h.readRequest(ctx, conn)
	if err != nil {
		logger.Debug("invalid websocket query", zap.Error(err))
		conn.Close(websocket.StatusPolicyViolation, truncateReason(err.Error()))
		return
	}
	if req.SessionID == "" {
		req.SessionID = SessionIDFrom(r)
	}

	sess, err := h.query.resolveSession(ctx, req.SessionID)
	if err != nil {
		h.sendFailure(ctx, conn, "", err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	// 客户端关闭连接时取消运行
	runCtx := conn.CloseRead(ctx)
	events, err := h.query.pipeline.Start(runCtx, sess, req.Query, req.RecursionLimit)
	if err != nil {
		h.sendFailure(runCtx, conn, sess.ID(), err)
		conn.Close(websocket.StatusTryAgainLater, "session busy")
		return
	}

	var writeErr error
	for ev := range events {
		if writeErr != nil {
			continue
		}
		writeErr = wsjson.Write(runCtx, conn, toWSEvent(ev))
		if writeErr != nil {
			logger.Debug("websocket write failed", zap.String("session_id", sess.ID()), zap.Error(writeErr))
		}
	}
	if writeErr == nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (h *WSQueryHandler) readRequest(ctx context.Context, conn *websocket.Conn) (api.QueryRequest, error) {
	var req api.QueryRequest
	readCtx, cancel := context.WithTimeout(ctx, wsReadTimeout)
	defer cancel()
	if err := wsjson.Read(readCtx, conn, &req); err != nil {
		return req, err
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, errors.New("query is required")
	}
	if req.RecursionLimit <= 0 {
		req.RecursionLimit = h.query.defaultLimit
	}
	return req, nil
}

func (h *WSQueryHandler) sendFailure(ctx context.Context, conn *websocket.Conn, sessionID string, err error) {
	msg := err.Error()
	if e, ok := types.AsError(err); ok {
		msg = e.Message
	}
	meta := api.StepMetadata{SessionID: sessionID}
	_ = wsjson.Write(ctx, conn, api.WSEvent{Type: string(session.EventError), Content: msg, Meta: meta})
	_ = wsjson.Write(ctx, conn, api.WSEvent{Type: string(session.EventEnd), Content: msg, Meta: meta})
}

func toWSEvent(ev session.Event) api.WSEvent {
	return api.WSEvent{Type: string(ev.Type), Content: ev.Content, Meta: toAPIMetadata(ev.Metadata)}
}

// truncateReason close frame 的 reason 最长 123 字节
func truncateReason(s string) string {
	if len(s) <= 123 {
		return s
	}
	return s[:123]
}
