package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/history"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"go.uber.org/zap"
)

// RunLister 按会话读取运行历史
type RunLister interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]history.RunRecord, error)
}

// RunHandler 运行历史处理器
type RunHandler struct {
	runs   RunLister
	logger *zap.Logger
}

// NewRunHandler 创建运行历史处理器
func NewRunHandler(runs RunLister, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{runs: runs, logger: logger.With(zap.String("handler", "runs"))}
}

// HandleList 处理 /runs
// @Summary 运行历史
// @Tags 运行
// @Produce json
// @Param session_id query string true "会话 ID"
// @Param limit query int false "最多返回条数" default(50)
// @Success 200 {object} api.RunListResponse
// @Router /runs [get]
func (h *RunHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFrom(r)
	if id == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "session_id is required"), h.logger)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, r, types.Errorf(types.ErrInvalidRequest, "limit must be a non-negative integer, got %q", raw), h.logger)
			return
		}
		limit = n
	}

	records, err := h.runs.ListBySession(r.Context(), id, limit)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to load run history").WithCause(err), h.logger)
		return
	}

	out := api.RunListResponse{SessionID: id, Runs: make([]api.RunResponse, 0, len(records))}
	for _, rec := range records {
		out.Runs = append(out.Runs, api.RunResponse{
			RunID:      rec.RunID,
			SessionID:  rec.SessionID,
			Query:      rec.Query,
			Status:     rec.Status,
			Steps:      rec.Steps,
			Output:     rec.Output,
			Error:      rec.Error,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
			DurationMS: rec.DurationMillis(),
		})
	}
	WriteSuccess(w, r, out)
}
