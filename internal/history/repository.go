package history

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/database"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 输出与错误文本入库前截断.
const maxTextLen = 16 * 1024

// RunRecord 一次查询运行的持久化记录. 列与索引须与 migrations/*/000001 保持一致.
type RunRecord struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	RunID      string    `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	SessionID  string    `gorm:"size:36;not null;index:idx_session_started" json:"session_id"`
	Query      string    `gorm:"type:text" json:"query"`
	Status     string    `gorm:"size:20;not null;index" json:"status"`
	Steps      int       `gorm:"default:0" json:"steps"`
	Output     string    `gorm:"type:text" json:"output,omitempty"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	StartedAt  time.Time `gorm:"index:idx_session_started" json:"started_at"`
	FinishedAt time.Time `gorm:"index" json:"finished_at"`
	CreatedAt  time.Time `json:"-"`
}

func (RunRecord) TableName() string {
	return "run_records"
}

// DurationMillis 运行耗时（毫秒）.
func (r RunRecord) DurationMillis() int64 {
	return r.FinishedAt.Sub(r.StartedAt).Milliseconds()
}

// Repository 运行记录仓库.
type Repository struct {
	pool       *database.PoolManager
	maxRetries int
	logger     *zap.Logger
}

// NewRepository 创建仓库. 表结构由 internal/migration 创建, 调用方负责先执行迁移.
func NewRepository(pool *database.PoolManager, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		pool:       pool,
		maxRetries: 3,
		logger:     logger.With(zap.String("component", "run_history")),
	}
}

// Record 写入一条运行摘要. 同一 RunID 重复写入时覆盖.
func (r *Repository) Record(ctx context.Context, rec session.RunRecord) error {
	row := fromSession(rec)
	err := r.pool.WithTransactionRetry(ctx, r.maxRetries, func(tx *gorm.DB) error {
		var existing RunRecord
		err := tx.Where("run_id = ?", row.RunID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&row).Error
		case err != nil:
			return err
		}
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		return tx.Save(&row).Error
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	r.logger.Debug("run recorded",
		zap.String("run_id", rec.RunID),
		zap.String("session_id", rec.SessionID),
		zap.String("status", rec.Status),
	)
	return nil
}

// ListBySession 按开始时间倒序返回某个会话的运行记录. limit <= 0 时默认 50.
func (r *Repository) ListBySession(ctx context.Context, sessionID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []RunRecord
	err := r.pool.DB().WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list runs for session %s: %w", sessionID, err)
	}
	return out, nil
}

// Get 返回单条记录, 不存在时 found 为 false.
func (r *Repository) Get(ctx context.Context, runID string) (RunRecord, bool, error) {
	var rec RunRecord
	err := r.pool.DB().WithContext(ctx).Where("run_id = ?", runID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, true, nil
}

// PurgeBefore 删除 cutoff 之前结束的记录, 返回删除条数.
func (r *Repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.pool.DB().WithContext(ctx).Where("finished_at < ?", cutoff).Delete(&RunRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge run records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func fromSession(rec session.RunRecord) RunRecord {
	return RunRecord{
		RunID:      rec.RunID,
		SessionID:  rec.SessionID,
		Query:      truncate(rec.Query),
		Status:     rec.Status,
		Steps:      rec.Steps,
		Output:     truncate(rec.Output),
		Error:      truncate(rec.Error),
		StartedAt:  rec.StartedAt.UTC(),
		FinishedAt: rec.FinishedAt.UTC(),
	}
}

func truncate(s string) string {
	if len(s) <= maxTextLen {
		return s
	}
	cut := maxTextLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var _ session.Recorder = (*Repository)(nil)
