package tokenizer

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// TruncationMarker 追加在被截断文本的末尾.
const TruncationMarker = "\n...[truncated]"

// Tokenizer 统一的 token 计数与截断接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Truncate 返回不超过 maxTokens 个 token 的前缀.
	Truncate(text string, maxTokens int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// ForModel 返回模型对应的 tiktoken 分词器；编码数据不可用时回退到估算器.
func ForModel(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackTokenizer{
		primary:  NewTiktokenTokenizer(model),
		fallback: NewEstimatorTokenizer(),
		logger:   logger,
	}
}

type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger
	warned   sync.Once
}

func (f *fallbackTokenizer) warn(err error) {
	f.warned.Do(func() {
		f.logger.Warn("tiktoken unavailable, using estimator", zap.Error(err))
	})
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	n, err := f.primary.CountTokens(text)
	if err != nil {
		f.warn(err)
		return f.fallback.CountTokens(text)
	}
	return n, nil
}

func (f *fallbackTokenizer) Truncate(text string, maxTokens int) (string, error) {
	out, err := f.primary.Truncate(text, maxTokens)
	if err != nil {
		f.warn(err)
		return f.fallback.Truncate(text, maxTokens)
	}
	return out, nil
}

func (f *fallbackTokenizer) Name() string { return f.primary.Name() }

// Budget 把工具输出限制在固定 token 预算内.
type Budget struct {
	tok       Tokenizer
	maxTokens int
}

// NewBudget 创建预算；maxTokens <= 0 表示不限制.
func NewBudget(tok Tokenizer, maxTokens int) *Budget {
	return &Budget{tok: tok, maxTokens: maxTokens}
}

// Apply 超出预算时截断并追加 TruncationMarker；计数失败时原样返回.
func (b *Budget) Apply(text string) string {
	if b == nil || b.tok == nil || b.maxTokens <= 0 || text == "" {
		return text
	}
	n, err := b.tok.CountTokens(text)
	if err != nil || n <= b.maxTokens {
		return text
	}
	out, err := b.tok.Truncate(text, b.maxTokens)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, " \n") + TruncationMarker
}
