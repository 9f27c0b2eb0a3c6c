package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer()

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, _ = e.CountTokens("abcdefgh")
	assert.Equal(t, 2, n)

	n, _ = e.CountTokens("a")
	assert.Equal(t, 1, n)

	n, _ = e.CountTokens("你好世")
	assert.Equal(t, 2, n)
}

func TestEstimator_Truncate(t *testing.T) {
	e := NewEstimatorTokenizer()

	out, err := e.Truncate(strings.Repeat("a", 40), 5)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 20), out)

	out, _ = e.Truncate("short", 100)
	assert.Equal(t, "short", out)

	out, _ = e.Truncate("anything", 0)
	assert.Empty(t, out)

	// 截断不会切开多字节字符
	out, _ = e.Truncate("你好世界你好", 2)
	assert.Equal(t, "你好世", out)
}

func TestEncodingForModel(t *testing.T) {
	assert.Equal(t, "o200k_base", EncodingForModel("gpt-4o"))
	assert.Equal(t, "o200k_base", EncodingForModel("openai/gpt-4o-2024-11-20"))
	assert.Equal(t, "cl100k_base", EncodingForModel("gpt-4-turbo"))
	assert.Equal(t, "cl100k_base", EncodingForModel("mystery-model"))
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenTokenizer("gpt-4o").Name())
}

func TestBudget_Apply(t *testing.T) {
	b := NewBudget(NewEstimatorTokenizer(), 5)

	assert.Equal(t, "tiny", b.Apply("tiny"))

	out := b.Apply(strings.Repeat("word ", 20))
	assert.True(t, strings.HasSuffix(out, TruncationMarker))
	assert.True(t, len(out) < len(strings.Repeat("word ", 20)))

	unlimited := NewBudget(NewEstimatorTokenizer(), 0)
	long := strings.Repeat("x", 1000)
	assert.Equal(t, long, unlimited.Apply(long))

	var nilBudget *Budget
	assert.Equal(t, long, nilBudget.Apply(long))
}

type brokenTokenizer struct{}

func (brokenTokenizer) CountTokens(string) (int, error) { return 0, errors.New("no bpe data") }
func (brokenTokenizer) Truncate(string, int) (string, error) { return "", errors.New("no bpe data") }
func (brokenTokenizer) Name() string { return "broken" }

func TestFallbackTokenizer_UsesEstimatorOnError(t *testing.T) {
	f := &fallbackTokenizer{primary: brokenTokenizer{}, fallback: NewEstimatorTokenizer(), logger: zap.NewNop()}

	n, err := f.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out, err := f.Truncate(strings.Repeat("a", 40), 5)
	require.NoError(t, err)
	assert.Len(t, out, 20)
	assert.Equal(t, "broken", f.Name())
}

func TestForModel_ReturnsUsableTokenizer(t *testing.T) {
	tok := ForModel("gpt-4o", nil)
	require.NotNil(t, tok)
	n, err := tok.CountTokens("hello world")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}
