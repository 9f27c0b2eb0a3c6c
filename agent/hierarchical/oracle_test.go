package hierarchical

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns canned responses and records requests.
type fakeProvider struct {
	reply    llm.Message
	err      error
	requests []*llm.ChatRequest
}

func (p *fakeProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: p.reply}}}, nil
}

func (p *fakeProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func TestLLMOracle_UsesRouteTool(t *testing.T) {
	p := &fakeProvider{reply: llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "1", Name: "route", Arguments: json.RawMessage(`{"next":"search"}`)}},
	}}
	o := NewLLMOracle(p, "m", nil)

	label, err := o.Decide(context.Background(),
		[]types.Message{types.NewUserMessage("find news"), types.NewAgentMessage("web_scraper", "page text")},
		[]string{FinishLabel, "search", "web_scraper"})
	require.NoError(t, err)
	assert.Equal(t, "search", label)

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, "route", req.ToolChoice)
	require.Len(t, req.Tools, 1)
	assert.Contains(t, string(req.Tools[0].Parameters), `"enum":["FINISH","search","web_scraper"]`)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "following workers: ['search', 'web_scraper']")
	assert.Equal(t, llm.RoleUser, req.Messages[2].Role)
	assert.Equal(t, "web_scraper", req.Messages[2].Name)
}

func TestLLMOracle_ProviderError(t *testing.T) {
	boom := errors.New("quota")
	o := NewLLMOracle(&fakeProvider{err: boom}, "", nil)
	_, err := o.Decide(context.Background(), nil, []string{FinishLabel, "a"})
	assert.ErrorIs(t, err, boom)
}

func TestLLMOracle_NilProvider(t *testing.T) {
	_, err := NewLLMOracle(nil, "", nil).Decide(context.Background(), nil, []string{FinishLabel})
	assert.True(t, types.IsErrorCode(err, types.ErrOrchestratorUnavailable))
}

func TestParseRoute(t *testing.T) {
	options := []string{FinishLabel, "doc_writer", "note_taker"}
	tests := []struct {
		name string
		msg  llm.Message
		want string
	}{
		{"tool call", llm.Message{ToolCalls: []llm.ToolCall{{Name: "route", Arguments: json.RawMessage(`{"next":"note_taker"}`)}}}, "note_taker"},
		{"other tool ignored", llm.Message{
			Content:   `{"next":"FINISH"}`,
			ToolCalls: []llm.ToolCall{{Name: "search", Arguments: json.RawMessage(`{"next":"doc_writer"}`)}},
		}, "FINISH"},
		{"content json", llm.Message{Content: ` {"next": "doc_writer"} `}, "doc_writer"},
		{"fenced json", llm.Message{Content: "Sure.\n```json\n{\"next\": \"FINISH\"}\n```"}, "FINISH"},
		{"bare label", llm.Message{Content: "note_taker."}, "note_taker"},
		{"quoted label", llm.Message{Content: `"FINISH"`}, "FINISH"},
		{"unknown passes through", llm.Message{Content: "chart_generator"}, "chart_generator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRoute(tt.msg, options))
		})
	}
}

func TestScriptedOracle(t *testing.T) {
	o := NewScriptedOracle("a", "b")
	ctx := context.Background()
	for _, want := range []string{"a", "b", FinishLabel, FinishLabel} {
		got, err := o.Decide(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 2, o.Calls())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := o.Decide(cancelled, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupervisorPrompt(t *testing.T) {
	got := SupervisorPrompt([]string{"research_team", "writing_team"})
	assert.Contains(t, got, "between the following workers: ['research_team', 'writing_team'].")
	assert.Contains(t, got, "When finished, respond with FINISH.")
}

func TestToLLMMessages(t *testing.T) {
	msgs := toLLMMessages("sys", []types.Message{
		types.NewSystemMessage("note"),
		types.NewUserMessage("q"),
		types.NewAgentMessage("doc writer", "a"),
	})
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleSystem, msgs[1].Role)
	assert.Equal(t, llm.RoleUser, msgs[2].Role)
	assert.Empty(t, msgs[2].Name)
	assert.Equal(t, "doc_writer", msgs[3].Name)

	assert.Len(t, toLLMMessages("", nil), 0)
}
