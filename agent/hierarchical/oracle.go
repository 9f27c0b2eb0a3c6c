package hierarchical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/workflow"
	"go.uber.org/zap"
)

// FinishLabel ends the current team's run.
const FinishLabel = "FINISH"

// SupervisorNodeName is the start node of every team.
const SupervisorNodeName = "supervisor"

// Oracle picks the next actor for a team. The returned label is validated by
// the caller; an Oracle may return anything.
type Oracle interface {
	Decide(ctx context.Context, messages []types.Message, options []string) (string, error)
}

// FuncOracle adapts a function to Oracle.
type FuncOracle func(ctx context.Context, messages []types.Message, options []string) (string, error)

func (f FuncOracle) Decide(ctx context.Context, messages []types.Message, options []string) (string, error) {
	return f(ctx, messages, options)
}

// ====== OptionSet ======

// OptionSet is the closed set of labels a supervisor accepts: its workers plus FINISH.
type OptionSet struct {
	workers []string
	set     map[string]struct{}
}

// NewOptionSet validates worker names and builds the option set.
func NewOptionSet(workers []string) (OptionSet, error) {
	if len(workers) == 0 {
		return OptionSet{}, errors.New("option set needs at least one worker")
	}
	set := make(map[string]struct{}, len(workers)+1)
	var errs []error
	for _, w := range workers {
		switch {
		case strings.TrimSpace(w) == "":
			errs = append(errs, errors.New("worker name must not be empty"))
			continue
		case w == FinishLabel, w == workflow.End, w == SupervisorNodeName:
			errs = append(errs, fmt.Errorf("worker name %q is reserved", w))
			continue
		}
		if _, dup := set[w]; dup {
			errs = append(errs, fmt.Errorf("duplicate worker %q", w))
			continue
		}
		set[w] = struct{}{}
	}
	if len(errs) > 0 {
		return OptionSet{}, errors.Join(errs...)
	}
	set[FinishLabel] = struct{}{}
	return OptionSet{workers: append([]string(nil), workers...), set: set}, nil
}

// Contains reports whether label is a legal routing decision.
func (o OptionSet) Contains(label string) bool {
	_, ok := o.set[label]
	return ok
}

// Workers returns the worker names in declaration order.
func (o OptionSet) Workers() []string {
	return append([]string(nil), o.workers...)
}

// Labels returns FINISH followed by the workers.
func (o OptionSet) Labels() []string {
	return append([]string{FinishLabel}, o.workers...)
}

// ====== ScriptedOracle ======

// ScriptedOracle replays a fixed sequence of labels and answers FINISH once
// the sequence is exhausted. Used for dry runs and tests.
type ScriptedOracle struct {
	mu     sync.Mutex
	labels []string
	pos    int
}

// NewScriptedOracle creates an oracle that returns labels in order.
func NewScriptedOracle(labels ...string) *ScriptedOracle {
	return &ScriptedOracle{labels: labels}
}

func (s *ScriptedOracle) Decide(ctx context.Context, _ []types.Message, _ []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.labels) {
		return FinishLabel, nil
	}
	label := s.labels[s.pos]
	s.pos++
	return label, nil
}

// Calls returns how many decisions have been served from the script.
func (s *ScriptedOracle) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// ====== LLMOracle ======

const routeToolName = "route"

// LLMOracle asks a chat model for the next worker. The model is offered a
// single "route" function whose argument is an enum of the options.
type LLMOracle struct {
	provider llm.Provider
	model    string
	logger   *zap.Logger
}

// NewLLMOracle creates a model-backed oracle. An empty model uses the provider default.
func NewLLMOracle(provider llm.Provider, model string, logger *zap.Logger) *LLMOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMOracle{
		provider: provider,
		model:    model,
		logger:   logger.With(zap.String("component", "oracle")),
	}
}

func routeSchema(options []string) llm.ToolSchema {
	params, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"next": map[string]any{"type": "string", "enum": options},
		},
		"required": []string{"next"},
	})
	return llm.ToolSchema{
		Name:        routeToolName,
		Description: routeToolDescription,
		Parameters:  params,
	}
}

func (o *LLMOracle) Decide(ctx context.Context, messages []types.Message, options []string) (string, error) {
	if o.provider == nil {
		return "", types.NewOrchestratorUnavailableError()
	}
	members := make([]string, 0, len(options))
	for _, opt := range options {
		if opt != FinishLabel {
			members = append(members, opt)
		}
	}

	runID, _ := types.RunID(ctx)
	team, _ := types.Team(ctx)
	req := &llm.ChatRequest{
		TraceID:    runID,
		Model:      o.model,
		Messages:   toLLMMessages(SupervisorPrompt(members), messages),
		Tools:      []llm.ToolSchema{routeSchema(options)},
		ToolChoice: routeToolName,
	}
	resp, err := o.provider.Completion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("routing completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("routing completion returned no choices")
	}
	label := parseRoute(resp.Choices[0].Message, options)
	o.logger.Debug("routing decision",
		zap.String("team", team),
		zap.String("label", label),
		zap.Int("messages", len(messages)),
	)
	return label, nil
}

type routeArgs struct {
	Next string `json:"next"`
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseRoute extracts a label from a model reply. It tries, in order, the
// route tool call, the content as JSON, a fenced JSON block, and finally an
// exact option match in the bare content. Unparseable replies come back as
// the raw trimmed content so the supervisor reports them.
func parseRoute(msg llm.Message, options []string) string {
	for _, call := range msg.ToolCalls {
		if call.Name != routeToolName {
			continue
		}
		var a routeArgs
		if err := json.Unmarshal(call.Arguments, &a); err == nil && a.Next != "" {
			return a.Next
		}
	}

	content := strings.TrimSpace(msg.Content)
	var a routeArgs
	if err := json.Unmarshal([]byte(content), &a); err == nil && a.Next != "" {
		return a.Next
	}
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &a); err == nil && a.Next != "" {
			return a.Next
		}
	}
	bare := strings.Trim(content, "\"'`. \n")
	for _, opt := range options {
		if bare == opt {
			return opt
		}
	}
	return content
}
