package hierarchical

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm/tools"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/workflow"
	"go.uber.org/zap"
)

// WorkerDescriptor 描述团队中一个成员：名字、能力标签、汇报对象.
// 构造后不可变.
type WorkerDescriptor struct {
	name         string
	capabilities []string
	reportsTo    string
}

// NewWorkerDescriptor creates a descriptor. An empty reportsTo means the team supervisor.
func NewWorkerDescriptor(name, reportsTo string, capabilities ...string) WorkerDescriptor {
	if reportsTo == "" {
		reportsTo = SupervisorNodeName
	}
	return WorkerDescriptor{
		name:         name,
		capabilities: append([]string(nil), capabilities...),
		reportsTo:    reportsTo,
	}
}

func (d WorkerDescriptor) Name() string      { return d.name }
func (d WorkerDescriptor) ReportsTo() string { return d.reportsTo }

// Capabilities returns the tool names the worker may use.
func (d WorkerDescriptor) Capabilities() []string {
	return append([]string(nil), d.capabilities...)
}

// Capability produces a worker's single reply for the conversation so far.
// Tool-level failures should already be folded into the text; an error here
// aborts the run.
type Capability interface {
	Run(ctx context.Context, messages []types.Message) (string, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, messages []types.Message) (string, error)

func (f CapabilityFunc) Run(ctx context.Context, messages []types.Message) (string, error) {
	return f(ctx, messages)
}

// ====== ReAct capability ======

// ReActCapability runs a tool-using model loop and surfaces only the final answer.
type ReActCapability struct {
	prompt   string
	model    string
	executor *tools.ReActExecutor
}

// NewReActCapability creates a capability. prompt may be empty.
func NewReActCapability(prompt, model string, executor *tools.ReActExecutor) *ReActCapability {
	return &ReActCapability{prompt: prompt, model: model, executor: executor}
}

func (c *ReActCapability) Run(ctx context.Context, messages []types.Message) (string, error) {
	if c.executor == nil {
		return "", errors.New("react executor not configured")
	}
	runID, _ := types.RunID(ctx)
	resp, steps, err := c.executor.Execute(ctx, &llm.ChatRequest{
		TraceID:  runID,
		Model:    c.model,
		Messages: toLLMMessages(c.prompt, messages),
	})
	if err != nil {
		return "", fmt.Errorf("react loop after %d steps: %w", len(steps), err)
	}
	return resp.FirstContent(), nil
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// toLLMMessages maps the conversation onto chat messages. Messages from other
// workers are sent as user turns carrying the author in Name, the way a
// member's report reads to the next actor.
func toLLMMessages(system string, msgs []types.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: m.Content})
		default:
			out = append(out, llm.Message{
				Role:    llm.RoleUser,
				Content: m.Content,
				Name:    invalidNameChars.ReplaceAllString(m.Author, "_"),
			})
		}
	}
	return out
}

// ====== WorkerNode ======

// WorkerNode runs a Capability and reports back with exactly one message.
type WorkerNode struct {
	desc       WorkerDescriptor
	capability Capability
	logger     *zap.Logger
}

// NewWorkerNode binds a capability to a descriptor.
func NewWorkerNode(desc WorkerDescriptor, capability Capability, logger *zap.Logger) *WorkerNode {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerNode{
		desc:       desc,
		capability: capability,
		logger:     logger.With(zap.String("worker", desc.Name())),
	}
}

func (w *WorkerNode) Name() string { return w.desc.Name() }

// Descriptor returns the worker's descriptor.
func (w *WorkerNode) Descriptor() WorkerDescriptor { return w.desc }

func (w *WorkerNode) Invoke(ctx context.Context, state workflow.State) (workflow.Command, error) {
	if w.capability == nil {
		return workflow.Command{}, types.Errorf(types.ErrTeamInvalid, "worker %s has no capability", w.desc.Name())
	}
	start := time.Now()
	content, err := w.capability.Run(ctx, state.Messages)
	if err != nil {
		if ctx.Err() != nil {
			return workflow.Command{}, types.NewCancelledError(ctx.Err())
		}
		return workflow.Command{}, fmt.Errorf("worker %s: %w", w.desc.Name(), err)
	}
	w.logger.Debug("worker finished",
		zap.Int("input_messages", len(state.Messages)),
		zap.Int("output_chars", len(content)),
		zap.Duration("duration", time.Since(start)),
	)
	return workflow.Goto(w.desc.ReportsTo()).WithMessage(types.NewAgentMessage(w.desc.Name(), content)), nil
}
