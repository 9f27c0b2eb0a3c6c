package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/Devgum/Hierarchical-Agent-Teams-Demo/workflow"

// DefaultStepLimit bounds a run when the caller passes a non-positive limit.
const DefaultStepLimit = 150

// Step is one completed engine step.
type Step struct {
	Index    int           `json:"index"`
	Graph    string        `json:"graph"`
	Node     string        `json:"node"`
	Command  Command       `json:"command"`
	State    State         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// StepFunc receives each step of a run in order. Returning an error aborts the run.
type StepFunc func(Step) error

// =============================================================================
// Step observation through context
// =============================================================================

// StepObserver sees every step of every run driven under a context,
// including runs of nested graphs.
type StepObserver func(Step)

type stepObserverKey struct{}

// WithStepObserver stores a StepObserver in the context.
func WithStepObserver(ctx context.Context, observer StepObserver) context.Context {
	if observer == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, stepObserverKey{}, observer)
}

func stepObserverFromContext(ctx context.Context) (StepObserver, bool) {
	if ctx == nil {
		return nil, false
	}
	obs, ok := ctx.Value(stepObserverKey{}).(StepObserver)
	return obs, ok && obs != nil
}

type stepLimitKey struct{}

// StepLimit returns the limit of the innermost run driving ctx.
// Nested teams use it so an inner run inherits the caller's budget.
func StepLimit(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	n, ok := ctx.Value(stepLimitKey{}).(int)
	return n, ok
}

// =============================================================================
// Engine
// =============================================================================

// Engine drives compiled graphs as a trampoline loop with an explicit step counter.
// An Engine holds no run state and is safe for concurrent use.
type Engine struct {
	logger *zap.Logger
	tracer trace.Tracer

	stepCounter  metric.Int64Counter
	stepDuration metric.Float64Histogram
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTracer overrides the tracer used for run and step spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// NewEngine creates an engine. Tracing and metrics go through the global otel providers.
func NewEngine(logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger: logger.With(zap.String("component", "workflow_engine")),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	e.stepCounter, err = meter.Int64Counter("workflow.step.total",
		metric.WithDescription("Total number of engine steps"),
		metric.WithUnit("{step}"))
	if err != nil {
		e.logger.Warn("failed to create step counter", zap.Error(err))
	}
	e.stepDuration, err = meter.Float64Histogram("workflow.step.duration",
		metric.WithDescription("Engine step duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		e.logger.Warn("failed to create step histogram", zap.Error(err))
	}
	return e
}

// Run drives graph from its start node until End or the step limit, returning the final state.
func (e *Engine) Run(ctx context.Context, graph *CompiledGraph, initial State, stepLimit int) (State, error) {
	return e.Stream(ctx, graph, initial, stepLimit, nil)
}

// Stream is Run with a callback invoked after every step, in execution order.
//
// At most stepLimit nodes are invoked. If the run still has somewhere to go
// after that, it fails with RECURSION_LIMIT. The context is checked before
// each step is scheduled.
func (e *Engine) Stream(ctx context.Context, graph *CompiledGraph, initial State, stepLimit int, fn StepFunc) (State, error) {
	if graph == nil {
		return initial, types.NewOrchestratorUnavailableError()
	}
	if stepLimit <= 0 {
		stepLimit = DefaultStepLimit
	}
	ctx = context.WithValue(ctx, stepLimitKey{}, stepLimit)

	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.graph", graph.Name()),
			attribute.Int("workflow.step_limit", stepLimit),
		),
	)
	defer span.End()

	state := initial.Clone()
	current := graph.Start()
	observer, _ := stepObserverFromContext(ctx)

	e.logger.Debug("run started",
		zap.String("graph", graph.Name()),
		zap.String("start", current),
		zap.Int("step_limit", stepLimit),
	)

	for index := 1; ; index++ {
		if index > stepLimit {
			err := types.NewRecursionLimitError(stepLimit)
			e.fail(span, graph, current, err)
			return state, err
		}
		if err := ctx.Err(); err != nil {
			cerr := types.NewCancelledError(err)
			e.fail(span, graph, current, cerr)
			return state, cerr
		}

		node, ok := graph.Node(current)
		if !ok {
			err := types.NewRoutingError(graph.Name(), current, append(graph.NodeNames(), End))
			e.fail(span, graph, current, err)
			return state, err
		}

		start := time.Now()
		cmd, err := e.invoke(ctx, graph, node, state, index)
		duration := time.Since(start)
		e.record(ctx, graph, node.Name(), duration, err)
		if err != nil {
			e.fail(span, graph, node.Name(), err)
			return state, fmt.Errorf("node %s: %w", node.Name(), err)
		}

		if cmd.Goto != End {
			if _, ok := graph.Node(cmd.Goto); !ok {
				rerr := types.NewRoutingError(graph.Name(), cmd.Goto, append(graph.NodeNames(), End))
				e.fail(span, graph, node.Name(), rerr)
				return state, rerr
			}
		}

		state = state.Apply(cmd.Update)
		step := Step{
			Index:    index,
			Graph:    graph.Name(),
			Node:     node.Name(),
			Command:  cmd,
			State:    state.Clone(),
			Duration: duration,
		}

		e.logger.Debug("step completed",
			zap.String("graph", graph.Name()),
			zap.Int("step", index),
			zap.String("node", node.Name()),
			zap.String("goto", cmd.Goto),
			zap.Int("messages", len(state.Messages)),
			zap.Duration("duration", duration),
		)

		if observer != nil {
			observer(step)
		}
		if fn != nil {
			if err := fn(step); err != nil {
				e.fail(span, graph, node.Name(), err)
				return state, err
			}
		}

		if cmd.Goto == End {
			span.SetAttributes(attribute.Int("workflow.steps", index))
			span.SetStatus(codes.Ok, "")
			e.logger.Debug("run completed",
				zap.String("graph", graph.Name()),
				zap.Int("steps", index),
			)
			return state, nil
		}
		current = cmd.Goto
	}
}

func (e *Engine) invoke(ctx context.Context, graph *CompiledGraph, node Node, state State, index int) (Command, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.graph", graph.Name()),
			attribute.String("workflow.node", node.Name()),
			attribute.Int("workflow.step", index),
		),
	)
	defer span.End()

	cmd, err := node.Invoke(ctx, state.Clone())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Command{}, err
	}
	if cmd.Goto == "" {
		err := errors.New("node returned a command without goto")
		span.SetStatus(codes.Error, err.Error())
		return Command{}, types.NewError(types.ErrRoutingInvalid, err.Error())
	}
	span.SetAttributes(attribute.String("workflow.goto", cmd.Goto))
	return cmd, nil
}

func (e *Engine) record(ctx context.Context, graph *CompiledGraph, node string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("graph", graph.Name()),
		attribute.String("node", node),
		attribute.Bool("error", err != nil),
	)
	if e.stepCounter != nil {
		e.stepCounter.Add(ctx, 1, attrs)
	}
	if e.stepDuration != nil {
		e.stepDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func (e *Engine) fail(span trace.Span, graph *CompiledGraph, node string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Warn("run aborted",
		zap.String("graph", graph.Name()),
		zap.String("node", node),
		zap.String("code", string(types.GetErrorCode(err))),
		zap.Error(err),
	)
}
