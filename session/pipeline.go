package session

import (
	"context"
	"errors"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"

// Terminal event texts.
const (
	CompletedMessage   = "Processing completed"
	StreamErrorPrefix  = "Error generating streaming response: "
	ProcessErrorPrefix = "Processing error: "
)

// EventType tags a stream event.
type EventType string

const (
	EventStep  EventType = "step"
	EventError EventType = "error"
	EventEnd   EventType = "end"
)

// Metadata locates an event inside the run.
type Metadata struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id,omitempty"`
	Step      int    `json:"step,omitempty"`
	Graph     string `json:"graph,omitempty"`
	Node      string `json:"node,omitempty"`
	Author    string `json:"author,omitempty"`
	Next      string `json:"next,omitempty"`
}

// Event is one element of a query stream.
type Event struct {
	Type     EventType `json:"type"`
	Content  string    `json:"content"`
	Metadata Metadata  `json:"metadata"`
	Err      error     `json:"-"`
}

// Terminal reports whether e is the final event of its stream.
func (e Event) Terminal() bool { return e.Type == EventEnd }

// RunRecord summarizes one finished query run.
type RunRecord struct {
	RunID      string
	SessionID  string
	Query      string
	Status     string
	Steps      int
	Output     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run statuses.
const (
	RunCompleted   = "completed"
	RunFailed      = "failed"
	RunCancelled   = "cancelled"
	RunUnavailable = "unavailable"
)

// Recorder persists run summaries.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRecorder stores a summary of every run.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPipelineMetrics reports run outcomes to m.
func WithPipelineMetrics(m Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithBuffer sets the event channel capacity.
func WithBuffer(n int) PipelineOption {
	return func(p *Pipeline) { p.buffer = n }
}

// WithTerminalTimeout bounds how long the terminal events wait for a reader
// once the run context is done.
func WithTerminalTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.terminalTimeout = d }
}

// Pipeline turns a query against a session into an ordered event stream.
type Pipeline struct {
	recorder        Recorder
	metrics         Metrics
	buffer          int
	terminalTimeout time.Duration
	tracer          trace.Tracer
	logger          *zap.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		buffer:          16,
		terminalTimeout: 5 * time.Second,
		tracer:          otel.Tracer(instrumentationName),
		logger:          logger.With(zap.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start claims sess and begins the run. It fails fast with SESSION_BUSY when
// another run holds the session; every other failure is delivered on the
// stream. The channel is closed after the end event.
func (p *Pipeline) Start(ctx context.Context, sess *Session, query string, stepLimit int) (<-chan Event, error) {
	if sess == nil {
		return p.unavailable(""), nil
	}
	if !sess.TryAcquire() {
		return nil, types.NewError(types.ErrSessionBusy, "session already has a run in progress")
	}
	ch := make(chan Event, p.buffer)
	go func() {
		defer close(ch)
		defer sess.Release()
		p.run(ctx, sess, query, stepLimit, ch)
	}()
	return ch, nil
}

// Stream is Start with a busy session reported on the stream.
func (p *Pipeline) Stream(ctx context.Context, sess *Session, query string, stepLimit int) <-chan Event {
	ch, err := p.Start(ctx, sess, query, stepLimit)
	if err == nil {
		return ch
	}
	out := make(chan Event, 2)
	meta := Metadata{SessionID: sess.ID()}
	out <- Event{Type: EventError, Content: err.Error(), Metadata: meta, Err: err}
	out <- Event{Type: EventEnd, Content: err.Error(), Metadata: meta, Err: err}
	close(out)
	return out
}

func (p *Pipeline) unavailable(sessionID string) <-chan Event {
	err := types.NewOrchestratorUnavailableError()
	meta := Metadata{SessionID: sessionID}
	out := make(chan Event, 2)
	out <- Event{Type: EventError, Content: err.Message, Metadata: meta, Err: err}
	out <- Event{Type: EventEnd, Content: err.Message, Metadata: meta, Err: err}
	close(out)
	p.logger.Warn("query against session without orchestrator", zap.String("session_id", sessionID))
	return out
}

func (p *Pipeline) run(ctx context.Context, sess *Session, query string, stepLimit int, ch chan<- Event) {
	runID := uuid.NewString()
	started := time.Now()
	meta := Metadata{SessionID: sess.ID(), RunID: runID}
	logger := p.logger.With(zap.String("session_id", sess.ID()), zap.String("run_id", runID))

	rec := RunRecord{RunID: runID, SessionID: sess.ID(), Query: query, StartedAt: started}

	team := sess.Team()
	if team == nil {
		err := types.NewOrchestratorUnavailableError()
		p.terminal(ctx, ch, Event{Type: EventError, Content: err.Message, Metadata: meta, Err: err})
		p.terminal(ctx, ch, Event{Type: EventEnd, Content: err.Message, Metadata: meta, Err: err})
		rec.Status, rec.Error = RunUnavailable, err.Message
		p.finish(ctx, rec, started)
		return
	}

	ctx, span := p.tracer.Start(ctx, "session.query", trace.WithAttributes(
		attribute.String("session.id", sess.ID()),
		attribute.String("run.id", runID),
		attribute.Int("run.step_limit", stepLimit),
	))
	defer span.End()

	ctx = types.WithSessionID(ctx, sess.ID())
	ctx = types.WithRunID(ctx, runID)

	steps := 0
	var sendErr error
	observer := func(s workflow.Step) {
		if sendErr != nil {
			return
		}
		steps++
		ev := stepEvent(meta, steps, s)
		select {
		case ch <- ev:
		case <-ctx.Done():
			sendErr = ctx.Err()
		}
	}
	ctx = workflow.WithStepObserver(ctx, observer)

	logger.Info("run started", zap.Int("step_limit", stepLimit), zap.Int("query_chars", len(query)))
	final, err := team.Stream(ctx, workflow.NewState(types.NewUserMessage(query)), stepLimit, nil)
	if err == nil && sendErr != nil {
		err = types.NewCancelledError(sendErr)
	}
	rec.Steps = steps

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rec.Status, rec.Error = RunFailed, err.Error()
		if types.IsErrorCode(err, types.ErrCancelled) || errors.Is(err, context.Canceled) {
			rec.Status = RunCancelled
		}
		logger.Warn("run failed", zap.Int("steps", steps), zap.Error(err))
		p.terminal(ctx, ch, Event{Type: EventError, Content: StreamErrorPrefix + err.Error(), Metadata: meta, Err: err})
		p.terminal(ctx, ch, Event{Type: EventEnd, Content: ProcessErrorPrefix + err.Error(), Metadata: meta, Err: err})
		p.finish(ctx, rec, started)
		return
	}

	if last, ok := final.LastMessage(); ok {
		rec.Output = last.Content
	}
	rec.Status = RunCompleted
	span.SetStatus(codes.Ok, "")
	logger.Info("run completed", zap.Int("steps", steps), zap.Duration("duration", time.Since(started)))
	p.terminal(ctx, ch, Event{Type: EventEnd, Content: CompletedMessage, Metadata: meta})
	p.finish(ctx, rec, started)
}

func stepEvent(meta Metadata, n int, s workflow.Step) Event {
	meta.Step = n
	meta.Graph = s.Graph
	meta.Node = s.Node
	if s.Command.Update.Next != nil {
		meta.Next = *s.Command.Update.Next
	}
	// supervisor 只改 Next 不追加消息, 此时取合并后状态的最后一条
	last, ok := s.State.LastMessage()
	if msgs := s.Command.Update.Messages; len(msgs) > 0 {
		last, ok = msgs[len(msgs)-1], true
	}
	if ok {
		meta.Author = last.Author
	}
	return Event{Type: EventStep, Content: last.Content, Metadata: meta}
}

// terminal delivers ev even after ctx is done, for as long as a reader
// shows up within the terminal timeout.
func (p *Pipeline) terminal(ctx context.Context, ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	if ctx.Err() == nil {
		select {
		case ch <- ev:
			return
		case <-ctx.Done():
		}
	}
	timer := time.NewTimer(p.terminalTimeout)
	defer timer.Stop()
	select {
	case ch <- ev:
	case <-timer.C:
		p.logger.Debug("terminal event dropped, no reader", zap.String("type", string(ev.Type)))
	}
}

func (p *Pipeline) finish(ctx context.Context, rec RunRecord, started time.Time) {
	rec.FinishedAt = time.Now()
	if p.metrics != nil {
		p.metrics.RecordRun(rec.Status, rec.Steps, rec.FinishedAt.Sub(started))
	}
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Warn("failed to record run", zap.String("run_id", rec.RunID), zap.Error(err))
	}
}
