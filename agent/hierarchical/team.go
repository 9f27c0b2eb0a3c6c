package hierarchical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/workflow"
	"go.uber.org/zap"
)

// Team is a compiled supervisor plus its members. A Team holds no run state
// and may be run concurrently.
type Team struct {
	name    string
	graph   *workflow.CompiledGraph
	members []WorkerDescriptor
	options OptionSet
	engine  *workflow.Engine
}

func (t *Team) Name() string { return t.name }

// Graph returns the compiled graph; its start node is the supervisor.
func (t *Team) Graph() *workflow.CompiledGraph { return t.graph }

// Options returns the supervisor's option set.
func (t *Team) Options() OptionSet { return t.options }

// Members returns the member descriptors in declaration order.
func (t *Team) Members() []WorkerDescriptor {
	return append([]WorkerDescriptor(nil), t.members...)
}

// Run drives the team to completion.
func (t *Team) Run(ctx context.Context, initial workflow.State, stepLimit int) (workflow.State, error) {
	return t.engine.Run(types.WithTeam(ctx, t.name), t.graph, initial, stepLimit)
}

// Stream drives the team and hands each step to fn.
func (t *Team) Stream(ctx context.Context, initial workflow.State, stepLimit int, fn workflow.StepFunc) (workflow.State, error) {
	return t.engine.Stream(types.WithTeam(ctx, t.name), t.graph, initial, stepLimit, fn)
}

// =============================================================================
// TeamBuilder
// =============================================================================

type member struct {
	desc WorkerDescriptor
	node workflow.Node
}

// TeamBuilder collects members and compiles a Team. All validation happens in Build.
type TeamBuilder struct {
	name     string
	oracle   Oracle
	engine   *workflow.Engine
	observer DecisionObserver
	members  []member
	errs     []error
	logger   *zap.Logger
}

// NewTeamBuilder starts a team named name.
func NewTeamBuilder(name string, oracle Oracle, logger *zap.Logger) *TeamBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamBuilder{name: name, oracle: oracle, logger: logger}
}

// WithEngine sets the engine used by Team.Run. Defaults to a fresh engine.
func (b *TeamBuilder) WithEngine(e *workflow.Engine) *TeamBuilder {
	b.engine = e
	return b
}

// WithDecisionObserver installs a hook for routing decisions.
func (b *TeamBuilder) WithDecisionObserver(obs DecisionObserver) *TeamBuilder {
	b.observer = obs
	return b
}

// AddWorker adds a capability-backed worker.
func (b *TeamBuilder) AddWorker(desc WorkerDescriptor, capability Capability) *TeamBuilder {
	if capability == nil {
		b.errs = append(b.errs, fmt.Errorf("worker %q: capability is nil", desc.Name()))
	}
	b.members = append(b.members, member{desc: desc, node: NewWorkerNode(desc, capability, b.logger)})
	return b
}

// AddTeam adds a nested team as a member. sub may be nil; the invoker then
// reports the team as unavailable at run time.
func (b *TeamBuilder) AddTeam(name string, sub *Team) *TeamBuilder {
	desc := NewWorkerDescriptor(name, SupervisorNodeName, "team")
	b.members = append(b.members, member{desc: desc, node: NewTeamInvoker(name, sub, SupervisorNodeName, b.logger)})
	return b
}

// Build validates the team and compiles its graph: every member reports to
// the supervisor and the option set equals the members plus FINISH.
func (b *TeamBuilder) Build() (*Team, error) {
	errs := append([]error(nil), b.errs...)
	if b.name == "" {
		errs = append(errs, errors.New("team name must not be empty"))
	}
	if b.oracle == nil {
		errs = append(errs, fmt.Errorf("team %q: oracle is nil", b.name))
	}

	names := make([]string, 0, len(b.members))
	descs := make([]WorkerDescriptor, 0, len(b.members))
	for _, m := range b.members {
		if m.desc.ReportsTo() != SupervisorNodeName {
			errs = append(errs, fmt.Errorf("worker %q reports to %q, not the supervisor", m.desc.Name(), m.desc.ReportsTo()))
		}
		names = append(names, m.desc.Name())
		descs = append(descs, m.desc)
	}
	options, err := NewOptionSet(names)
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, types.NewError(types.ErrTeamInvalid, fmt.Sprintf("team %q is invalid", b.name)).
			WithCause(errors.Join(errs...))
	}

	engine := b.engine
	if engine == nil {
		engine = workflow.NewEngine(b.logger)
	}

	g := workflow.NewGraph(b.name).
		AddNode(NewSupervisorNode(b.name, b.oracle, options, b.observer, b.logger)).
		SetStart(SupervisorNodeName)
	for _, m := range b.members {
		g.AddNode(m.node)
	}
	compiled, err := g.Compile()
	if err != nil {
		return nil, types.NewError(types.ErrTeamInvalid, fmt.Sprintf("team %q: compile failed", b.name)).WithCause(err)
	}

	return &Team{
		name:    b.name,
		graph:   compiled,
		members: descs,
		options: options,
		engine:  engine,
	}, nil
}

// =============================================================================
// TeamInvoker
// =============================================================================

// TeamInvoker runs a nested team as one member of a parent team.
//
// The inner run starts from a fresh state holding only the parent's last
// message. On success the inner final message is re-attributed to the team
// and control returns to reportsTo. On failure a single error message is
// appended and the parent run ends; cancellation is returned as an error.
type TeamInvoker struct {
	name      string
	team      *Team
	reportsTo string
	stepLimit int
	logger    *zap.Logger
}

// NewTeamInvoker wraps team. The inner run inherits the outer step limit.
func NewTeamInvoker(name string, team *Team, reportsTo string, logger *zap.Logger) *TeamInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reportsTo == "" {
		reportsTo = SupervisorNodeName
	}
	return &TeamInvoker{
		name:      name,
		team:      team,
		reportsTo: reportsTo,
		logger:    logger.With(zap.String("team", name)),
	}
}

// WithStepLimit fixes the inner run's limit instead of inheriting it.
func (i *TeamInvoker) WithStepLimit(n int) *TeamInvoker {
	i.stepLimit = n
	return i
}

func (i *TeamInvoker) Name() string { return i.name }

func (i *TeamInvoker) Invoke(ctx context.Context, state workflow.State) (workflow.Command, error) {
	if i.team == nil {
		i.logger.Error("nested team is nil, cannot process request")
		return i.fail(fmt.Sprintf("Error: %s is not available, cannot process request", i.name)), nil
	}
	last, ok := state.LastMessage()
	if !ok {
		return i.fail(fmt.Sprintf("Error processing request by %s: no message to forward", i.name)), nil
	}

	limit := i.stepLimit
	if limit <= 0 {
		limit, _ = workflow.StepLimit(ctx)
	}

	start := time.Now()
	final, err := i.team.Run(ctx, workflow.NewState(last), limit)
	if err != nil {
		if ctx.Err() != nil {
			return workflow.Command{}, types.NewCancelledError(ctx.Err())
		}
		i.logger.Error("nested team failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return i.fail(fmt.Sprintf("Error processing request by %s: %v", i.name, err)), nil
	}

	out, ok := final.LastMessage()
	if !ok {
		return i.fail(fmt.Sprintf("Error processing request by %s: empty result", i.name)), nil
	}
	i.logger.Debug("nested team finished",
		zap.Int("inner_messages", len(final.Messages)),
		zap.Duration("duration", time.Since(start)),
	)
	return workflow.Goto(i.reportsTo).WithMessage(out.Attributed(i.name)), nil
}

func (i *TeamInvoker) fail(content string) workflow.Command {
	return workflow.Goto(workflow.End).WithMessage(types.NewAgentMessage(i.name, content))
}
