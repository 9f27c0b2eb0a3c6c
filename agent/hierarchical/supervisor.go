package hierarchical

import (
	"context"
	"fmt"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/workflow"
	"go.uber.org/zap"
)

// DecisionObserver is told about every routing decision, including rejected ones.
type DecisionObserver func(team, label string, valid bool)

// SupervisorNode asks the oracle for the next actor and routes there.
// It never adds messages; its only update is Next.
type SupervisorNode struct {
	team     string
	oracle   Oracle
	options  OptionSet
	observer DecisionObserver
	logger   *zap.Logger
}

// NewSupervisorNode creates the supervisor for team.
func NewSupervisorNode(team string, oracle Oracle, options OptionSet, observer DecisionObserver, logger *zap.Logger) *SupervisorNode {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupervisorNode{
		team:     team,
		oracle:   oracle,
		options:  options,
		observer: observer,
		logger:   logger.With(zap.String("team", team)),
	}
}

func (s *SupervisorNode) Name() string { return SupervisorNodeName }

// Options returns the labels this supervisor accepts.
func (s *SupervisorNode) Options() OptionSet { return s.options }

func (s *SupervisorNode) Invoke(ctx context.Context, state workflow.State) (workflow.Command, error) {
	ctx = types.WithTeam(ctx, s.team)
	labels := s.options.Labels()

	label, err := s.oracle.Decide(ctx, state.Messages, labels)
	if err != nil {
		if ctx.Err() != nil {
			return workflow.Command{}, types.NewCancelledError(ctx.Err())
		}
		return workflow.Command{}, fmt.Errorf("supervisor of %s: %w", s.team, err)
	}

	valid := s.options.Contains(label)
	if s.observer != nil {
		s.observer(s.team, label, valid)
	}
	if !valid {
		s.logger.Warn("oracle returned label outside option set",
			zap.String("label", label),
			zap.Strings("options", labels),
		)
		return workflow.Command{}, types.NewRoutingError(s.team, label, labels)
	}

	next := label
	if label == FinishLabel {
		next = workflow.End
	}
	s.logger.Debug("routing", zap.String("next", next), zap.Int("messages", len(state.Messages)))
	return workflow.Goto(next).WithNext(next), nil
}
