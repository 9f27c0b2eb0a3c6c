package workflow

import (
	"context"
	"testing"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

var propertyWorkers = []string{"A", "B", "C"}

func buildPropertyTeam(labels []string) *CompiledGraph {
	g := NewGraph("property").AddNode(scriptedRouter("supervisor", labels...)).SetStart("supervisor")
	for _, w := range propertyWorkers {
		g.AddNode(echoWorker(w, "supervisor", nil))
	}
	compiled, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return compiled
}

func isLegalTarget(label string) bool {
	if label == End || label == "supervisor" {
		return true
	}
	for _, w := range propertyWorkers {
		if w == label {
			return true
		}
	}
	return false
}

// Message count grows by exactly one per worker step and stays flat per supervisor step.
func TestProperty_MessageGrowthPerStep(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("worker steps append one message, supervisor steps append none", prop.ForAll(
		func(picks []int) bool {
			labels := make([]string, len(picks))
			for i, p := range picks {
				labels[i] = propertyWorkers[p]
			}
			g := buildPropertyTeam(labels)
			prev := 1
			ok := true
			_, err := NewEngine(nil).Stream(context.Background(), g, NewState(types.NewUserMessage("task")), 1000, func(s Step) error {
				got := len(s.State.Messages)
				want := prev + 1
				if s.Node == "supervisor" {
					want = prev
				}
				if got != want || !isLegalTarget(s.Command.Goto) {
					ok = false
				}
				if s.Node == "supervisor" && (s.Command.Update.Next == nil || *s.Command.Update.Next != s.Command.Goto) {
					ok = false
				}
				prev = got
				return nil
			})
			return err == nil && ok && prev == 1+len(labels)
		},
		gen.SliceOf(gen.IntRange(0, len(propertyWorkers)-1)),
	))

	properties.TestingRun(t)
}

// A run needing n steps succeeds with limit n and fails with limit n-1.
func TestProperty_StepLimitIsExact(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("step limit aborts iff the run needs more steps", prop.ForAll(
		func(dispatches int) bool {
			labels := make([]string, dispatches)
			for i := range labels {
				labels[i] = propertyWorkers[i%len(propertyWorkers)]
			}
			needed := 2*dispatches + 1

			_, err := NewEngine(nil).Run(context.Background(), buildPropertyTeam(labels), State{}, needed)
			if err != nil {
				return false
			}
			_, err = NewEngine(nil).Run(context.Background(), buildPropertyTeam(labels), State{}, needed-1)
			if needed-1 == 0 {
				// non-positive limits fall back to the default
				return err == nil
			}
			return types.IsErrorCode(err, types.ErrRecursionLimit)
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestState_ApplyAppendsAndReplaces(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		before := rapid.IntRange(0, 10).Draw(rt, "before")
		added := rapid.IntRange(0, 5).Draw(rt, "added")
		setNext := rapid.Bool().Draw(rt, "setNext")
		next := rapid.SampledFrom([]string{"A", "B", End}).Draw(rt, "next")

		s := State{Next: "prev"}
		for i := 0; i < before; i++ {
			s.Messages = append(s.Messages, types.NewUserMessage("m"))
		}
		u := Update{}
		for i := 0; i < added; i++ {
			u.Messages = append(u.Messages, types.NewAgentMessage("w", "n"))
		}
		if setNext {
			u.Next = &next
		}

		out := s.Apply(u)

		if len(out.Messages) != before+added {
			rt.Fatalf("expected %d messages, got %d", before+added, len(out.Messages))
		}
		if len(s.Messages) != before {
			rt.Fatalf("Apply mutated the receiver")
		}
		for i := 0; i < before; i++ {
			if out.Messages[i].Role != types.RoleUser {
				rt.Fatalf("prior message %d was reordered", i)
			}
		}
		wantNext := "prev"
		if setNext {
			wantNext = next
		}
		if out.Next != wantNext {
			rt.Fatalf("expected next %q, got %q", wantNext, out.Next)
		}
	})
}
