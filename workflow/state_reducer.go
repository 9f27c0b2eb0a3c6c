package workflow

import (
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
)

// End is the terminal sentinel. A Command whose Goto is End finishes the run.
const End = "__end__"

// Reducer defines how a channel's current value merges with an update.
type Reducer[T any] func(current T, update T) T

// Built-in reducers

// LastValueReducer returns the most recent value.
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together without aliasing current.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// State is the conversation state threaded through every step of a run.
//
// Messages only grow during a run. Next is either a worker name of the
// enclosing team or End.
type State struct {
	Messages []types.Message `json:"messages"`
	Next     string          `json:"next,omitempty"`
}

// NewState returns a state seeded with the given messages.
func NewState(msgs ...types.Message) State {
	return State{Messages: append([]types.Message(nil), msgs...)}
}

// LastMessage returns the most recent message.
func (s State) LastMessage() (types.Message, bool) {
	if len(s.Messages) == 0 {
		return types.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a copy that shares no backing array with s.
func (s State) Clone() State {
	return State{
		Messages: append([]types.Message(nil), s.Messages...),
		Next:     s.Next,
	}
}

// Update is a partial State returned by a node.
// Messages are appended; a non-nil Next replaces the current value.
type Update struct {
	Messages []types.Message `json:"messages,omitempty"`
	Next     *string         `json:"next,omitempty"`
}

// Command is the output of every node: where to go and what to merge.
type Command struct {
	Goto   string `json:"goto"`
	Update Update `json:"update"`
}

// Goto returns a Command routing to target with an empty update.
func Goto(target string) Command {
	return Command{Goto: target}
}

// WithMessage appends one message to the command's update.
func (c Command) WithMessage(m types.Message) Command {
	c.Update.Messages = append(append([]types.Message(nil), c.Update.Messages...), m)
	return c
}

// WithNext sets the replacement value for State.Next.
func (c Command) WithNext(next string) Command {
	c.Update.Next = &next
	return c
}

var (
	messagesReducer = AppendReducer[types.Message]()
	nextReducer     = LastValueReducer[string]()
)

// Apply merges u into s and returns the resulting state. s is not modified.
func (s State) Apply(u Update) State {
	out := State{
		Messages: messagesReducer(s.Messages, u.Messages),
		Next:     s.Next,
	}
	if u.Next != nil {
		out.Next = nextReducer(s.Next, *u.Next)
	}
	return out
}
