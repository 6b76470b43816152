package dialog

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/m3rciful/cardbot/core/telegram/state"
)

// Dialogue states.
const (
	StateNew             state.State = "NEW"
	StateRequestLocation state.State = "REQUEST_LOCATION"
	StateMain            state.State = "MAIN"
	StateUpload          state.State = "UPLOAD"
	StateDeletePending   state.State = "DELETE_PENDING"
	StateSearch          state.State = "SEARCH"
)

// AllStates lists every state a session can be in.
var AllStates = []state.State{
	StateNew, StateRequestLocation, StateMain, StateUpload, StateDeletePending, StateSearch,
}

// Outcome events returned by handlers. An empty event keeps the current state.
const (
	EventStartNew        = "start.new"
	EventStartKnown      = "start.known"
	EventLocationSet     = "location.set"
	EventUploadBegin     = "upload.begin"
	EventUploadInvalid   = "upload.invalid"
	EventUploadDone      = "upload.done"
	EventUploadRejected  = "upload.rejected"
	EventDeleteBegin     = "delete.begin"
	EventDeleteConfirmed = "delete.confirmed"
	EventDeleteDeclined  = "delete.declined"
	EventSearchBegin     = "search.begin"
	EventSearchDone      = "search.done"
	EventCancel          = "cancel"
	EventReset           = "reset"
)

// Transition moves sessions in any of From to To when Event is reported.
type Transition struct {
	Event string
	From  []state.State
	To    state.State
}

// DefaultTransitions is the transition table of the card bot.
func DefaultTransitions() []Transition {
	return []Transition{
		{EventStartNew, AllStates, StateRequestLocation},
		{EventStartKnown, AllStates, StateMain},
		{EventLocationSet, []state.State{StateRequestLocation}, StateMain},
		{EventUploadBegin, []state.State{StateMain}, StateUpload},
		{EventUploadInvalid, []state.State{StateUpload}, StateUpload},
		{EventUploadDone, []state.State{StateUpload}, StateMain},
		{EventUploadRejected, []state.State{StateUpload}, StateMain},
		{EventDeleteBegin, []state.State{StateMain}, StateDeletePending},
		{EventDeleteConfirmed, []state.State{StateDeletePending}, StateMain},
		{EventDeleteDeclined, []state.State{StateDeletePending}, StateMain},
		{EventSearchBegin, []state.State{StateMain}, StateSearch},
		{EventSearchDone, []state.State{StateSearch}, StateMain},
		{EventCancel, []state.State{StateUpload, StateDeletePending, StateSearch}, StateMain},
		{EventReset, AllStates, StateMain},
	}
}

// ErrUndeclaredTransition is returned for (state, event) pairs missing from the table.
var ErrUndeclaredTransition = errors.New("undeclared transition")

// Machine maps (state, event) to the next state.
type Machine struct {
	events fsm.Events
}

// NewMachine validates the table and builds a Machine.
func NewMachine(transitions []Transition) (*Machine, error) {
	seen := make(map[string]map[state.State]bool)
	events := make(fsm.Events, 0, len(transitions))
	for _, tr := range transitions {
		if tr.Event == "" || tr.To == state.StateNone || len(tr.From) == 0 {
			return nil, fmt.Errorf("incomplete transition %+v", tr)
		}
		if seen[tr.Event] == nil {
			seen[tr.Event] = make(map[state.State]bool)
		}
		src := make([]string, 0, len(tr.From))
		for _, s := range tr.From {
			if seen[tr.Event][s] {
				return nil, fmt.Errorf("duplicate transition %s from %s", tr.Event, s)
			}
			seen[tr.Event][s] = true
			src = append(src, string(s))
		}
		events = append(events, fsm.EventDesc{Name: tr.Event, Src: src, Dst: string(tr.To)})
	}
	return &Machine{events: events}, nil
}

// Next returns the state reached from `from` on event.
func (m *Machine) Next(ctx context.Context, from state.State, event string) (state.State, error) {
	if event == "" {
		return from, nil
	}
	f := fsm.NewFSM(string(from), m.events, nil)
	err := f.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	switch {
	case err == nil, errors.As(err, &noTransition):
		return state.State(f.Current()), nil
	default:
		return from, fmt.Errorf("%w: %s on %q: %v", ErrUndeclaredTransition, from, event, err)
	}
}
