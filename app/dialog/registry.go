// Package dialog routes messages to rules and commits their outcome.
package dialog

import (
	"context"
	"fmt"
	"slices"

	"github.com/m3rciful/cardbot/app/filters"
	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/core/telegram/state"
)

// HandleFunc runs a rule. The returned event selects the next state.
type HandleFunc func(ctx context.Context, req *Request) (Outcome, error)

// Outcome is what a handler produced.
type Outcome struct {
	Reply model.Reply
	Event string
	// ClearData drops all transitional session data.
	ClearData bool
}

// Rule is one entry of the routing table.
type Rule struct {
	Name string
	// States the rule applies to; nil means any state.
	States  []state.State
	Filters []filters.Filter
	Handle  HandleFunc
}

func (r Rule) matches(ctx context.Context, st state.State, msg model.Message) bool {
	if r.States != nil && !slices.Contains(r.States, st) {
		return false
	}
	for _, f := range r.Filters {
		if !f(ctx, msg.UserID, msg) {
			return false
		}
	}
	return true
}

// Registry is an ordered rule table. The first eligible rule wins.
type Registry struct {
	rules []Rule
}

// NewRegistry validates rules and keeps their order.
func NewRegistry(rules ...Rule) (*Registry, error) {
	names := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
		if r.Handle == nil {
			return nil, fmt.Errorf("rule %q has no handler", r.Name)
		}
		if _, dup := names[r.Name]; dup {
			return nil, fmt.Errorf("duplicate rule %q", r.Name)
		}
		names[r.Name] = struct{}{}
	}
	return &Registry{rules: slices.Clone(rules)}, nil
}

// Match returns the first rule eligible for msg in state st.
func (r *Registry) Match(ctx context.Context, st state.State, msg model.Message) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.matches(ctx, st, msg) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Names lists rule names in priority order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.Name
	}
	return out
}
