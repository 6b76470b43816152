package dialog

import (
	"context"
	"testing"

	"github.com/m3rciful/cardbot/app/filters"
	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/core/telegram/state"
)

func noop(context.Context, *Request) (Outcome, error) { return Outcome{}, nil }

func TestRegistryFirstMatchWins(t *testing.T) {
	reg, err := NewRegistry(
		Rule{Name: "upload", States: []state.State{StateMain}, Filters: []filters.Filter{filters.Command("upload")}, Handle: noop},
		Rule{Name: "any_upload", Filters: []filters.Filter{filters.Command("upload")}, Handle: noop},
		Rule{Name: "text_upload", States: []state.State{StateUpload}, Filters: []filters.Filter{filters.Text()}, Handle: noop},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	ctx := context.Background()
	cases := []struct {
		st   state.State
		text string
		want string
	}{
		{StateMain, "/upload", "upload"},
		{StateSearch, "/upload", "any_upload"},
		{StateUpload, "a,1", "text_upload"},
	}
	for _, tc := range cases {
		rule, ok := reg.Match(ctx, tc.st, model.NewMessage(0, 1, 1, "", tc.text))
		if !ok || rule.Name != tc.want {
			t.Errorf("Match(%s, %q) = %q (ok=%v), want %q", tc.st, tc.text, rule.Name, ok, tc.want)
		}
	}
	if _, ok := reg.Match(ctx, StateMain, model.NewMessage(0, 1, 1, "", "hello")); ok {
		t.Fatal("plain text in MAIN should not match")
	}
}

func TestRegistryValidates(t *testing.T) {
	if _, err := NewRegistry(Rule{Name: "a"}); err == nil {
		t.Fatal("expected error for rule without handler")
	}
	if _, err := NewRegistry(Rule{Name: "a", Handle: noop}, Rule{Name: "a", Handle: noop}); err == nil {
		t.Fatal("expected error for duplicate names")
	}
}
