package telegram

import (
	"testing"

	"github.com/m3rciful/cardbot/core/telegram/commands"
)

func TestRegistryMenus(t *testing.T) {
	reg := NewRegistry()
	for _, cmd := range []commands.Command{
		{Name: "/start", Description: "Start"},
		{Name: "stats", Description: "Stats", AdminOnly: true},
		{Name: "debug", Description: "Debug", Hidden: true},
		{Name: "Help", Description: "Help"},
	} {
		if err := reg.RegisterCommand(cmd); err != nil {
			t.Fatalf("register %s: %v", cmd.Name, err)
		}
	}

	public := reg.ListCommands(false)
	if len(public) != 2 || public[0].Text != "help" || public[1].Text != "start" {
		t.Fatalf("public menu = %+v", public)
	}
	if full := reg.ListCommands(true); len(full) != 3 {
		t.Fatalf("admin menu = %+v", full)
	}

	if _, ok := reg.LookupCommand("/STATS"); !ok {
		t.Fatal("lookup with slash failed")
	}
	if _, ok := reg.LookupCommand("missing"); ok {
		t.Fatal("lookup found unknown command")
	}
}

func TestRegistryRejects(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCommand(commands.Command{Name: "start"}); err == nil {
		t.Fatal("expected error without description")
	}
	if err := reg.RegisterCommand(commands.Command{Name: "start", Description: "a"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCommand(commands.Command{Name: "/start", Description: "b"}); err == nil {
		t.Fatal("expected duplicate error")
	}
}
