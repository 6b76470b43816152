package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "cardbot dev (local") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestMigrateRequiresReadableConfig(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", "/nonexistent/cardbot.yaml"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
