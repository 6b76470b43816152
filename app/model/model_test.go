package model

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in, cmd, args string
	}{
		{"/start", "start", ""},
		{"/delete 1 2", "delete", "1 2"},
		{"/Delete@CardBot  1, 2 ", "delete", "1, 2"},
		{"/upload\na,1", "upload", "a,1"},
		{"hello", "", ""},
		{"/", "", ""},
		{"  /help", "help", ""},
	}
	for _, tc := range cases {
		cmd, args := ParseCommand(tc.in)
		if cmd != tc.cmd || args != tc.args {
			t.Errorf("ParseCommand(%q) = (%q, %q), want (%q, %q)", tc.in, cmd, args, tc.cmd, tc.args)
		}
	}
}

func TestStatusActive(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusReserved, 8} {
		if !s.Active() {
			t.Errorf("%v should be active", s)
		}
	}
	for _, s := range []Status{StatusArchived, 12} {
		if s.Active() {
			t.Errorf("%v should not be active", s)
		}
	}
	if StatusArchived.String() != "archived" {
		t.Fatalf("unexpected name %q", StatusArchived.String())
	}
}
