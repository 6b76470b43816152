package messages

import "testing"

func TestOverrides(t *testing.T) {
	c, err := New(map[string]string{Cancelled: "Aborted."})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Get(Cancelled); got != "Aborted." {
		t.Fatalf("cancelled = %q", got)
	}
	if got := c.Get(UploadLimit, 10); got != "Upload rejected: your limit is 10 cards." {
		t.Fatalf("formatted = %q", got)
	}
}

func TestUnknownOverrideRejected(t *testing.T) {
	if _, err := New(map[string]string{"nope": "x"}); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
