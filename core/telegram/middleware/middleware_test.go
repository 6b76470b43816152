package middleware

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func newContext(t *testing.T, updateID int, userID int64, text string) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("offline bot: %v", err)
	}
	return b.NewContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func TestRateLimitBurst(t *testing.T) {
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Burst:    2,
		OnLimited: func(tele.Context) error {
			limited++
			return nil
		},
	})
	passed := 0
	h := mw(func(tele.Context) error {
		passed++
		return nil
	})

	for i := 1; i <= 3; i++ {
		if err := h(newContext(t, i, 7, "hi")); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if passed != 2 || limited != 1 {
		t.Fatalf("passed=%d limited=%d, want 2 and 1", passed, limited)
	}

	// Another user has a bucket of their own.
	if err := h(newContext(t, 4, 8, "hi")); err != nil {
		t.Fatalf("other user: %v", err)
	}
	if passed != 3 {
		t.Fatalf("other user was limited")
	}
}

func TestRateLimitExclusion(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"text": {}},
	})
	passed := 0
	h := mw(func(tele.Context) error {
		passed++
		return nil
	})
	for i := 1; i <= 3; i++ {
		_ = h(newContext(t, i, 7, "hi"))
	}
	if passed != 3 {
		t.Fatalf("passed = %d, want 3", passed)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error {
		panic("boom")
	})
	if err := h(newContext(t, 1, 7, "hi")); err == nil {
		t.Fatal("expected panic to surface as error")
	}

	want := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return want })
	if err := h(newContext(t, 2, 7, "hi")); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestMessageKind(t *testing.T) {
	cases := map[string]*tele.Message{
		"text":     {Text: "hi"},
		"document": {Document: &tele.Document{}},
		"photo":    {Photo: &tele.Photo{}},
		"sticker":  {Sticker: &tele.Sticker{}},
		"other":    {},
	}
	for want, m := range cases {
		if got := MessageKind(m); got != want {
			t.Fatalf("MessageKind = %q, want %q", got, want)
		}
	}
}

func TestAlreadyLogged(t *testing.T) {
	if alreadyLogged(991) {
		t.Fatal("first receipt reported as logged")
	}
	if !alreadyLogged(991) {
		t.Fatal("second receipt not deduplicated")
	}
}
