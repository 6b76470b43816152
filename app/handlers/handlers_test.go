package handlers

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/cardbot/app/dialog"
	"github.com/m3rciful/cardbot/app/filters"
	"github.com/m3rciful/cardbot/app/messages"
	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/app/store"
	"github.com/m3rciful/cardbot/core/database"
	"github.com/m3rciful/cardbot/core/telegram/state"
	"github.com/m3rciful/cardbot/migrations"
)

type testBot struct {
	t        *testing.T
	d        *dialog.Dispatcher
	sessions state.Store
	records  *store.Store
	texts    *messages.Catalogue
}

func openRecords(t *testing.T) *store.Store {
	t.Helper()
	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "cards.db")}
	if err := database.RunMigrations(cfg, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := store.New(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestBot(t *testing.T, records *store.Store, cfg Config) *testBot {
	t.Helper()
	texts := messages.Default()
	roles, err := filters.NewRoleCache(records, 100, time.Minute)
	if err != nil {
		t.Fatalf("role cache: %v", err)
	}
	t.Cleanup(roles.Close)

	reg, err := dialog.NewRegistry(New(cfg, texts, roles).Rules()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	machine, err := dialog.NewMachine(dialog.DefaultTransitions())
	if err != nil {
		t.Fatalf("machine: %v", err)
	}
	sessions := state.NewMemoryStore()
	d, err := dialog.NewDispatcher(reg, machine, sessions, records, dialog.Options{Texts: texts})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	return &testBot{t: t, d: d, sessions: sessions, records: records, texts: texts}
}

func (b *testBot) send(uid int64, text string) model.Reply {
	b.t.Helper()
	reply, err := b.d.Dispatch(context.Background(), model.NewMessage(0, uid, uid, "user", text))
	if err != nil {
		b.t.Fatalf("dispatch %q: %v", text, err)
	}
	return reply
}

func (b *testBot) state(uid int64) state.Session {
	b.t.Helper()
	sess, _, err := b.sessions.Get(context.Background(), uid)
	if err != nil {
		b.t.Fatalf("session: %v", err)
	}
	return sess
}

func (b *testBot) expectState(uid int64, want state.State) {
	b.t.Helper()
	if got := b.state(uid).State; got != want {
		b.t.Fatalf("state = %s, want %s", got, want)
	}
}

func (b *testBot) activeCount(uid int64) int {
	b.t.Helper()
	ctx := context.Background()
	tx, err := b.records.Begin(ctx)
	if err != nil {
		b.t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()
	n, err := tx.CountItems(ctx, store.ActiveOf(uid))
	if err != nil {
		b.t.Fatalf("count: %v", err)
	}
	return n
}

// register walks uid through onboarding into MAIN.
func (b *testBot) register(uid int64) {
	b.t.Helper()
	b.send(uid, "/start")
	b.send(uid, "Berlin")
	b.expectState(uid, dialog.StateMain)
}

func (b *testBot) upload(uid int64, payload string) model.Reply {
	b.t.Helper()
	b.send(uid, "/upload")
	return b.send(uid, payload)
}

func TestOnboarding(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{})

	if r := b.send(1, "/start"); r.Text != b.texts.Get(messages.Greetings) {
		t.Fatalf("greeting = %q", r.Text)
	}
	b.expectState(1, dialog.StateRequestLocation)

	r := b.send(1, "Berlin")
	if r.Text != b.texts.Get(messages.SignUpComplete) || !r.RemoveKeyboard {
		t.Fatalf("location reply = %+v", r)
	}
	b.expectState(1, dialog.StateMain)

	if r := b.send(1, "/start"); r.Text != b.texts.Get(messages.WelcomeBack) {
		t.Fatalf("second start = %q", r.Text)
	}
	b.expectState(1, dialog.StateMain)
}

func TestStateFollowsTransitionTable(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{})
	steps := []struct {
		text string
		want state.State
	}{
		{"/start", dialog.StateRequestLocation},
		{"/upload", dialog.StateRequestLocation}, // not text: unmatched
		{"Paris", dialog.StateMain},
		{"hello", dialog.StateMain},
		{"/upload", dialog.StateUpload},
		{"broken", dialog.StateUpload},
		{"a,1", dialog.StateMain},
		{"/delete 1", dialog.StateDeletePending},
		{"no", dialog.StateMain},
		{"/search", dialog.StateSearch},
		{"/cancel", dialog.StateMain},
		{"/mycards", dialog.StateMain},
		{"/clear", dialog.StateMain},
	}
	for i, s := range steps {
		b.send(5, s.text)
		if got := b.state(5).State; got != s.want {
			t.Fatalf("step %d (%q): state = %s, want %s", i, s.text, got, s.want)
		}
	}
}

func TestUploadLimit(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{ItemLimit: 3})
	b.register(1)

	if r := b.upload(1, "a,1\nb,2"); r.Text != b.texts.Get(messages.UploadComplete, 2) {
		t.Fatalf("upload reply = %q", r.Text)
	}
	b.expectState(1, dialog.StateMain)

	if r := b.upload(1, "c,3\nd,4"); r.Text != b.texts.Get(messages.UploadLimit, 3) {
		t.Fatalf("over-limit reply = %q", r.Text)
	}
	b.expectState(1, dialog.StateMain)
	if n := b.activeCount(1); n != 2 {
		t.Fatalf("rejected upload inserted rows: count = %d", n)
	}

	// Reaching the limit exactly is allowed.
	b.upload(1, "c,3")
	if n := b.activeCount(1); n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

func TestUploadParseFailureStays(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{})
	b.register(1)

	if r := b.upload(1, "a,1,extra"); r.Text != b.texts.Get(messages.UploadParseFailed) {
		t.Fatalf("reply = %q", r.Text)
	}
	b.expectState(1, dialog.StateUpload)
	if n := b.activeCount(1); n != 0 {
		t.Fatalf("invalid payload inserted %d rows", n)
	}
	b.send(1, "x,9")
	b.expectState(1, dialog.StateMain)
}

func TestDeleteConfirmed(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{})
	b.register(1)
	b.register(2)
	b.upload(1, "a,1\nb,2\nc,3") // ids 1..3
	b.upload(2, "d,4")           // id 4

	b.send(1, "/delete 1, 4")
	b.expectState(1, dialog.StateDeletePending)
	if got := b.state(1).Data[keyDeleteIDs]; got != "1,4" {
		t.Fatalf("stashed ids = %q", got)
	}

	r := b.send(1, "YES")
	if !strings.Contains(r.Text, "#1 a, 1 deleted") || strings.Contains(r.Text, "#4") {
		t.Fatalf("delete reply = %q", r.Text)
	}
	b.expectState(1, dialog.StateMain)
	if len(b.state(1).Data) != 0 {
		t.Fatalf("stash not cleared: %v", b.state(1).Data)
	}
	if n := b.activeCount(1); n != 2 {
		t.Fatalf("owner count = %d, want 2", n)
	}
	if n := b.activeCount(2); n != 1 {
		t.Fatalf("other user's item removed: count = %d", n)
	}
}

func TestDeleteDeclinedAndAll(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{ConfirmToken: "da"})
	b.register(1)
	b.upload(1, "a,1\nb,2")

	b.send(1, "/delete all")
	if r := b.send(1, "yes"); r.Text != b.texts.Get(messages.DeleteDeclined) {
		t.Fatalf("decline reply = %q", r.Text)
	}
	b.expectState(1, dialog.StateMain)
	if n := b.activeCount(1); n != 2 {
		t.Fatalf("declined delete removed rows: %d left", n)
	}

	b.send(1, "/delete all")
	b.send(1, "da")
	if n := b.activeCount(1); n != 0 {
		t.Fatalf("delete all left %d rows", n)
	}
}

func TestDeleteUsage(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{})
	b.register(1)
	for _, text := range []string{"/delete", "/delete , ", "/delete x"} {
		if r := b.send(1, text); r.Text != b.texts.Get(messages.DeleteUsage) {
			t.Fatalf("%q reply = %q", text, r.Text)
		}
		b.expectState(1, dialog.StateMain)
	}
}

func TestInactiveUserNeverMutates(t *testing.T) {
	records := openRecords(t)
	b := newTestBot(t, records, Config{Policy: filters.Policy{Inactive: []int64{13}}})

	for _, text := range []string{"/start", "/upload", "a,1", "/clear"} {
		if r := b.send(13, text); r.Text != b.texts.Get(messages.Inactive) {
			t.Fatalf("%q reply = %q", text, r.Text)
		}
		b.expectState(13, dialog.StateMain)
	}
	if ok, _ := records.UserExists(context.Background(), 13); ok {
		t.Fatal("inactive user was registered")
	}
}

func TestClearFromAnyState(t *testing.T) {
	ctx := context.Background()
	records := openRecords(t)
	supers := make([]int64, len(dialog.AllStates))
	for i := range supers {
		supers[i] = int64(100 + i)
	}
	b := newTestBot(t, records, Config{Policy: filters.Policy{SuperUsers: supers}})

	for i, st := range dialog.AllStates {
		uid := supers[i]
		_ = b.sessions.Set(ctx, uid, state.Session{State: st, Data: map[string]string{keyDeleteIDs: "1"}})
		if r := b.send(uid, "/clear"); r.Text != b.texts.Get(messages.Cleared) {
			t.Fatalf("clear from %s reply = %q", st, r.Text)
		}
		want := dialog.StateMain
		if st == dialog.StateNew {
			want = dialog.StateNew
		}
		sess := b.state(uid)
		if sess.State != want || len(sess.Data) != 0 {
			t.Fatalf("clear from %s left %+v", st, sess)
		}
		if ok, _ := records.UserExists(ctx, uid); ok {
			t.Fatalf("clear from %s touched storage", st)
		}
	}
}

func TestClearRequiresSuperUser(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{Policy: filters.Policy{SuperUsers: []int64{1}}})
	b.register(7)
	b.send(7, "/upload")

	if r := b.send(7, "/clear"); r.Text == b.texts.Get(messages.Cleared) {
		t.Fatalf("ordinary user cleared the session: %q", r.Text)
	}
	b.expectState(7, dialog.StateUpload)
}

func TestClearKeepsUnregisteredUserNew(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{Policy: filters.Policy{SuperUsers: []int64{9}}})

	if r := b.send(9, "/clear"); r.Text != b.texts.Get(messages.Cleared) {
		t.Fatalf("clear reply = %q", r.Text)
	}
	if st := b.state(9).State; st == dialog.StateMain {
		t.Fatal("unregistered user reached MAIN through /clear")
	}
	if r := b.send(9, "/upload"); r.Text != b.texts.Get(messages.NotUnderstood) {
		t.Fatalf("upload before /start reply = %q", r.Text)
	}
	if r := b.send(9, "/start"); r.Text != b.texts.Get(messages.Greetings) {
		t.Fatalf("start after clear reply = %q", r.Text)
	}
}

func TestInactiveDropsPendingData(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, openRecords(t), Config{Policy: filters.Policy{Inactive: []int64{14}}})
	_ = b.sessions.Set(ctx, 14, state.Session{State: dialog.StateDeletePending, Data: map[string]string{keyDeleteIDs: "1,2"}})

	b.send(14, "yes")
	sess := b.state(14)
	if sess.State != dialog.StateMain || len(sess.Data) != 0 {
		t.Fatalf("inactive reset left %+v", sess)
	}
}

func TestAdminToggleGatesStats(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{Policy: filters.Policy{SuperUsers: []int64{1}}})
	b.register(1)
	b.upload(1, "a,1")

	notUnderstood := b.texts.Get(messages.NotUnderstood)
	if r := b.send(1, "/stats"); r.Text != notUnderstood {
		t.Fatalf("stats without role = %q", r.Text)
	}
	if r := b.send(1, "/admin"); r.Text != b.texts.Get(messages.AdminEnabled) {
		t.Fatalf("admin on = %q", r.Text)
	}
	if r := b.send(1, "/stats"); r.Text != b.texts.Get(messages.Stats, 1, 1) {
		t.Fatalf("stats = %q", r.Text)
	}
	if r := b.send(1, "/admin"); r.Text != b.texts.Get(messages.AdminDisabled) {
		t.Fatalf("admin off = %q", r.Text)
	}
	if r := b.send(1, "/stats"); r.Text != notUnderstood {
		t.Fatalf("stats after revoke = %q", r.Text)
	}

	// Regular users cannot toggle.
	b.register(2)
	if r := b.send(2, "/admin"); r.Text != notUnderstood {
		t.Fatalf("non super user admin = %q", r.Text)
	}
}

func TestSearchAndList(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{})
	b.register(1)
	b.register(2)
	b.upload(1, "Blue Book,5\nLamp,7")
	b.upload(2, "notebook,1")

	b.send(1, "/search")
	b.expectState(1, dialog.StateSearch)
	r := b.send(1, "BOOK")
	if !strings.Contains(r.Text, "Blue Book") || !strings.Contains(r.Text, "notebook") || strings.Contains(r.Text, "Lamp") {
		t.Fatalf("search reply = %q", r.Text)
	}
	b.expectState(1, dialog.StateMain)

	if r := b.send(1, "/search zzz"); r.Text != b.texts.Get(messages.SearchEmpty) {
		t.Fatalf("inline search reply = %q", r.Text)
	}
	b.expectState(1, dialog.StateMain)

	r = b.send(1, "/mycards")
	if !strings.Contains(r.Text, "Lamp") || strings.Contains(r.Text, "notebook") {
		t.Fatalf("mycards = %q", r.Text)
	}
	b.register(3)
	if r := b.send(3, "/mycards"); r.Text != b.texts.Get(messages.ItemsEmpty) {
		t.Fatalf("empty mycards = %q", r.Text)
	}
}

func TestCancel(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{})
	b.register(1)
	if r := b.send(1, "/cancel"); r.Text != b.texts.Get(messages.NotUnderstood) {
		t.Fatalf("cancel in MAIN = %q", r.Text)
	}
	b.send(1, "/upload")
	if r := b.send(1, "/cancel"); r.Text != b.texts.Get(messages.Cancelled) {
		t.Fatalf("cancel reply = %q", r.Text)
	}
	b.expectState(1, dialog.StateMain)
}

func TestLocationForUnregisteredUser(t *testing.T) {
	b := newTestBot(t, openRecords(t), Config{})
	_ = b.sessions.Set(context.Background(), 9, state.Session{State: dialog.StateRequestLocation})
	if r := b.send(9, "Rome"); r.Text != b.texts.Get(messages.Failure) {
		t.Fatalf("reply = %q", r.Text)
	}
	b.expectState(9, dialog.StateRequestLocation)
}

// Two bot instances share the record store; their uploads for one user must
// not jointly exceed the limit.
func TestConcurrentUploadsRespectLimit(t *testing.T) {
	records := openRecords(t)
	first := newTestBot(t, records, Config{ItemLimit: 4})
	second := newTestBot(t, records, Config{ItemLimit: 4})
	first.register(1)
	first.upload(1, "a,1")

	ctx := context.Background()
	for _, b := range []*testBot{first, second} {
		_ = b.sessions.Set(ctx, 1, state.Session{State: dialog.StateUpload})
	}

	var wg sync.WaitGroup
	for _, b := range []*testBot{first, second} {
		wg.Add(1)
		go func(b *testBot) {
			defer wg.Done()
			_, _ = b.d.Dispatch(ctx, model.NewMessage(0, 1, 1, "user", "x,1\ny,2"))
		}(b)
	}
	wg.Wait()

	if n := first.activeCount(1); n != 3 {
		t.Fatalf("active count = %d, want 3 (exactly one upload applied)", n)
	}
}
