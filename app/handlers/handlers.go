// Package handlers implements the card bot rules: onboarding, uploads,
// confirmed deletes, search and listing.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/cardbot/app/dialog"
	"github.com/m3rciful/cardbot/app/errs"
	"github.com/m3rciful/cardbot/app/filters"
	"github.com/m3rciful/cardbot/app/messages"
	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/app/store"
	"github.com/m3rciful/cardbot/core/telegram/commands"
	"github.com/m3rciful/cardbot/core/telegram/state"
)

// Session data keys.
const keyDeleteIDs = "delete_ids"

// Config holds the business policy.
type Config struct {
	Policy       filters.Policy
	ItemLimit    int
	ConfirmToken string
	SearchLimit  int
}

// Handlers builds the rule table.
type Handlers struct {
	cfg   Config
	texts *messages.Catalogue
	roles *filters.RoleCache
}

// New applies defaults to cfg.
func New(cfg Config, texts *messages.Catalogue, roles *filters.RoleCache) *Handlers {
	if cfg.ItemLimit <= 0 {
		cfg.ItemLimit = model.DefaultItemLimit
	}
	if strings.TrimSpace(cfg.ConfirmToken) == "" {
		cfg.ConfirmToken = "yes"
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 20
	}
	if texts == nil {
		texts = messages.Default()
	}
	return &Handlers{cfg: cfg, texts: texts, roles: roles}
}

// Commands lists the command menu in help order.
func Commands() []commands.Command {
	return []commands.Command{
		{Name: "start", Description: "Register or say hello"},
		{Name: "upload", Description: "Upload cards as name,price lines"},
		{Name: "mycards", Description: "List your cards"},
		{Name: "delete", Description: "Delete cards by id or all"},
		{Name: "search", Description: "Search cards by name"},
		{Name: "cancel", Description: "Cancel the current action"},
		{Name: "clear", Description: "Reset the conversation", AdminOnly: true},
		{Name: "help", Description: "Show available commands"},
		{Name: "stats", Description: "Show totals", AdminOnly: true},
		{Name: "admin", Description: "Toggle admin mode", AdminOnly: true},
	}
}

func only(states ...state.State) []state.State { return states }

// Rules returns the routing table in priority order.
func (h *Handlers) Rules() []dialog.Rule {
	cmd := filters.Command
	text := filters.Text()
	return []dialog.Rule{
		{Name: "inactive", Filters: []filters.Filter{filters.Inactive(h.cfg.Policy)}, Handle: h.inactive},
		{Name: "admin", Filters: []filters.Filter{filters.SuperUser(h.cfg.Policy), cmd("admin")}, Handle: h.admin},
		{Name: "clear", Filters: []filters.Filter{filters.SuperUser(h.cfg.Policy), cmd("clear")}, Handle: h.clear},
		{Name: "start", Filters: []filters.Filter{cmd("start")}, Handle: h.start},
		{Name: "help", Filters: []filters.Filter{cmd("help")}, Handle: h.help},
		{Name: "stats", Filters: []filters.Filter{cmd("stats"), filters.Admin(h.roles)}, Handle: h.stats},
		{Name: "location", States: only(dialog.StateRequestLocation), Filters: []filters.Filter{text}, Handle: h.location},
		{Name: "cancel", States: only(dialog.StateUpload, dialog.StateDeletePending, dialog.StateSearch), Filters: []filters.Filter{cmd("cancel")}, Handle: h.cancel},
		{Name: "upload", States: only(dialog.StateMain), Filters: []filters.Filter{cmd("upload")}, Handle: h.upload},
		{Name: "upload_action", States: only(dialog.StateUpload), Filters: []filters.Filter{text}, Handle: h.uploadAction},
		{Name: "delete", States: only(dialog.StateMain), Filters: []filters.Filter{cmd("delete")}, Handle: h.deleteCommand},
		{Name: "delete_confirm", States: only(dialog.StateDeletePending), Filters: []filters.Filter{text}, Handle: h.deleteConfirm},
		{Name: "search", States: only(dialog.StateMain), Filters: []filters.Filter{cmd("search")}, Handle: h.search},
		{Name: "search_action", States: only(dialog.StateSearch), Filters: []filters.Filter{text}, Handle: h.searchAction},
		{Name: "mycards", States: only(dialog.StateMain), Filters: []filters.Filter{cmd("mycards")}, Handle: h.mycards},
	}
}

func (h *Handlers) say(key string, args ...any) model.Reply {
	return model.Reply{Text: h.texts.Get(key, args...)}
}

func (h *Handlers) inactive(context.Context, *dialog.Request) (dialog.Outcome, error) {
	return dialog.Outcome{Reply: h.say(messages.Inactive), Event: dialog.EventReset, ClearData: true}, nil
}

func (h *Handlers) admin(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	tx, err := req.Tx(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	uid := req.UserID()
	removed, err := tx.RevokeRole(ctx, uid, model.RoleAdmin)
	if err != nil {
		return dialog.Outcome{}, err
	}
	reply := h.say(messages.AdminDisabled)
	if !removed {
		if err := tx.GrantRole(ctx, uid, model.RoleAdmin); err != nil {
			return dialog.Outcome{}, err
		}
		reply = h.say(messages.AdminEnabled)
	}
	if h.roles != nil {
		tx.OnCommit(func() { h.roles.Invalidate(uid, model.RoleAdmin) })
	}
	return dialog.Outcome{Reply: reply}, nil
}

// clear resets the conversation. Unregistered users stay NEW so /start
// remains the only way into MAIN.
func (h *Handlers) clear(_ context.Context, req *dialog.Request) (dialog.Outcome, error) {
	out := dialog.Outcome{Reply: h.say(messages.Cleared), ClearData: true}
	if req.State != dialog.StateNew {
		out.Event = dialog.EventReset
	}
	return out, nil
}

func (h *Handlers) start(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	tx, err := req.Tx(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	_, err = tx.FindUser(ctx, req.UserID())
	switch {
	case err == nil:
		return dialog.Outcome{Reply: h.say(messages.WelcomeBack), Event: dialog.EventStartKnown, ClearData: true}, nil
	case errs.Is(err, errs.KindNotFound):
	default:
		return dialog.Outcome{}, err
	}
	if _, err := tx.CreateUser(ctx, req.UserID(), req.Msg.Username, h.cfg.ItemLimit); err != nil {
		return dialog.Outcome{}, err
	}
	return dialog.Outcome{Reply: h.say(messages.Greetings), Event: dialog.EventStartNew, ClearData: true}, nil
}

func (h *Handlers) help(context.Context, *dialog.Request) (dialog.Outcome, error) {
	var b strings.Builder
	b.WriteString(h.texts.Get(messages.Help))
	for _, c := range Commands() {
		if c.AdminOnly {
			continue
		}
		fmt.Fprintf(&b, "\n/%s - %s", c.Name, c.Description)
	}
	return dialog.Outcome{Reply: model.Reply{Text: b.String()}}, nil
}

func (h *Handlers) stats(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	tx, err := req.Tx(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	totals, err := tx.Counts(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	return dialog.Outcome{Reply: h.say(messages.Stats, totals.Users, totals.ActiveItems)}, nil
}

func (h *Handlers) location(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	tx, err := req.Tx(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	if err := tx.SetLocation(ctx, req.UserID(), strings.TrimSpace(req.Msg.Text)); err != nil {
		return dialog.Outcome{}, err
	}
	reply := h.say(messages.SignUpComplete)
	reply.RemoveKeyboard = true
	return dialog.Outcome{Reply: reply, Event: dialog.EventLocationSet}, nil
}

func (h *Handlers) cancel(context.Context, *dialog.Request) (dialog.Outcome, error) {
	return dialog.Outcome{Reply: h.say(messages.Cancelled), Event: dialog.EventCancel, ClearData: true}, nil
}

func (h *Handlers) upload(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	tx, err := req.Tx(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	if _, err := tx.FindUser(ctx, req.UserID()); err != nil {
		return dialog.Outcome{}, err
	}
	return dialog.Outcome{Reply: h.say(messages.UploadPrompt), Event: dialog.EventUploadBegin}, nil
}

func (h *Handlers) uploadAction(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	rows, err := ParseUpload(req.Msg.Text)
	if err != nil {
		return dialog.Outcome{Reply: h.say(messages.UploadParseFailed), Event: dialog.EventUploadInvalid}, nil
	}
	tx, err := req.Tx(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	user, err := tx.LockUser(ctx, req.UserID())
	if err != nil {
		return dialog.Outcome{}, err
	}
	if err := checkLimit(ctx, tx, user, len(rows)); err != nil {
		if errs.Is(err, errs.KindLimitExceeded) {
			return dialog.Outcome{Reply: h.say(messages.UploadLimit, user.ItemLimit), Event: dialog.EventUploadRejected}, nil
		}
		return dialog.Outcome{}, err
	}
	items := make([]model.Item, len(rows))
	for i, r := range rows {
		items[i] = model.Item{OwnerID: user.ID, Name: r.Name, Price: r.Price, Status: model.StatusActive}
	}
	if err := tx.InsertItems(ctx, items); err != nil {
		return dialog.Outcome{}, err
	}
	return dialog.Outcome{Reply: h.say(messages.UploadComplete, len(items)), Event: dialog.EventUploadDone}, nil
}

// checkLimit fails when adding n items would exceed the user's limit.
// Reaching the limit exactly is allowed.
func checkLimit(ctx context.Context, tx *store.Tx, user model.User, n int) error {
	active, err := tx.CountItems(ctx, store.ActiveOf(user.UID))
	if err != nil {
		return err
	}
	if active+n > user.ItemLimit {
		return errs.E(errs.KindLimitExceeded, "upload",
			fmt.Errorf("%d active + %d new > limit %d", active, n, user.ItemLimit))
	}
	return nil
}

func (h *Handlers) deleteCommand(_ context.Context, req *dialog.Request) (dialog.Outcome, error) {
	ids, err := NormalizeDeleteIDs(req.Msg.Args)
	if err != nil || ids == "" {
		return dialog.Outcome{Reply: h.say(messages.DeleteUsage)}, nil
	}
	req.Data[keyDeleteIDs] = ids
	return dialog.Outcome{
		Reply: h.say(messages.DeleteConfirm, ids, h.cfg.ConfirmToken),
		Event: dialog.EventDeleteBegin,
	}, nil
}

func (h *Handlers) deleteConfirm(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	if !strings.EqualFold(strings.TrimSpace(req.Msg.Text), h.cfg.ConfirmToken) {
		return dialog.Outcome{Reply: h.say(messages.DeleteDeclined), Event: dialog.EventDeleteDeclined, ClearData: true}, nil
	}

	filter := store.ItemFilter{OwnerUID: req.UserID()}
	if stash := req.Data[keyDeleteIDs]; stash != DeleteAll {
		ids, err := splitIDs(stash)
		if err != nil {
			// A stash that does not parse selects nothing.
			ids = []int64{}
		}
		filter.IDs = ids
	}

	tx, err := req.Tx(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	deleted, err := tx.DeleteItems(ctx, filter)
	if err != nil {
		return dialog.Outcome{}, err
	}
	if len(deleted) == 0 {
		return dialog.Outcome{Reply: h.say(messages.DeleteNothing), Event: dialog.EventDeleteConfirmed, ClearData: true}, nil
	}
	lines := make([]string, len(deleted))
	for i, it := range deleted {
		lines[i] = h.texts.Get(messages.DeleteItem, it.String())
	}
	return dialog.Outcome{
		Reply:     model.Reply{Text: strings.Join(lines, "\n")},
		Event:     dialog.EventDeleteConfirmed,
		ClearData: true,
	}, nil
}

func (h *Handlers) search(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	if q := strings.TrimSpace(req.Msg.Args); q != "" {
		reply, err := h.find(ctx, req, q)
		return dialog.Outcome{Reply: reply}, err
	}
	return dialog.Outcome{Reply: h.say(messages.SearchPrompt), Event: dialog.EventSearchBegin}, nil
}

func (h *Handlers) searchAction(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	reply, err := h.find(ctx, req, req.Msg.Text)
	if err != nil {
		return dialog.Outcome{}, err
	}
	return dialog.Outcome{Reply: reply, Event: dialog.EventSearchDone}, nil
}

func (h *Handlers) find(ctx context.Context, req *dialog.Request, query string) (model.Reply, error) {
	tx, err := req.Tx(ctx)
	if err != nil {
		return model.Reply{}, err
	}
	items, err := tx.SearchItems(ctx, query, h.cfg.SearchLimit)
	if err != nil {
		return model.Reply{}, err
	}
	if len(items) == 0 {
		return h.say(messages.SearchEmpty), nil
	}
	return model.Reply{Text: listItems(items)}, nil
}

func (h *Handlers) mycards(ctx context.Context, req *dialog.Request) (dialog.Outcome, error) {
	tx, err := req.Tx(ctx)
	if err != nil {
		return dialog.Outcome{}, err
	}
	items, err := tx.ListItems(ctx, store.ActiveOf(req.UserID()))
	if err != nil {
		return dialog.Outcome{}, err
	}
	if len(items) == 0 {
		return dialog.Outcome{Reply: h.say(messages.ItemsEmpty)}, nil
	}
	return dialog.Outcome{Reply: model.Reply{Text: listItems(items)}}, nil
}

func listItems(items []model.Item) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = it.String()
	}
	return strings.Join(lines, "\n")
}
