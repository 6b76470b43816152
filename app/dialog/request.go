package dialog

import (
	"context"
	"maps"

	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/app/store"
	"github.com/m3rciful/cardbot/core/telegram/state"
)

// Records is the part of the record store the dispatcher needs.
type Records interface {
	Begin(ctx context.Context) (*store.Tx, error)
	UserExists(ctx context.Context, uid int64) (bool, error)
	Ping(ctx context.Context) error
}

// Request is the resolved input of one handler invocation.
type Request struct {
	Msg   model.Message
	State state.State
	// Data is the session's transitional data; handlers may mutate it.
	Data map[string]string

	records Records
	tx      *store.Tx
}

func newRequest(msg model.Message, sess state.Session, records Records) *Request {
	data := make(map[string]string, len(sess.Data))
	maps.Copy(data, sess.Data)
	return &Request{Msg: msg, State: sess.State, Data: data, records: records}
}

// UserID is the external id of the sender.
func (r *Request) UserID() int64 { return r.Msg.UserID }

// Tx returns the message transaction, opening it on first use.
func (r *Request) Tx(ctx context.Context) (*store.Tx, error) {
	if r.tx != nil {
		return r.tx, nil
	}
	tx, err := r.records.Begin(ctx)
	if err != nil {
		return nil, err
	}
	r.tx = tx
	return tx, nil
}

func (r *Request) commit() error {
	if r.tx == nil {
		return nil
	}
	return r.tx.Commit()
}

func (r *Request) rollback() {
	if r.tx != nil {
		_ = r.tx.Rollback()
	}
}
