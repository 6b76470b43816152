package state

import (
	"context"
	"errors"
	"maps"
)

// State identifies a finite-state-machine step used in conversations.
type State string

// StateNone marks a session that has never been written.
const StateNone State = ""

// ErrUnavailable wraps backend failures so callers can tell them apart from
// errors returned by Update callbacks.
var ErrUnavailable = errors.New("session store unavailable")

// Session stores conversation state and transitional data for a user.
type Session struct {
	State State             `json:"state"`
	Data  map[string]string `json:"data,omitempty"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := Session{State: s.State, Data: make(map[string]string, len(s.Data))}
	maps.Copy(out.Data, s.Data)
	return out
}

// Equal reports whether two sessions carry the same state and data.
func (s Session) Equal(other Session) bool {
	return s.State == other.State && maps.Equal(s.Data, other.Data)
}

// Store keeps one session per user. Implementations are safe for concurrent use;
// serializing access for a single user is the caller's job.
type Store interface {
	// Get returns the stored session. found is false when no session exists
	// (never written, deleted or expired); the returned session is then empty.
	Get(ctx context.Context, userID int64) (sess Session, found bool, err error)
	Set(ctx context.Context, userID int64, sess Session) error
	// Update atomically applies fn to the current session and stores the result.
	// An error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, userID int64, fn func(*Session) error) error
	Delete(ctx context.Context, userID int64) error
	Ping(ctx context.Context) error
	Close() error
}

func emptySession() Session {
	return Session{Data: make(map[string]string)}
}
