// Package model holds the records and message shapes shared by the dialogue core.
package model

import (
	"fmt"
	"strings"
)

// Status of an item. Values below StatusArchived count as active.
type Status int

const (
	StatusActive   Status = 0
	StatusReserved Status = 1
	StatusArchived Status = 9
)

// Active reports whether the status counts toward the user's limit.
func (s Status) Active() bool { return s < StatusArchived }

func (s Status) String() string {
	switch {
	case s == StatusActive:
		return "active"
	case s == StatusReserved:
		return "reserved"
	case s >= StatusArchived:
		return "archived"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// DefaultItemLimit applies to users created without an explicit limit.
const DefaultItemLimit = 10

// User is a registered bot user keyed by the external transport id.
type User struct {
	ID        int64   `db:"id"`
	UID       int64   `db:"uid"`
	Username  string  `db:"username"`
	Location  *string `db:"location"`
	ItemLimit int     `db:"item_limit"`
}

// Item is one card owned by a user. Price is kept verbatim.
type Item struct {
	ID      int64  `db:"id"`
	OwnerID int64  `db:"owner_id"`
	Name    string `db:"name"`
	Price   string `db:"price"`
	Status  Status `db:"status"`
}

func (i Item) String() string {
	return fmt.Sprintf("#%d %s, %s", i.ID, i.Name, i.Price)
}

// Role names stored in user_roles.
const RoleAdmin = "admin"

// Totals summarizes the record store for /stats.
type Totals struct {
	Users       int `db:"users"`
	ActiveItems int `db:"active_items"`
}

// Message is the transport-neutral input of the dialogue core.
type Message struct {
	UpdateID int
	UserID   int64
	ChatID   int64
	Username string
	Text     string
	// Command is the lowercased command name without slash or @bot suffix.
	Command string
	Args    string
}

// IsCommand reports whether the message carries a leading command token.
func (m Message) IsCommand() bool { return m.Command != "" }

// NewMessage fills Command and Args from text.
func NewMessage(updateID int, userID, chatID int64, username, text string) Message {
	cmd, args := ParseCommand(text)
	return Message{
		UpdateID: updateID,
		UserID:   userID,
		ChatID:   chatID,
		Username: username,
		Text:     text,
		Command:  cmd,
		Args:     args,
	}
}

// ParseCommand splits "/delete@bot 1 2" into ("delete", "1 2").
// Text that does not start with '/' yields empty results.
func ParseCommand(text string) (command, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest := text, ""
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		head, rest = text[:i], text[i+1:]
	}
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	if head == "" {
		return "", ""
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// Reply is the transport-neutral output of the dialogue core.
type Reply struct {
	Text           string
	RemoveKeyboard bool
	// Skip is set for duplicate deliveries that must not be answered twice.
	Skip bool
}
