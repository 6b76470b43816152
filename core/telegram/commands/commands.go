// Package commands describes entries of the bot command menu.
package commands

import "strings"

// Command is a menu entry. Name carries no leading slash.
type Command struct {
	Name        string
	Description string
	// AdminOnly entries are shown only in the chats of administrators.
	AdminOnly bool
	Hidden    bool
}

// Normalize lowercases the name and strips a leading slash.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}
