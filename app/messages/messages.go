// Package messages holds the reply catalogue. Texts can be overridden by key
// from configuration.
package messages

import (
	"fmt"
	"maps"
	"sort"
)

// Keys of the catalogue.
const (
	Inactive          = "user_inactive"
	AdminEnabled      = "admin_enable"
	AdminDisabled     = "admin_disable"
	Cleared           = "clear"
	Greetings         = "greetings"
	WelcomeBack       = "yo"
	SignUpComplete    = "sign_up_complete"
	Cancelled         = "cancel"
	UploadPrompt      = "upload"
	UploadParseFailed = "upload_parse_failed"
	UploadLimit       = "upload_limit_exceeded"
	UploadComplete    = "upload_complete"
	DeleteUsage       = "delete_usage"
	DeleteConfirm     = "delete_confirm"
	DeleteItem        = "delete_item"
	DeleteNothing     = "delete_nothing"
	DeleteDeclined    = "delete_declined"
	SearchPrompt      = "search"
	SearchEmpty       = "search_empty"
	ItemsEmpty        = "items_empty"
	Help              = "help"
	Stats             = "stats"
	NotUnderstood     = "not_understood"
	Failure           = "failure"
	Unavailable       = "unavailable"
	SlowDown          = "slow_down"
)

var defaults = map[string]string{
	Inactive:          "Your account is inactive. Please contact support.",
	AdminEnabled:      "Admin mode enabled.",
	AdminDisabled:     "Admin mode disabled.",
	Cleared:           "State cleared.",
	Greetings:         "Hi! Tell me which city you are in.",
	WelcomeBack:       "Welcome back!",
	SignUpComplete:    "Sign-up complete. Use /upload to add cards.",
	Cancelled:         "Cancelled.",
	UploadPrompt:      "Send your cards, one per line: name,price",
	UploadParseFailed: "Could not parse the list. Every line must be name,price. Try again or /cancel.",
	UploadLimit:       "Upload rejected: your limit is %d cards.",
	UploadComplete:    "Uploaded %d cards.",
	DeleteUsage:       "Usage: /delete <id>[,<id>...] or /delete all",
	DeleteConfirm:     "Delete %s? Reply %q to confirm.",
	DeleteItem:        "%s deleted",
	DeleteNothing:     "Nothing to delete.",
	DeleteDeclined:    "Deletion cancelled.",
	SearchPrompt:      "What are you looking for?",
	SearchEmpty:       "Nothing found.",
	ItemsEmpty:        "You have no cards yet.",
	Help:              "Available commands:",
	Stats:             "Users: %d\nActive cards: %d",
	NotUnderstood:     "Sorry, I did not understand that. Try /help.",
	Failure:           "Something went wrong, please try again later.",
	Unavailable:       "The service is temporarily unavailable, please try again later.",
	SlowDown:          "You are sending messages too fast. Please wait a moment.",
}

// Catalogue resolves reply texts.
type Catalogue struct {
	texts map[string]string
}

// New builds a catalogue from the defaults and overrides.
// Unknown override keys are rejected.
func New(overrides map[string]string) (*Catalogue, error) {
	texts := maps.Clone(defaults)
	var unknown []string
	for k, v := range overrides {
		if _, ok := texts[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		texts[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown message keys: %v", unknown)
	}
	return &Catalogue{texts: texts}, nil
}

// Default returns the built-in catalogue.
func Default() *Catalogue {
	c, _ := New(nil)
	return c
}

// Get returns the text for key, formatted with args when given.
func (c *Catalogue) Get(key string, args ...any) string {
	text, ok := c.texts[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}
