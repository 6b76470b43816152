// Package state stores per-user dialogue sessions.
// State tags and data values are opaque strings.
package state
