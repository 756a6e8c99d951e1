// Package types holds the domain and HTTP payload types shared by pocketlm packages.
package types

// Defaults for session naming.
const (
	DefaultSessionName = "Default Session"
	NewSessionName     = "New Session"
)
