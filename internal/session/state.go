package session

import (
	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/profiles"
)

// Phase is the lifecycle position of the session store.
type Phase string

const (
	PhaseUnresolved    Phase = "unresolved"
	PhaseAnonymous     Phase = "anonymous"
	PhaseAuthenticated Phase = "authenticated"
)

func (p Phase) String() string {
	return string(p)
}

// State is the snapshot exposed to the UI: who is signed in and whether a resolution is pending.
type State struct {
	Phase   Phase             `json:"phase"`
	User    *identity.User    `json:"user,omitempty"`
	Profile *profiles.Profile `json:"profile,omitempty"`
	IsAdmin bool              `json:"isAdmin"`
	Loading bool              `json:"loading"`
}

// Authenticated reports whether a user is present.
func (s State) Authenticated() bool {
	return s.User != nil
}

func unresolvedState() State {
	return State{Phase: PhaseUnresolved, Loading: true}
}

func anonymousState() State {
	return State{Phase: PhaseAnonymous}
}
