package enums

import "fmt"

// AuthEvent names the notifications emitted by the identity provider's change feed.
type AuthEvent string

const (
	AuthEventInitialSession AuthEvent = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEvent = "SIGNED_IN"
	AuthEventSignedOut      AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEvent = "USER_UPDATED"
)

var validAuthEvents = []AuthEvent{
	AuthEventInitialSession,
	AuthEventSignedIn,
	AuthEventSignedOut,
	AuthEventTokenRefreshed,
	AuthEventUserUpdated,
}

func (e AuthEvent) String() string {
	return string(e)
}

func (e AuthEvent) IsValid() bool {
	for _, candidate := range validAuthEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

func ParseAuthEvent(value string) (AuthEvent, error) {
	for _, candidate := range validAuthEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid auth event %q", value)
}
