package auth

// Auth event names and outcomes reported to an EventRecorder.
const (
	EventSignup = "signup"
	EventLogin  = "login"
	EventGuard  = "guard"

	OutcomeSuccess         = "success"
	OutcomeFailure         = "failure"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeStale           = "stale_session"
)

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

func recorderOrNop(r EventRecorder) EventRecorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
