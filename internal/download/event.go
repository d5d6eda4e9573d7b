package download

// Event is published by the Tracker for every observable change to a session.
type Event interface {
	// Session is the state of the session after the event.
	Session() Session
}

type sessionEvent struct {
	session Session
}

func (e sessionEvent) Session() Session {
	return e.session
}

type SessionAdded struct {
	sessionEvent
}

type SessionUpdated struct {
	sessionEvent
	Old Session
}

type SessionInterrupted struct {
	sessionEvent
}

type SessionCompleted struct {
	sessionEvent
}

type SessionFailed struct {
	sessionEvent
	Reason string
}

// SessionRemoved is always the last event for a session.
type SessionRemoved struct {
	sessionEvent
}
