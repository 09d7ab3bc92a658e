package termsession

import "errors"

// ErrUnknownSession is returned when an operation that must report failure
// (attach, open) names a session that is not registered.
var ErrUnknownSession = errors.New("unknown session")

type EventType string

const (
	EventOutput    EventType = "output"
	EventExit      EventType = "exit"
	EventDestroyed EventType = "destroyed"
)

// Event is delivered to attached clients. Data is shared between all
// recipients and must be treated as read-only.
type Event struct {
	Type     EventType
	Data     []byte
	ExitCode int
}

// Client is a live connection attached to a session. Send is called with the
// session lock held: it must queue the event and return without blocking.
// A non-nil error means the event was not accepted; the session skips the
// client and leaves detaching to the connection's own close handling.
type Client interface {
	Send(ev Event) error
}
