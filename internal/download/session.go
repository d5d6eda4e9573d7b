package download

import (
	"fmt"
	"time"

	"github.com/alanbriolat/loop-client/generic"
)

type State string

const (
	StateRequested   State = "requested"
	StateInProgress  State = "in_progress"
	StatePaused      State = "paused"
	StateInterrupted State = "interrupted"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

var finalStates = generic.NewSet(StateCompleted, StateFailed)

var transitions = map[State]generic.Set[State]{
	StateRequested:   generic.NewSet(StateInProgress, StateFailed),
	StateInProgress:  generic.NewSet(StateInProgress, StatePaused, StateInterrupted, StateCompleted, StateFailed),
	StatePaused:      generic.NewSet(StatePaused, StateInProgress, StateInterrupted, StateCompleted, StateFailed),
	StateInterrupted: generic.NewSet(StateInterrupted, StateInProgress, StatePaused, StateCompleted, StateFailed),
}

// IsFinal returns true for states that no event can leave. An Interrupted session is also terminal, but only once its
// item stops sending events.
func (s State) IsFinal() bool {
	return finalStates.Contains(s)
}

func (s State) CanTransition(to State) bool {
	allowed, ok := transitions[s]
	return ok && allowed.Contains(to)
}

// Session is a snapshot of one tracked download.
type Session struct {
	ID              string
	SuggestedName   string
	DestinationPath string
	State           State
	// ReceivedBytes never decreases, and does not advance while Paused.
	ReceivedBytes int64
	TotalBytes    int64
	// Resumable is recorded when the host interrupts the download.
	Resumable     bool
	FailureReason string
	StartedAt     time.Time
	FinishedAt    time.Time
}

func (s Session) String() string {
	return fmt.Sprintf("Session{ID:%q, Name:%q, State:%q, Received:%d}", s.ID, s.SuggestedName, s.State, s.ReceivedBytes)
}
