package trust

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no record matches the owner and id.
	ErrNotFound = errors.New("trust record not found")
	// ErrInvalidTransition is returned when the record's current state does not permit the move.
	ErrInvalidTransition = errors.New("invalid trust transition")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("trust store unavailable")
	// ErrInvalidState is returned when a state string cannot be parsed.
	ErrInvalidState = errors.New("invalid trust state")
)

// State is the trust classification of a (user, fingerprint) pair.
type State uint8

const (
	// StatePending marks a context seen but not yet verified.
	StatePending State = iota + 1
	// StateTrusted marks a context verified through an out-of-band challenge.
	StateTrusted
	// StateBlocked marks a context explicitly rejected by the account owner.
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTrusted:
		return "trusted"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s >= StatePending && s <= StateBlocked
}

// ParseState converts the stored string form back into a State.
func ParseState(v string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending":
		return StatePending, nil
	case "trusted":
		return StateTrusted, nil
	case "blocked":
		return StateBlocked, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidState, v)
	}
}

// transitions maps a target state to the source states allowed to reach it.
var transitions = map[State][]State{
	StateTrusted: {StatePending, StateTrusted},
	StateBlocked: {StatePending, StateTrusted, StateBlocked},
	StatePending: {StateBlocked},
}

// Sources returns the states from which a record may move to `to`.
// The returned slice is a copy.
func Sources(to State) []State {
	src := transitions[to]
	out := make([]State, len(src))
	copy(out, src)
	return out
}

// CanTransition reports whether a record in `from` may move to `to`.
func CanTransition(from, to State) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Guard resolves the source states a store must check before moving a record
// to `to`, in string form for a script or SQL statement. With no from states
// every source allowed by the transition table applies; otherwise each of
// from must itself be allowed, narrowing the move.
func Guard(to State, from ...State) ([]string, error) {
	if !to.Valid() {
		return nil, ErrInvalidState
	}
	if len(from) == 0 {
		from = transitions[to]
	}
	out := make([]string, 0, len(from))
	for _, s := range from {
		if !CanTransition(s, to) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s, to)
		}
		out = append(out, s.String())
	}
	return out, nil
}
