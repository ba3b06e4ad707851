package identify

import "strings"

// State is a step of an identification run.
type State int

const (
	StateStart State = iota
	StatePreprocessed
	StatePrimaryAttempted
	StatePrimaryAccepted
	StateFallbackAttempted
	StateDone
	StateError
)

var stateNames = [...]string{
	StateStart:             "START",
	StatePreprocessed:      "PREPROCESSED",
	StatePrimaryAttempted:  "PRIMARY_ATTEMPTED",
	StatePrimaryAccepted:   "PRIMARY_ACCEPTED",
	StateFallbackAttempted: "FALLBACK_ATTEMPTED",
	StateDone:              "DONE",
	StateError:             "ERROR",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// Trace is the sequence of states visited by one run.
type Trace []State

// Last returns the final state reached.
func (t Trace) Last() State {
	if len(t) == 0 {
		return StateStart
	}
	return t[len(t)-1]
}

func (t Trace) String() string {
	names := make([]string, len(t))
	for i, s := range t {
		names[i] = s.String()
	}
	return strings.Join(names, " -> ")
}
