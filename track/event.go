package track

import (
	"fmt"

	"nyiyui.ca/hato/heisoku/circuit"
)

type EventKind string

const (
	EventPreReserved EventKind = "pre-reserved"
	EventClaimed     EventKind = "claimed"
	EventReserved    EventKind = "reserved"
	EventOccupied    EventKind = "occupied"
	EventCleared     EventKind = "cleared"
	EventTrapSet     EventKind = "trap-set"
	EventTrapCleared EventKind = "trap-cleared"
)

// Event reports a change of a section's reservation state.
type Event struct {
	Kind    EventKind           `json:"kind"`
	Section int                 `json:"section"`
	Train   circuit.TrainRouted `json:"train"`
	Tick    int                 `json:"tick"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%d %s @%d)", e.Kind, e.Section, e.Train, e.Tick)
}
