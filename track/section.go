package track

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/heisoku/circuit"
	"nyiyui.ca/hato/heisoku/layout"
)

// NoSignal marks the absence of an end signal.
const NoSignal = -1

// Section is a track circuit section: the unit of reservation.
type Section struct {
	Index int
	// Comment is a human-readable name, used for lookups and logging.
	Comment string
	Kind    layout.Kind
	// Length in metres.
	Length float64
	// Pins[d] are the sections reached when leaving in direction d. Only junctions and crossovers use Pins[d][1].
	Pins       [2][2]layout.Pin
	ActivePins [2][2]layout.Pin
	// EndSignals[d] is the signal at the end of the section in direction d.
	EndSignals [2]int
	// Signals[d] are the other signals and speed posts along the section facing direction d.
	Signals [2][]int
	// Overlap overrides the junction overlap if positive.
	Overlap              float64
	JunctionDefaultRoute int
	JunctionLastRoute    int
	JunctionSetManual    int
	AILock               bool
	SignalsPassingRoutes []int

	State circuit.State

	// DeadlockTraps maps a train that must not enter to the trains whose reservation set the trap.
	DeadlockTraps map[int][]int
	// DeadlockActives are the trains that set traps here.
	DeadlockActives []int
	// DeadlockAwaited are the trains that found a trap here and are waiting for it to clear.
	DeadlockAwaited []int
	// DeadlockReference is the deadlock area this section bounds, or -1.
	DeadlockReference int
	// DeadlockBoundaries maps a deadlock area to the path this (interior) section is on. Nil until set.
	DeadlockBoundaries map[int]int

	net *Network
}

// NewSection returns an unconnected section.
func NewSection(comment string, kind layout.Kind, length float64) *Section {
	s := &Section{
		Comment:              comment,
		Kind:                 kind,
		Length:               length,
		EndSignals:           [2]int{NoSignal, NoSignal},
		JunctionDefaultRoute: -1,
		JunctionLastRoute:    -1,
		JunctionSetManual:    -1,
		State:                circuit.NewState(),
		DeadlockTraps:        map[int][]int{},
		DeadlockReference:    -1,
	}
	for d := 0; d < 2; d++ {
		for l := 0; l < 2; l++ {
			s.Pins[d][l] = layout.Unlinked
			s.ActivePins[d][l] = layout.Unlinked
		}
	}
	return s
}

func (s *Section) String() string {
	if s.Comment != "" {
		return fmt.Sprintf("%d(%s)", s.Index, s.Comment)
	}
	return fmt.Sprintf("%d", s.Index)
}

// Link connects end direction/slot of s to section to, entered in toDirection.
// The reverse pin on to is set as well. Switchable ends start unaligned.
func (s *Section) Link(direction, slot int, to *Section, toDirection int) {
	s.Pins[direction][slot] = layout.Pin{Link: to.Index, Direction: toDirection}
	back := layout.Opposite(toDirection)
	toSlot := 0
	if to.Pins[back][0].Linked() && to.Pins[back][0].Link != s.Index {
		toSlot = 1
	}
	to.Pins[back][toSlot] = layout.Pin{Link: s.Index, Direction: layout.Opposite(direction)}
	s.resetActivePins()
	to.resetActivePins()
}

func (s *Section) switchable(direction int) bool {
	return s.Pins[direction][1].Linked()
}

func (s *Section) resetActivePins() {
	for d := 0; d < 2; d++ {
		if s.switchable(d) {
			s.ActivePins[d] = [2]layout.Pin{layout.Unlinked, layout.Unlinked}
			continue
		}
		s.ActivePins[d] = s.Pins[d]
	}
}

// IsSet reports whether the section is already set for the train: occupied by it, reserved for it,
// or, if claimIsValid, claimed with the train at the head of the claim queue.
func (s *Section) IsSet(t circuit.TrainRouted, claimIsValid bool) bool {
	if s.State.ThisTrainOccupying(t.Number) {
		return true
	}
	if s.State.ReservedBy(t.Number) {
		return true
	}
	if s.State.Claimed.Len() > 0 && claimIsValid {
		head, _ := s.State.Claimed.Peek()
		return head.Number == t.Number
	}
	return false
}

// IsSetTrain is IsSet for either route direction of the train.
func (s *Section) IsSetTrain(t *Train, claimIsValid bool) bool {
	return s.IsSet(t.Forward(), claimIsValid) || s.IsSet(t.Backward(), claimIsValid)
}

// CheckReserved reports whether the section is reserved for the train.
func (s *Section) CheckReserved(t circuit.TrainRouted) bool {
	return s.State.ReservedBy(t.Number)
}

// GetNextActiveLink returns the active pin to leave through in direction, having come from section last.
func (s *Section) GetNextActiveLink(direction, last int) layout.Pin {
	if s.Kind == layout.Crossover {
		in := layout.Opposite(direction)
		switch last {
		case s.Pins[in][0].Link:
			return s.ActivePins[direction][0]
		case s.Pins[in][1].Link:
			return s.ActivePins[direction][1]
		default:
			return layout.Unlinked
		}
	}
	if s.ActivePins[direction][0].Linked() {
		return s.ActivePins[direction][0]
	}
	return s.ActivePins[direction][1]
}

func addUnique(s []int, v int) []int {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}

func removeValue(s []int, v int) []int {
	i := slices.Index(s, v)
	if i == -1 {
		return s
	}
	return slices.Delete(s, i, i+1)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
