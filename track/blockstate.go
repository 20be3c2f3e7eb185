package track

import (
	"fmt"

	"nyiyui.ca/hato/heisoku/circuit"
	"nyiyui.ca/hato/heisoku/layout"
)

// Blockstate is a section's state as seen by a signal. Larger is more restrictive.
type Blockstate int

const (
	Reservable Blockstate = iota
	Open
	Reserved
	OccupiedSameDirection
	OccupiedOppositeDirection
	ReservedOther
	Blocked
	ForcedWait
)

func (b Blockstate) String() string {
	switch b {
	case Reservable:
		return "reservable"
	case Open:
		return "open"
	case Reserved:
		return "reserved"
	case OccupiedSameDirection:
		return "occupied-same-direction"
	case OccupiedOppositeDirection:
		return "occupied-opposite-direction"
	case ReservedOther:
		return "reserved-other"
	case Blocked:
		return "blocked"
	case ForcedWait:
		return "forced-wait"
	default:
		return fmt.Sprintf("%d", b)
	}
}

type blockQuery struct {
	s         *Section
	t         *circuit.TrainRouted
	tr        *Train
	direction int
	route     layout.Route
	signal    int

	state Blockstate
	set   bool
}

func (q *blockQuery) put(b Blockstate) {
	q.state = b
	q.set = true
}

// blockGuards refine the state in order, each seeing what the earlier ones set.
var blockGuards = []func(q *blockQuery){
	blockOccupation,
	blockSwitch,
	blockReservation,
	blockSignalReservation,
	blockClaim,
	blockWait,
	blockTrap,
}

// GetSectionState returns the state of the section for a signal clearing a route for t
// (nil when no train is known) in direction. The result is never less restrictive than passed.
func (s *Section) GetSectionState(t *circuit.TrainRouted, direction int, passed Blockstate, route layout.Route, signal int) Blockstate {
	q := &blockQuery{
		s:         s,
		t:         t,
		direction: direction,
		route:     route,
		signal:    signal,
		state:     Reservable,
	}
	if t != nil {
		q.tr = s.net.train(t.Number)
	}
	for _, g := range blockGuards {
		g(q)
	}
	if q.state > passed {
		return q.state
	}
	return passed
}

func blockOccupation(q *blockQuery) {
	st := &q.s.State
	switch {
	case q.t != nil && st.Occupy.ContainsTrain(q.t.Number):
		q.put(Reserved)
	case st.HasTrainsOccupyingIn(q.direction, true, q.s.net.speedOf):
		q.put(OccupiedSameDirection)
	case st.HasTrainsOccupyingIn(layout.Opposite(q.direction), false, q.s.net.speedOf):
		q.put(OccupiedOppositeDirection)
	}
}

// blockSwitch blocks an occupied switch unless it is (or can be) set for the route.
func blockSwitch(q *blockQuery) {
	s := q.s
	if s.Kind != layout.Junction && s.Kind != layout.Crossover {
		return
	}
	if !s.State.HasTrainsOccupying() {
		return
	}
	if q.route == nil {
		q.put(Blocked)
		return
	}
	pin := -1
	for d := 0; d < 2 && pin < 0; d++ {
		if s.switchable(d) {
			pin = d
		}
	}
	if pin < 0 {
		return
	}
	exit := -1
	for l := 0; l < 2; l++ {
		if q.route.IndexOf(s.Pins[pin][l].Link, 0) >= 0 {
			exit = l
		}
	}
	if exit < 0 || (!s.ActivePins[pin][exit].Linked() && s.ActivePins[pin][1-exit].Linked()) {
		q.put(Blocked)
	}
}

func blockReservation(q *blockQuery) {
	r := q.s.State.Reserved
	if r == nil || q.t == nil || q.set {
		return
	}
	if r.Number == q.t.Number {
		q.put(Reserved)
		return
	}
	q.state = ReservedOther
}

func blockSignalReservation(q *blockQuery) {
	if sr := q.s.State.SignalReserved; sr != circuit.NoSignal && sr != q.signal {
		q.put(ReservedOther)
	}
}

func blockClaim(q *blockQuery) {
	if q.set || q.t == nil {
		return
	}
	if head, ok := q.s.State.Claimed.Peek(); ok && head.Number != q.t.Number {
		q.put(Open)
	}
}

func blockWait(q *blockQuery) {
	if q.tr == nil || !q.tr.CheckWaitCondition(q.s.Index) {
		return
	}
	if !q.set || q.state < ForcedWait {
		q.state = ForcedWait
		q.tr.ClaimState = false
	}
}

func blockTrap(q *blockQuery) {
	if q.t == nil || q.state == ForcedWait {
		return
	}
	holders, trapped := q.s.DeadlockTraps[q.t.Number]
	if !trapped || !q.s.net.verifyDeadlock(holders) {
		return
	}
	q.put(Blocked)
	q.s.DeadlockAwaited = addUnique(q.s.DeadlockAwaited, q.t.Number)
}
