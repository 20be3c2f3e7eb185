package track

import (
	"nyiyui.ca/hato/heisoku/circuit"
)

// availabilityGuard decides availability or passes to the next guard.
type availabilityGuard struct {
	name  string
	check func(s *Section, t circuit.TrainRouted, tr *Train) (decided, available bool)
}

// availabilityGuards are evaluated in order; the first to decide wins.
var availabilityGuards []availabilityGuard

func init() {
	// set here: guardDeadlockArea reaches IsAvailable again
	availabilityGuards = []availabilityGuard{
		{"own-occupation", guardOwnOccupation},
		{"other-occupation", guardOtherOccupation},
		{"reservation", guardReservation},
		{"signal-reservation", guardSignalReservation},
		{"claim", guardClaim},
		{"deadlock-trap", guardDeadlockTrap},
		{"deadlock-area", guardDeadlockArea},
	}
}

// IsAvailable reports whether the train may reserve the section now.
// A train held back by a deadlock trap is added to the awaited set as a side effect.
func (s *Section) IsAvailable(t circuit.TrainRouted) bool {
	tr := s.net.train(t.Number)
	for _, g := range availabilityGuards {
		decided, available := g.check(s, t, tr)
		if decided {
			s.net.trace().Debugw("availability",
				"section", s.Index,
				"train", t,
				"guard", g.name,
				"available", available)
			return available
		}
	}
	return true
}

// IsAvailableTrain is IsAvailable for either route direction of the train.
func (s *Section) IsAvailableTrain(tr *Train) bool {
	return s.IsAvailable(tr.Forward()) || s.IsAvailable(tr.Backward())
}

func guardOwnOccupation(s *Section, t circuit.TrainRouted, _ *Train) (bool, bool) {
	return s.State.ThisTrainOccupying(t.Number), true
}

func guardOtherOccupation(s *Section, t circuit.TrainRouted, _ *Train) (bool, bool) {
	return s.State.HasOtherTrainsOccupying(t), false
}

// guardReservation refuses a section reserved by another train, except that a train
// not yet started, or a player train still at its initial placement on the section,
// takes the reservation over from the other train.
func guardReservation(s *Section, t circuit.TrainRouted, tr *Train) (bool, bool) {
	r := s.State.Reserved
	if r == nil {
		return false, false
	}
	if r.Number == t.Number {
		return true, true
	}
	switch {
	case tr != nil && tr.NotStarted:
		s.ClearSectionsOfTrainBehind(*r)
		return false, false
	case tr != nil && tr.atInitialPlacement():
		if s.underTrain(tr) {
			s.ClearSectionsOfTrainBehind(*r)
		}
		return false, false
	default:
		return true, false
	}
}

// underTrain reports whether the section lies between the train's rear and front on its route.
func (s *Section) underTrain(tr *Train) bool {
	i := tr.Routes[0].IndexOf(s.Index, 0)
	if i < 0 {
		return false
	}
	front, rear := tr.Positions[0].RouteIndex, tr.Positions[1].RouteIndex
	return (i <= front && i >= rear) || (i >= front && i <= rear)
}

func guardSignalReservation(s *Section, _ circuit.TrainRouted, _ *Train) (bool, bool) {
	return s.State.SignalReserved != circuit.NoSignal, false
}

func guardClaim(s *Section, t circuit.TrainRouted, _ *Train) (bool, bool) {
	head, ok := s.State.Claimed.Peek()
	if !ok {
		return false, false
	}
	return true, head.Number == t.Number
}

func guardDeadlockTrap(s *Section, t circuit.TrainRouted, _ *Train) (bool, bool) {
	if _, trapped := s.DeadlockTraps[t.Number]; !trapped {
		return false, false
	}
	s.DeadlockAwaited = addUnique(s.DeadlockAwaited, t.Number)
	return true, false
}

// guardDeadlockArea keeps one track of a passing area open. Path based: refuse to enter an
// alternative path while another train awaits a trap at its far end. Location based: at a
// facing point into a deadlock area, require at least one conflict-free passing path.
func guardDeadlockArea(s *Section, t circuit.TrainRouted, tr *Train) (bool, bool) {
	if tr == nil || len(tr.Routes[t.Dir]) == 0 {
		return false, false
	}
	route := tr.Routes[t.Dir]
	i := route.IndexOf(s.Index, 0)
	if i < 0 {
		return false, false
	}
	e := route[i]
	if !s.net.Options.LocationPassingPaths {
		if e.AlternativePath == nil {
			return false, false
		}
		end := s.net.Section(e.AlternativePath.EndSection)
		return end.CheckDeadlockAwaited(t.Number), false
	}
	if s.DeadlockReference < 0 || !e.FacingPoint {
		return false, false
	}
	d := s.net.Deadlocks[s.DeadlockReference]
	if !d.HasTrainSubpathKey(tr.Number, tr.Subpath) {
		return false, false
	}
	paths := d.CheckDeadlockPathAvailability(s, tr)
	s.net.trace().Debugw("paths available",
		"section", s.Index,
		"train", tr.Number,
		"paths", paths)
	return len(paths) == 0, false
}
