package track

import (
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/heisoku/circuit"
)

// SetDeadlockTrapFor sets the traps described by a train's deadlock info for this section.
// Each entry maps another train to the far section of the stretch where the two would meet;
// a trap is set there holding the other train back, unless the far section is no longer
// ahead of the train, is already set for the other train, or the other train already holds
// this train back here.
func (s *Section) SetDeadlockTrapFor(tr *Train, infos []map[int]int) {
	for _, info := range infos {
		for _, other := range sortedKeys(info) {
			endIndex := info[other]
			if tr.Routes[0].IndexOf(endIndex, tr.Positions[0].RouteIndex) < 0 {
				continue
			}
			end := s.net.Section(endIndex)
			if ot := s.net.train(other); ot != nil && end.IsSetTrain(ot, true) {
				break
			}
			if slices.Contains(s.DeadlockTraps[tr.Number], other) {
				break
			}
			end.SetDeadlockTrap(tr.Number, other)
		}
	}
}

// SetDeadlockTrap holds other back at this section for as long as holder's trap stands.
func (s *Section) SetDeadlockTrap(holder, other int) {
	s.net.trace().Debugw("set trap",
		"section", s.Index,
		"holder", holder,
		"other", other)
	s.DeadlockTraps[other] = addUnique(s.DeadlockTraps[other], holder)
	s.DeadlockActives = addUnique(s.DeadlockActives, holder)
	s.net.publish(EventTrapSet, s.Index, trainRoutedOf(other))
}

// ClearDeadlockTrap drops every trap holder set here, and holder's wait for a trap here.
func (s *Section) ClearDeadlockTrap(holder int) {
	if slices.Contains(s.DeadlockActives, holder) {
		s.net.trace().Debugw("clear traps",
			"section", s.Index,
			"holder", holder)
		for other, holders := range s.DeadlockTraps {
			if !slices.Contains(holders, holder) {
				continue
			}
			holders = removeValue(holders, holder)
			if len(holders) == 0 {
				delete(s.DeadlockTraps, other)
				s.net.publish(EventTrapCleared, s.Index, trainRoutedOf(other))
			} else {
				s.DeadlockTraps[other] = holders
			}
		}
		s.DeadlockActives = removeValue(s.DeadlockActives, holder)
	}
	s.DeadlockAwaited = removeValue(s.DeadlockAwaited, holder)
}

// CheckDeadlockAwaited reports whether any train other than number awaits a trap here.
func (s *Section) CheckDeadlockAwaited(number int) bool {
	n := len(s.DeadlockAwaited)
	if slices.Contains(s.DeadlockAwaited, number) {
		n--
	}
	return n > 0
}

func trainRoutedOf(number int) circuit.TrainRouted {
	return circuit.TrainRouted{Number: number}
}
