package track

import (
	"go.uber.org/zap"
	"nyiyui.ca/hato/heisoku/circuit"
	"nyiyui.ca/hato/heisoku/layout"
)

// PreReserve queues the train for reservation once the section is released.
func (s *Section) PreReserve(t circuit.TrainRouted) {
	if s.State.PreReserved.ContainsTrain(t.Number) {
		return
	}
	s.State.PreReserved.Enqueue(t)
	s.net.publish(EventPreReserved, s.Index, t)
}

// Claim queues the train for the section and sets any deadlock trap the train carries for it.
func (s *Section) Claim(t circuit.TrainRouted) {
	if !s.State.Claimed.ContainsTrain(t.Number) {
		s.State.Claimed.Enqueue(t)
		s.net.publish(EventClaimed, s.Index, t)
	}
	tr := s.net.train(t.Number)
	if tr == nil {
		return
	}
	if infos, ok := tr.DeadlockInfo[s.Index]; ok {
		s.SetDeadlockTrapFor(tr, infos)
	}
}

// Reserve gives the train the exclusive reservation of the section, aligning switches
// along route and setting the deadlock traps the reservation implies.
func (s *Section) Reserve(t circuit.TrainRouted, route layout.Route) {
	if s.State.ThisTrainOccupying(t.Number) {
		return
	}
	tr := s.net.train(t.Number)
	if tr == nil {
		zap.S().Warnw("reserve for unknown train", "section", s.Index, "train", t)
		return
	}

	// reservation is only valid if the section is still ahead on the route
	valid := true
	if rear := tr.Positions[1].RouteIndex; rear > 0 {
		valid = tr.Routes[0].IndexOf(s.Index, rear) >= 0
	} else if front := tr.Positions[0].RouteIndex; front > 0 {
		valid = tr.Routes[0].IndexOf(s.Index, front) >= 0
	}
	if valid {
		r := t
		s.State.Reserved = &r
	}
	s.State.Claimed.RemoveTrain(t.Number)
	s.net.publish(EventReserved, s.Index, t)

	i := route.IndexOf(s.Index, 0)
	if (s.Kind == layout.Junction || s.Kind == layout.Crossover) && !s.State.Forced {
		s.JunctionSetManual = -1
		if i > 0 {
			s.alignSwitchPins(route[i-1].Section)
		}
		if i >= 0 && i <= len(route)-2 {
			s.alignSwitchPins(route[i+1].Section)
		}
		s.resetPassingRoutes()
	}
	if i < 0 {
		return
	}
	e := route[i]

	for _, sig := range s.Signals[e.Direction] {
		if !s.net.Signals.IsNormal(sig) {
			s.net.Signals.Enable(sig, t)
		}
	}

	if infos, ok := tr.DeadlockInfo[s.Index]; ok && !tr.CheckWaitCondition(s.Index) {
		s.SetDeadlockTrapFor(tr, infos)
	}

	if !s.net.Options.LocationPassingPaths {
		if e.AlternativePath != nil {
			s.trapAhead(tr, s.net.Section(e.AlternativePath.EndSection))
		}
		return
	}
	if !e.FacingPoint || s.DeadlockReference < 0 {
		return
	}
	d := s.net.Deadlocks[s.DeadlockReference]
	if !d.HasTrainSubpathKey(tr.Number, tr.Subpath) {
		return
	}
	refs := d.TrainRefs[d.TrainSubpathKey(tr.Number, tr.Subpath)]
	if len(refs) == 0 {
		return
	}
	end := s.net.Section(d.Paths[refs[0]].EndSection)
	if _, ok := tr.DeadlockInfo[end.Index]; ok && tr.HasActiveWait(s.Index, end.Index) {
		return
	}
	s.trapAhead(tr, end)
}

// trapAhead sets the train's traps at end, the far end of a passing area, or marks it as awaiting a trap already there.
func (s *Section) trapAhead(tr *Train, end *Section) {
	if infos, ok := tr.DeadlockInfo[end.Index]; ok {
		end.SetDeadlockTrapFor(tr, infos)
		return
	}
	if _, trapped := end.DeadlockTraps[tr.Number]; trapped {
		end.DeadlockAwaited = addUnique(end.DeadlockAwaited, tr.Number)
	}
}

// SetOccupied marks the section occupied by the train, drops every reservation on it,
// and schedules its release once the train has cleared it plus the overlap.
func (s *Section) SetOccupied(t circuit.TrainRouted) {
	tr := s.net.train(t.Number)
	if tr == nil {
		zap.S().Warnw("occupy by unknown train", "section", s.Index, "train", t)
		return
	}
	s.setOccupied(t, tr, tr.DistanceTravelled)
}

func (s *Section) setOccupied(t circuit.TrainRouted, tr *Train, travelled float64) {
	route := tr.Routes[t.Dir]
	i := route.IndexOf(s.Index, tr.rear(t).RouteIndex)
	direction := 0
	if i >= 0 {
		direction = route[i].Direction
	}
	s.State.Occupy.Set(t, direction)
	s.State.Forced = false
	tr.addOccupied(s.Index)

	s.State.Reserved = nil
	s.State.SignalReserved = circuit.NoSignal
	s.State.Claimed.RemoveTrain(t.Number)
	s.State.PreReserved.RemoveTrain(t.Number)
	s.net.publish(EventOccupied, s.Index, t)

	overlap := s.net.Options.StandardOverlap
	switch {
	case s.Kind == layout.Junction && s.Pins[direction][1].Linked(), s.Kind == layout.Crossover:
		overlap = s.net.Options.JunctionOverlap
		if s.Overlap > 0 {
			overlap = s.Overlap
		}
	}
	distance := travelled + s.Length + overlap

	front, rear := tr.front(t), tr.rear(t)
	frontOffset := front.Offset
	if front.RouteIndex >= 0 && front.RouteIndex < len(route) && front.Direction != route[front.RouteIndex].Direction {
		frontOffset = s.Length - frontOffset
	}
	rearOffset := rear.Offset
	if rear.RouteIndex >= 0 && rear.RouteIndex < len(route) && rear.Direction != route[rear.RouteIndex].Direction {
		rearOffset = s.Length - rearOffset
	}
	switch s.Index {
	case front.Section:
		distance += tr.Length - frontOffset
	case rear.Section:
		distance -= rearOffset
	default:
		distance += tr.Length
	}
	// releases must happen in the order sections were occupied
	if last, ok := tr.lastClearingDistance(); ok && last > distance {
		distance = last
	}
	tr.insertClearAction(ClearAction{Distance: distance, Section: s.Index})

	if infos, ok := tr.DeadlockInfo[s.Index]; ok {
		s.SetDeadlockTrapFor(tr, infos)
	}
	if len(tr.AltRoute) > 0 && tr.AltRoute[0].Section == s.Index {
		end := s.net.Section(tr.AltRoute[len(tr.AltRoute)-1].Section)
		if infos, ok := tr.DeadlockInfo[end.Index]; ok {
			end.SetDeadlockTrapFor(tr, infos)
		}
	}
}

// ClearOccupied releases the section from the train: occupation, reservation, claims, and the traps
// it set here. Signals enabled for the train are reset, switches de-aligned once the section is empty,
// and the first pre-reserving train, if any, is given the reservation.
func (s *Section) ClearOccupied(t circuit.TrainRouted, resetEndSignal bool) {
	tr := s.net.train(t.Number)
	if s.State.Occupy.ContainsTrain(t.Number) {
		s.State.Occupy.RemoveTrain(t.Number)
		if tr != nil {
			tr.removeOccupied(s.Index)
		}
		s.net.publish(EventCleared, s.Index, t)
	}
	s.RemoveTrain(t, false)
	s.ClearDeadlockTrap(t.Number)

	sigs := s.net.Signals
	for d := 0; d < 2; d++ {
		if end := s.EndSignals[d]; end != NoSignal && resetEndSignal {
			if enabled, ok := sigs.Enabled(end); ok && enabled == t {
				sigs.ResetEnabled(end)
			}
		}
		for _, sig := range s.Signals[d] {
			if enabled, ok := sigs.Enabled(sig); ok && enabled == t {
				sigs.ResetEnabled(sig)
			}
		}
	}

	if (s.Kind == layout.Junction || s.Kind == layout.Crossover) && s.State.Occupy.Len() == 0 {
		s.deAlignSwitchPins()
		s.resetPassingRoutes()
	}
	if tr != nil && tr.Manual && s.Kind == layout.Junction && s.JunctionSetManual >= 0 {
		s.JunctionSetManual = -1
	}

	if s.State.Occupy.Len() == 0 && s.State.PreReserved.Len() > 0 {
		next, _ := s.State.PreReserved.Dequeue()
		if nt := s.net.train(next.Number); nt != nil {
			s.Reserve(next, nt.Routes[next.Dir])
		}
	}
}

// ClearOccupiedTrain is ClearOccupied for both route directions of the train.
func (s *Section) ClearOccupiedTrain(tr *Train, resetEndSignal bool) {
	s.ClearOccupied(tr.Forward(), resetEndSignal)
	s.ClearOccupied(tr.Backward(), resetEndSignal)
}

// ResetOccupied drops the train's occupation only, for a reversal or mode change without movement.
func (s *Section) ResetOccupied(t circuit.TrainRouted) {
	if !s.State.Occupy.ContainsTrain(t.Number) {
		return
	}
	s.State.Occupy.RemoveTrain(t.Number)
	if tr := s.net.train(t.Number); tr != nil {
		tr.removeOccupied(s.Index)
	}
}

// RemoveTrain removes every hold the train has on the section.
func (s *Section) RemoveTrain(t circuit.TrainRouted, resetEndSignal bool) {
	if s.State.ThisTrainOccupying(t.Number) {
		s.ClearOccupied(t, resetEndSignal)
	}
	s.UnreserveTrain(t, resetEndSignal)
}

// UnreserveTrain removes the train's reservation, claim, and pre-reservation.
func (s *Section) UnreserveTrain(t circuit.TrainRouted, resetEndSignal bool) {
	if s.State.ReservedBy(t.Number) {
		s.State.Reserved = nil
		// resets signals and switches
		s.ClearOccupied(t, resetEndSignal)
	}
	s.State.Claimed.RemoveTrain(t.Number)
	s.State.PreReserved.RemoveTrain(t.Number)
}

func (s *Section) UnclaimTrain(t circuit.TrainRouted) {
	s.State.Claimed.RemoveTrain(t.Number)
}

// Unreserve drops the signal reservation.
func (s *Section) Unreserve() {
	s.State.SignalReserved = circuit.NoSignal
}

// ClearReservation drops the train reservation without touching signals or switches.
func (s *Section) ClearReservation() {
	s.State.Reserved = nil
}

// ClearReversalClaims drops every claim on this section and, for the claiming trains, every
// claim they hold further along the train's route, then claims those sections for the train.
func (s *Section) ClearReversalClaims(t circuit.TrainRouted) {
	claimed := s.State.Claimed.Items()
	for _, c := range claimed {
		s.UnclaimTrain(c)
		if ct := s.net.train(c.Number); ct != nil {
			ct.ClaimState = false
		}
	}
	tr := s.net.train(t.Number)
	if tr == nil {
		return
	}
	route := tr.Routes[t.Dir]
	i := route.IndexOf(s.Index, 0)
	for j := i + 1; j < len(route) && len(claimed) > 0; j++ {
		next := s.net.Section(route[j].Section)
		for k := len(claimed) - 1; k >= 0; k-- {
			if next.State.Claimed.ContainsTrain(claimed[k].Number) {
				next.UnclaimTrain(claimed[k])
			} else {
				claimed = append(claimed[:k], claimed[k+1:]...)
			}
		}
		next.Claim(t)
	}
}

// ClearSectionsOfTrainBehind takes back the reservations of t from this section onwards, so that
// a train placed on them can use them, and resets the last signal t cleared behind this section.
func (s *Section) ClearSectionsOfTrainBehind(t circuit.TrainRouted) {
	s.UnreserveTrain(t, true)
	tr := s.net.train(t.Number)
	if tr == nil {
		return
	}
	route := tr.Routes[0]
	start := route.IndexOf(s.Index, 0) + 1
	for i := start; i < len(route); i++ {
		next := s.net.Section(route[i].Section)
		if next.State.Reserved == nil {
			break
		}
		next.UnreserveTrain(t, true)
	}
	own := tr.Routes[t.Dir]
	for i := start - 2; i >= tr.Positions[0].RouteIndex && i >= 0 && i < len(own); i-- {
		e := own[i]
		if sig := s.net.Section(e.Section).EndSignals[e.Direction]; sig != NoSignal {
			s.net.Signals.ResetSignal(sig)
			break
		}
	}
}

func (s *Section) resetPassingRoutes() {
	for _, sig := range s.SignalsPassingRoutes {
		s.net.Signals.ResetRoute(sig, s.Index)
	}
	s.SignalsPassingRoutes = nil
}

// alignSwitchPins activates the pin towards linked, and the matching pin on linked.
func (s *Section) alignSwitchPins(linked int) {
	alignDirection, alignLink := -1, -1
	for d := 0; d < 2; d++ {
		for l := 0; l < 2; l++ {
			if s.Pins[d][l].Link == linked {
				alignDirection, alignLink = d, l
			}
		}
	}
	if alignDirection >= 0 {
		s.ActivePins[alignDirection] = [2]layout.Pin{layout.Unlinked, layout.Unlinked}
		s.ActivePins[alignDirection][alignLink] = s.Pins[alignDirection][alignLink]

		other := s.net.Section(linked)
		for d := 0; d < 2; d++ {
			for l := 0; l < 2; l++ {
				if other.Pins[d][l].Link == s.Index {
					other.ActivePins[d][l] = other.Pins[d][l]
				}
			}
		}
	}
	if s.Kind != layout.Junction {
		return
	}
	for d := 0; d < 2; d++ {
		if !s.switchable(d) {
			continue
		}
		for pos := 0; pos < 2; pos++ {
			if s.ActivePins[d][pos].Linked() {
				s.JunctionLastRoute = pos
				s.net.Signals.SetSwitch(s.Index, pos)
			}
		}
	}
}

// deAlignSwitchPins deactivates the switchable end and the pins pointing back at it.
func (s *Section) deAlignSwitchPins() {
	for d := 0; d < 2; d++ {
		if !s.switchable(d) {
			continue
		}
		for l := 0; l < 2; l++ {
			pin := s.Pins[d][l]
			s.ActivePins[d][l] = layout.Unlinked
			if pin.Linked() {
				s.net.Section(pin.Link).ActivePins[layout.Opposite(pin.Direction)][0] = layout.Unlinked
			}
		}
	}
}

// ProcessClearActions releases every section the train has travelled far enough past.
func (n *Network) ProcessClearActions(tr *Train) {
	for len(tr.ClearActions) > 0 && tr.ClearActions[0].Distance <= tr.DistanceTravelled {
		a := tr.ClearActions[0]
		tr.ClearActions = tr.ClearActions[1:]
		n.Section(a.Section).ClearOccupiedTrain(tr, true)
	}
}
