package track

import (
	"nyiyui.ca/hato/heisoku/layout"
)

// TrainAhead is a train found ahead within a section.
type TrainAhead struct {
	Train *Train
	// Distance from the queried offset to the nearest end of Train (m).
	Distance float64
}

// TestTrainAhead looks for another train ahead of offset in the section, looking in direction.
// A train travelling the same way is measured to its rear, one travelling the other way to its
// front. tr is the asking train and may be nil.
func (s *Section) TestTrainAhead(tr *Train, offset float64, direction int) (TrainAhead, bool) {
	var found *Train
	// always within the section
	distance := s.Length + 1
	for _, nt := range s.State.Occupy.Trains() {
		if tr != nil && nt.Number == tr.Number {
			continue
		}
		next := s.net.train(nt.Number)
		if next == nil {
			continue
		}
		route := next.Routes[nt.Dir]
		nextIndex := route.IndexOf(s.Index, 0)
		if nextIndex < 0 {
			// off its route: decide by where its occupied track is on ours
			distance = offset
			if tr == nil {
				found = next
				continue
			}
			front := tr.Positions[0].RouteIndex
			for _, occ := range next.OccupiedTrack {
				i := tr.Routes[0].IndexOf(occ, 0)
				switch {
				case i >= 0 && i < front:
					found = nil
				case i >= 0 && i > front:
					found = next
				}
			}
			continue
		}
		nextFront, nextRear := next.front(nt), next.rear(nt)
		if route[nextIndex].Direction == direction {
			if nextRear.Section == s.Index {
				switch {
				case nextRear.Offset < distance && nextRear.Offset >= offset:
					distance = nextRear.Offset
					found = next
				case nextRear.Offset < offset && nextRear.Offset+next.Length > offset:
					// we are inside it
					distance = offset
					found = next
				}
				continue
			}
			if d, ok := s.spanAhead(tr, next, route, nextIndex, nextRear.Section, nextFront.Section, offset, true); ok {
				distance, found = d, next
			}
			continue
		}
		remaining := s.Length - nextFront.Offset
		if nextFront.Section == s.Index {
			if remaining < distance && remaining >= offset {
				distance = remaining
				found = next
			}
			// front already passed offset but the rest of the train has not
			if tr != nil && remaining < distance && remaining < offset && remaining >= offset-next.Length {
				distance = offset
				found = next
			}
			continue
		}
		if d, ok := s.spanAhead(tr, next, route, nextIndex, nextFront.Section, nextRear.Section, offset, false); ok {
			distance, found = d, next
		}
	}
	if found == nil || distance < offset {
		return TrainAhead{}, false
	}
	return TrainAhead{Train: found, Distance: distance - offset}, true
}

// spanAhead handles a train whose near end is in another section. near and far are the sections
// of the ends of next closest to and furthest from us along its route. It returns the distance
// before offset is deducted.
func (s *Section) spanAhead(tr, next *Train, route layout.Route, nextIndex, near, far int, offset float64, sameDirection bool) (float64, bool) {
	nearIndex, farIndex := route.IndexOf(near, 0), route.IndexOf(far, 0)
	used := nextIndex
	if tr != nil && (nearIndex < 0 || farIndex < 0) {
		nearIndex = tr.Routes[0].IndexOf(near, 0)
		farIndex = tr.Routes[0].IndexOf(far, 0)
		used = tr.Routes[0].IndexOf(s.Index, 0)
	}
	if nearIndex < 0 || farIndex < 0 {
		return 0, false
	}
	if nearIndex < used {
		if farIndex > used {
			// spans the section
			return offset, true
		}
		return 0, false
	}
	if tr == nil || len(tr.Routes[0]) == 0 {
		return 0, false
	}
	present := tr.Positions[0].RouteIndex
	last := tr.Routes[0].IndexOf(next.Positions[1].Section, present)
	if (sameDirection && last < present) || (!sameDirection && last <= present) {
		return 0, false
	}
	d := s.Length
	for i := nextIndex + 1; i <= next.Positions[1].RouteIndex-1 && i < len(route); i++ {
		d += s.net.Section(route[i].Section).Length
	}
	return d + next.Positions[1].Offset, true
}

// DistanceBetween follows the active links from the start position to the end section and
// returns the distance between the two positions, or -1 if the end is not reached. If the
// links lead back to the start the distance so far is returned.
func (n *Network) DistanceBetween(startSection int, startOffset float64, startDirection int, endSection int, endOffset float64) float64 {
	current := startSection
	direction := startDirection
	s := n.Section(current)
	var distance float64
	last := -2
	for current != endSection && current >= 0 {
		distance += s.Length
		next := s.GetNextActiveLink(direction, last)
		last = current
		current = next.Link
		direction = next.Direction
		if current >= 0 {
			s = n.Section(current)
			if current == startSection {
				return distance - startOffset
			}
		}
	}
	if current == endSection {
		return distance + endOffset - startOffset
	}
	return -1
}

// CanPlaceTrain reports whether a train of length can be placed at offset in the section
// without overlapping or meeting another train.
func (s *Section) CanPlaceTrain(tr *Train, offset, length float64) bool {
	if s.IsAvailableTrain(tr) {
		return true
	}
	if s.State.Reserved != nil || s.State.Claimed.Len() > 0 {
		return false
	}
	if _, trapped := s.DeadlockTraps[tr.Number]; trapped {
		return false
	}
	if s.Kind != layout.Normal {
		return false
	}
	if offset == 0 && length > s.Length {
		return false
	}

	fromStart := offset
	rear := tr.Positions[1]
	var ahead TrainAhead
	var ok bool
	if rear.Section == s.Index {
		ahead, ok = s.TestTrainAhead(tr, fromStart, rear.Direction)
	} else {
		fromStart = 0
		ahead, ok = s.TestTrainAhead(tr, 0, rear.Direction)
	}
	if ok {
		if ahead.Distance < length {
			return false
		}
		p := ahead.Train.Positions[0]
		if p.Section == s.Index && ahead.Train.Speed > 0 && p.Direction != tr.Positions[0].Direction {
			// coming towards us
			return false
		}
	}

	front := tr.Positions[0]
	behindOffset := 0.0
	if front.Section == s.Index {
		behindOffset = s.Length - (length + fromStart)
	}
	if behind, ok := s.TestTrainAhead(tr, behindOffset, layout.Opposite(front.Direction)); ok && behind.Distance < length {
		return false
	}
	return true
}
