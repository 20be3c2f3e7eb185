package circuit

import (
	"math"

	"nyiyui.ca/hato/heisoku/codec"
)

// StationarySpeed is the speed (m/s) at or below which an occupying train counts as stationary.
const StationarySpeed = 0.5

// NoSignal is SignalReserved when no signal holds the section.
const NoSignal = -1

// State is the reservation state of one section.
type State struct {
	Occupy OccupyState
	// Reserved is the train holding the exclusive reservation, if any.
	Reserved       *TrainRouted
	SignalReserved int
	PreReserved    Queue
	Claimed        Queue
	// Forced is set by a dispatcher to hold the section.
	Forced bool
}

func NewState() State {
	return State{SignalReserved: NoSignal}
}

func (s *State) HasTrainsOccupying() bool { return s.Occupy.Len() > 0 }

// HasTrainsOccupyingIn reports whether a moving train occupies the section in direction,
// or, if stationary is set, whether any (almost) stationary train occupies it at all.
func (s *State) HasTrainsOccupyingIn(direction int, stationary bool, speed func(number int) float64) bool {
	return s.hasOccupying(direction, stationary, speed, -1)
}

// HasOtherTrainsOccupyingIn is HasTrainsOccupyingIn ignoring the given train.
func (s *State) HasOtherTrainsOccupyingIn(direction int, stationary bool, speed func(number int) float64, self int) bool {
	return s.hasOccupying(direction, stationary, speed, self)
}

func (s *State) hasOccupying(direction int, stationary bool, speed func(number int) float64, self int) bool {
	for _, e := range s.Occupy.entries {
		if e.Train.Number == self {
			continue
		}
		v := math.Abs(speed(e.Train.Number))
		if e.Direction == direction && v > StationarySpeed {
			return true
		}
		if v <= StationarySpeed && stationary {
			return true
		}
	}
	return false
}

// HasOtherTrainsOccupying reports whether anything other than t occupies the section.
func (s *State) HasOtherTrainsOccupying(t TrainRouted) bool {
	switch s.Occupy.Len() {
	case 0:
		return false
	case 1:
		return !s.Occupy.ContainsTrain(t.Number)
	default:
		return true
	}
}

func (s *State) ThisTrainOccupying(number int) bool { return s.Occupy.ContainsTrain(number) }

// ReservedBy reports whether the train holds the reservation in either route direction.
func (s *State) ReservedBy(number int) bool {
	return s.Reserved != nil && s.Reserved.Number == number
}

// Save writes the state in order: occupants (number, route direction, direction),
// reservation (-1, or number and route direction), signal reservation,
// pre-reservations, claims, and the forced flag.
func (s *State) Save(w *codec.Writer) {
	w.Int(s.Occupy.Len())
	for _, e := range s.Occupy.entries {
		w.Int(e.Train.Number)
		w.Int(e.Train.Dir)
		w.Int(e.Direction)
	}
	if s.Reserved == nil {
		w.Int(-1)
	} else {
		w.Int(s.Reserved.Number)
		w.Int(s.Reserved.Dir)
	}
	w.Int(s.SignalReserved)
	saveQueue(w, &s.PreReserved)
	saveQueue(w, &s.Claimed)
	w.Bool(s.Forced)
}

func saveQueue(w *codec.Writer, q *Queue) {
	w.Int(q.Len())
	for _, t := range q.items {
		w.Int(t.Number)
		w.Int(t.Dir)
	}
}

// Restore reads a state written by Save. Errors are left on r.
func Restore(r *codec.Reader) State {
	s := NewState()
	n := r.Count()
	for i := 0; i < n && r.Err() == nil; i++ {
		t := TrainRouted{Number: r.Int(), Dir: r.Int()}
		s.Occupy.Set(t, r.Int())
	}
	if number := r.Int(); number >= 0 {
		s.Reserved = &TrainRouted{Number: number, Dir: r.Int()}
	}
	s.SignalReserved = r.Int()
	restoreQueue(r, &s.PreReserved)
	restoreQueue(r, &s.Claimed)
	s.Forced = r.Bool()
	return s
}

func restoreQueue(r *codec.Reader, q *Queue) {
	n := r.Count()
	for i := 0; i < n && r.Err() == nil; i++ {
		q.Enqueue(TrainRouted{Number: r.Int(), Dir: r.Int()})
	}
}

// Retain drops every reference to a train for which known returns false.
func (s *State) Retain(known func(number int) bool) {
	for _, t := range s.Occupy.Trains() {
		if !known(t.Number) {
			s.Occupy.RemoveTrain(t.Number)
		}
	}
	if s.Reserved != nil && !known(s.Reserved.Number) {
		s.Reserved = nil
	}
	for _, t := range s.PreReserved.Items() {
		if !known(t.Number) {
			s.PreReserved.RemoveTrain(t.Number)
		}
	}
	for _, t := range s.Claimed.Items() {
		if !known(t.Number) {
			s.Claimed.RemoveTrain(t.Number)
		}
	}
}
