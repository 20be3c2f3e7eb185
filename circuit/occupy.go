package circuit

import "golang.org/x/exp/slices"

type occupant struct {
	Train     TrainRouted
	Direction int
}

// OccupyState records which trains occupy a section and the section direction each one travels in.
// Entries keep insertion order so that saves are deterministic.
type OccupyState struct {
	entries []occupant
}

func (o *OccupyState) index(t TrainRouted) int {
	return slices.IndexFunc(o.entries, func(e occupant) bool { return e.Train == t })
}

// Set adds t or updates its direction.
func (o *OccupyState) Set(t TrainRouted, direction int) {
	if i := o.index(t); i != -1 {
		o.entries[i].Direction = direction
		return
	}
	o.entries = append(o.entries, occupant{Train: t, Direction: direction})
}

// Direction returns the direction t occupies the section in.
func (o *OccupyState) Direction(t TrainRouted) (int, bool) {
	if i := o.index(t); i != -1 {
		return o.entries[i].Direction, true
	}
	return 0, false
}

// RemoveTrain drops the train in both route directions.
func (o *OccupyState) RemoveTrain(number int) bool {
	before := len(o.entries)
	o.entries = slices.DeleteFunc(o.entries, func(e occupant) bool { return e.Train.Number == number })
	return len(o.entries) < before
}

// ContainsTrain reports whether the train occupies the section in either route direction.
func (o *OccupyState) ContainsTrain(number int) bool {
	return slices.ContainsFunc(o.entries, func(e occupant) bool { return e.Train.Number == number })
}

func (o *OccupyState) Len() int { return len(o.entries) }

func (o *OccupyState) Clear() { o.entries = nil }

// Trains returns the occupying trains in insertion order.
func (o *OccupyState) Trains() []TrainRouted {
	ts := make([]TrainRouted, len(o.entries))
	for i, e := range o.entries {
		ts[i] = e.Train
	}
	return ts
}

// TrainsIn returns the trains occupying the section in direction.
func (o *OccupyState) TrainsIn(direction int) []TrainRouted {
	var ts []TrainRouted
	for _, e := range o.entries {
		if e.Direction == direction {
			ts = append(ts, e.Train)
		}
	}
	return ts
}
