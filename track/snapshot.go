package track

import (
	"nyiyui.ca/hato/heisoku/circuit"
)

// Snapshot is a JSON-friendly view of the reservation state, for observers.
type Snapshot struct {
	Tick     int               `json:"tick"`
	Sections []SectionSnapshot `json:"sections"`
	Trains   []TrainSnapshot   `json:"trains"`
}

type SectionSnapshot struct {
	Index       int                   `json:"index"`
	Comment     string                `json:"comment"`
	Occupied    []circuit.TrainRouted `json:"occupied,omitempty"`
	Reserved    *circuit.TrainRouted  `json:"reserved,omitempty"`
	PreReserved []circuit.TrainRouted `json:"pre-reserved,omitempty"`
	Claimed     []circuit.TrainRouted `json:"claimed,omitempty"`
	Traps       map[int][]int         `json:"traps,omitempty"`
	Awaited     []int                 `json:"awaited,omitempty"`
}

type TrainSnapshot struct {
	Number   int      `json:"number"`
	Name     string   `json:"name"`
	Front    Position `json:"front"`
	Rear     Position `json:"rear"`
	Occupied []int    `json:"occupied,omitempty"`
}

// Snapshot copies the current state. Call it inside Step, or while no step runs.
func (n *Network) Snapshot() Snapshot {
	snap := Snapshot{Tick: n.tick}
	for _, s := range n.Sections {
		ss := SectionSnapshot{
			Index:       s.Index,
			Comment:     s.Comment,
			Occupied:    s.State.Occupy.Trains(),
			PreReserved: s.State.PreReserved.Items(),
			Claimed:     s.State.Claimed.Items(),
			Awaited:     append([]int(nil), s.DeadlockAwaited...),
		}
		if s.State.Reserved != nil {
			r := *s.State.Reserved
			ss.Reserved = &r
		}
		if len(s.DeadlockTraps) > 0 {
			ss.Traps = make(map[int][]int, len(s.DeadlockTraps))
			for k, v := range s.DeadlockTraps {
				ss.Traps[k] = append([]int(nil), v...)
			}
		}
		snap.Sections = append(snap.Sections, ss)
	}
	for _, number := range sortedKeys(n.Trains) {
		t := n.Trains[number]
		snap.Trains = append(snap.Trains, TrainSnapshot{
			Number:   t.Number,
			Name:     t.Name,
			Front:    t.Positions[0],
			Rear:     t.Positions[1],
			Occupied: append([]int(nil), t.OccupiedTrack...),
		})
	}
	return snap
}
