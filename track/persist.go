package track

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/heisoku/circuit"
	"nyiyui.ca/hato/heisoku/codec"
	"nyiyui.ca/hato/heisoku/layout"
)

// Save writes the dynamic state of the network: per-section reservation and deadlock state,
// then every deadlock area. Topology (pins, lengths, signals) is not saved.
func (n *Network) Save(w *codec.Writer) error {
	w.Int(len(n.Sections))
	for _, s := range n.Sections {
		s.Save(w)
	}
	ids := n.deadlockIDs()
	w.Int(len(ids))
	for _, id := range ids {
		n.Deadlocks[id].Save(w)
	}
	w.Int(n.nextDeadlock)
	return w.Flush()
}

// Restore reads state written by Save into a network with the same topology.
// Deadlock areas are replaced.
func (n *Network) Restore(r *codec.Reader) error {
	count := r.Count()
	if r.Err() == nil && count != len(n.Sections) {
		return fmt.Errorf("restore: saved %d sections, network has %d", count, len(n.Sections))
	}
	for _, s := range n.Sections {
		s.Restore(r)
	}
	n.Deadlocks = map[int]*Deadlock{}
	count = r.Count()
	for i := 0; i < count && r.Err() == nil; i++ {
		d := restoreDeadlock(r, n)
		n.Deadlocks[d.ID] = d
	}
	n.nextDeadlock = r.Int()
	if err := r.Err(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

// RestoreTrains drops references to trains that are not registered, and reservations
// by trains whose route no longer includes the section.
func (n *Network) RestoreTrains() {
	known := func(number int) bool {
		_, ok := n.Trains[number]
		return ok
	}
	for _, s := range n.Sections {
		if r := s.State.Reserved; r != nil {
			if t := n.Trains[r.Number]; t != nil && t.Routes[r.Dir].IndexOf(s.Index, 0) < 0 {
				zap.S().Warnw("invalid reservation",
					"section", s.Index,
					"train", t.Number,
					"name", t.Name)
				s.State.Reserved = nil
			}
		}
		s.State.Retain(known)
		for other, holders := range s.DeadlockTraps {
			holders = slices.DeleteFunc(holders, func(h int) bool { return !known(h) })
			if !known(other) || len(holders) == 0 {
				delete(s.DeadlockTraps, other)
			} else {
				s.DeadlockTraps[other] = holders
			}
		}
		s.DeadlockActives = slices.DeleteFunc(s.DeadlockActives, func(h int) bool { return !known(h) })
		s.DeadlockAwaited = slices.DeleteFunc(s.DeadlockAwaited, func(h int) bool { return !known(h) })
	}
}

func (s *Section) Save(w *codec.Writer) {
	for _, p := range []layout.Pin{s.ActivePins[0][0], s.ActivePins[1][0], s.ActivePins[0][1], s.ActivePins[1][1]} {
		w.Int(p.Link)
		w.Int(p.Direction)
	}
	w.Int(s.JunctionSetManual)
	w.Int(s.JunctionLastRoute)
	w.Bool(s.AILock)
	s.State.Save(w)

	keys := sortedKeys(s.DeadlockTraps)
	w.Int(len(keys))
	for _, k := range keys {
		w.Int(k)
		w.Ints(s.DeadlockTraps[k])
	}
	w.Ints(s.DeadlockActives)
	w.Ints(s.DeadlockAwaited)
	w.Int(s.DeadlockReference)
	if s.DeadlockBoundaries == nil {
		w.Int(-1)
	} else {
		saveIntMap(w, s.DeadlockBoundaries)
	}
}

func (s *Section) Restore(r *codec.Reader) {
	for _, p := range []*layout.Pin{&s.ActivePins[0][0], &s.ActivePins[1][0], &s.ActivePins[0][1], &s.ActivePins[1][1]} {
		p.Link = r.Int()
		p.Direction = r.Int()
	}
	s.JunctionSetManual = r.Int()
	s.JunctionLastRoute = r.Int()
	s.AILock = r.Bool()
	s.State = circuit.Restore(r)

	s.DeadlockTraps = map[int][]int{}
	n := r.Count()
	for i := 0; i < n && r.Err() == nil; i++ {
		k := r.Int()
		s.DeadlockTraps[k] = r.Ints()
	}
	s.DeadlockActives = r.Ints()
	s.DeadlockAwaited = r.Ints()
	s.DeadlockReference = r.Int()
	if n := r.Int(); n >= 0 {
		s.DeadlockBoundaries = make(map[int]int, n)
		for i := 0; i < n && r.Err() == nil; i++ {
			k := r.Int()
			s.DeadlockBoundaries[k] = r.Int()
		}
	} else {
		s.DeadlockBoundaries = nil
	}
}

func (d *Deadlock) Save(w *codec.Writer) {
	w.Int(d.ID)
	w.Int(len(d.Paths))
	for _, p := range d.Paths {
		p.Save(w)
	}
	saveListMap(w, d.PathRefs)
	saveListMap(w, d.TrainRefs)
	keys := sortedKeys(d.TrainLengthFit)
	w.Int(len(keys))
	for _, k := range keys {
		w.Int(k)
		fit := d.TrainLengthFit[k]
		paths := sortedKeys(fit)
		w.Int(len(paths))
		for _, p := range paths {
			w.Int(p)
			w.Bool(fit[p])
		}
	}
	saveIntMap(w, d.TrainOwnPath)
	saveIntMap(w, d.Inverse)

	trains := sortedKeys(d.keys.index)
	w.Int(len(trains))
	for _, t := range trains {
		w.Int(t)
		saveIntMap(w, d.keys.index[t])
	}
	w.Int(d.keys.next)
}

func restoreDeadlock(r *codec.Reader, n *Network) *Deadlock {
	d := &Deadlock{
		ID:             r.Int(),
		TrainLengthFit: map[int]map[int]bool{},
		keys:           subpathKeys{index: map[int]map[int]int{}},
		net:            n,
	}
	count := r.Count()
	for i := 0; i < count && r.Err() == nil; i++ {
		d.Paths = append(d.Paths, restoreDeadlockPath(r))
	}
	d.PathRefs = restoreListMap(r)
	d.TrainRefs = restoreListMap(r)
	count = r.Count()
	for i := 0; i < count && r.Err() == nil; i++ {
		k := r.Int()
		fit := map[int]bool{}
		m := r.Count()
		for j := 0; j < m && r.Err() == nil; j++ {
			p := r.Int()
			fit[p] = r.Bool()
		}
		d.TrainLengthFit[k] = fit
	}
	d.TrainOwnPath = restoreIntMap(r)
	d.Inverse = restoreIntMap(r)

	count = r.Count()
	for i := 0; i < count && r.Err() == nil; i++ {
		t := r.Int()
		d.keys.index[t] = restoreIntMap(r)
	}
	d.keys.next = r.Int()
	return d
}

func (p *DeadlockPath) Save(w *codec.Writer) {
	w.Int(len(p.Route))
	for _, e := range p.Route {
		w.Int(e.Section)
		w.Int(e.Direction)
		w.Bool(e.FacingPoint)
		if e.AlternativePath == nil {
			w.Int(-1)
		} else {
			w.Int(e.AlternativePath.Index)
			w.Int(e.AlternativePath.EndSection)
		}
	}
	w.String(p.Name)
	w.Int(len(p.Groups))
	for _, g := range p.Groups {
		w.String(g)
	}
	w.Float64(p.UsableLength)
	w.Int(p.LastUsableIndex)
	w.Int(p.EndSection)
	w.Ints(p.AllowedTrains)
}

func restoreDeadlockPath(r *codec.Reader) *DeadlockPath {
	p := &DeadlockPath{}
	n := r.Count()
	p.Route = make(layout.Route, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		e := layout.RouteElement{
			Section:     r.Int(),
			Direction:   r.Int(),
			FacingPoint: r.Bool(),
		}
		if index := r.Int(); index >= 0 {
			e.AlternativePath = &layout.AlternativePath{Index: index, EndSection: r.Int()}
		}
		p.Route = append(p.Route, e)
	}
	p.Name = r.String()
	n = r.Count()
	for i := 0; i < n && r.Err() == nil; i++ {
		p.Groups = append(p.Groups, r.String())
	}
	p.UsableLength = r.Float64()
	p.LastUsableIndex = r.Int()
	p.EndSection = r.Int()
	p.AllowedTrains = r.Ints()
	return p
}

func saveIntMap(w *codec.Writer, m map[int]int) {
	keys := sortedKeys(m)
	w.Int(len(keys))
	for _, k := range keys {
		w.Int(k)
		w.Int(m[k])
	}
}

func restoreIntMap(r *codec.Reader) map[int]int {
	m := map[int]int{}
	n := r.Count()
	for i := 0; i < n && r.Err() == nil; i++ {
		k := r.Int()
		m[k] = r.Int()
	}
	return m
}

func saveListMap(w *codec.Writer, m map[int][]int) {
	keys := sortedKeys(m)
	w.Int(len(keys))
	for _, k := range keys {
		w.Int(k)
		w.Ints(m[k])
	}
}

func restoreListMap(r *codec.Reader) map[int][]int {
	m := map[int][]int{}
	n := r.Count()
	for i := 0; i < n && r.Err() == nil; i++ {
		k := r.Int()
		m[k] = r.Ints()
	}
	return m
}
