package track

import (
	"fmt"

	"nyiyui.ca/hato/heisoku/layout"
)

// InitPassingLoop returns a single line with one passing loop, catalogued as a deadlock area:
//
//	a - J1 - m1 - m2 - J2 - b
//	      \ p1 - p2 - p3 /
//
// The main line between the junctions is 200 m, the loop 240 m. Signals protect the exits of
// both tracks in both directions: 0 (m2) and 1 (p3) eastbound, 2 (m1) and 3 (p1) westbound.
func InitPassingLoop(opts Options) (*Network, error) {
	n := NewNetwork(opts)
	add := func(comment string, kind layout.Kind, length float64) *Section {
		s := NewSection(comment, kind, length)
		n.AddSection(s)
		return s
	}
	a := add("a", layout.EndOfTrack, 200)
	j1 := add("J1", layout.Junction, 20)
	m1 := add("m1", layout.Normal, 100)
	m2 := add("m2", layout.Normal, 100)
	p1 := add("p1", layout.Normal, 80)
	p2 := add("p2", layout.Normal, 80)
	p3 := add("p3", layout.Normal, 80)
	j2 := add("J2", layout.Junction, 20)
	b := add("b", layout.EndOfTrack, 200)

	a.Link(0, 0, j1, 0)
	j1.Link(0, 0, m1, 0)
	j1.Link(0, 1, p1, 0)
	m1.Link(0, 0, m2, 0)
	m2.Link(0, 0, j2, 0)
	p1.Link(0, 0, p2, 0)
	p2.Link(0, 0, p3, 0)
	p3.Link(0, 0, j2, 0)
	j2.Link(0, 0, b, 0)

	m2.EndSignals[0] = 0
	p3.EndSignals[0] = 1
	m1.EndSignals[1] = 2
	p1.EndSignals[1] = 3

	d, err := n.AddAlternativePath(n.PassingLoopRoute(0, false), n.BuildRoute(0, j1.Index, p1.Index, p2.Index, p3.Index, j2.Index))
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("passing loop not catalogued")
	}
	return n, nil
}

// PassingLoopRoute returns the end-to-end route through a network made by InitPassingLoop,
// eastbound (direction 0) or westbound, by the main line or the loop.
func (n *Network) PassingLoopRoute(direction int, loop bool) layout.Route {
	names := []string{"a", "J1", "m1", "m2", "J2", "b"}
	if loop {
		names = []string{"a", "J1", "p1", "p2", "p3", "J2", "b"}
	}
	sections := make([]int, len(names))
	for i, name := range names {
		j := i
		if direction == 1 {
			j = len(names) - 1 - i
		}
		sections[j] = n.MustLookupIndex(name)
	}
	return n.BuildRoute(direction, sections...)
}
