package sim

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/heisoku/layout"
	"nyiyui.ca/hato/heisoku/track"
)

func newLoop(t *testing.T) *track.Network {
	t.Helper()
	opts := track.DefaultOptions()
	opts.LocationPassingPaths = true
	n, err := track.InitPassingLoop(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(n.Close)
	return n
}

func comments(n *track.Network, r layout.Route) []string {
	s := make([]string, len(r))
	for i, e := range r {
		s[i] = n.Section(e.Section).Comment
	}
	return s
}

func TestPassing(t *testing.T) {
	type setup struct {
		name      string
		eastStart int
		westStart int
		eastVia   string
		westVia   string
	}
	for _, st := range []setup{
		{"east first", 0, 20, "m1", "p2"},
		{"west first", 30, 0, "p2", "m1"},
		{"together", 0, 0, "m1", "p2"},
	} {
		t.Run(st.name, func(t *testing.T) {
			n := newLoop(t)
			s, err := New(Conf{
				Network: n,
				Trains: []TrainConf{
					{Number: 1, Name: "east", Length: 80, Route: n.PassingLoopRoute(0, false), Speed: 10, Start: st.eastStart},
					{Number: 2, Name: "west", Length: 80, Route: n.PassingLoopRoute(1, false), Speed: 10, Start: st.westStart},
				},
			})
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(s.Close)
			if err := s.Run(context.Background(), 0, 500); err != nil {
				t.Fatal(err)
			}
			east, west := n.Trains[1], n.Trains[2]
			if !east.Routes[0].Contains(n.MustLookupIndex(st.eastVia)) {
				t.Fatalf("east went %v", comments(n, east.Routes[0]))
			}
			if !west.Routes[0].Contains(n.MustLookupIndex(st.westVia)) {
				t.Fatalf("west went %v", comments(n, west.Routes[0]))
			}
			if !cmp.Equal(east.OccupiedTrack, []int{n.MustLookupIndex("b")}) {
				t.Fatalf("east occupies %v", east.OccupiedTrack)
			}
			if !cmp.Equal(west.OccupiedTrack, []int{n.MustLookupIndex("a")}) {
				t.Fatalf("west occupies %v", west.OccupiedTrack)
			}
			for _, sec := range n.Sections {
				if sec.State.Reserved != nil || sec.State.Claimed.Len() != 0 {
					t.Fatalf("%s left reserved %v or claimed %v", sec, sec.State.Reserved, sec.State.Claimed.Items())
				}
			}
		})
	}
}

func TestSnapshots(t *testing.T) {
	n := newLoop(t)
	s, err := New(Conf{
		Network: n,
		Trains: []TrainConf{
			{Number: 1, Name: "east", Length: 80, Route: n.PassingLoopRoute(0, false), Speed: 10},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	ch := make(chan track.Snapshot, 4)
	s.SnapshotMux.Subscribe("test", ch)
	defer s.SnapshotMux.Unsubscribe(ch)
	s.Step()
	snap := <-ch
	if snap.Tick != 0 {
		t.Fatalf("tick %d", snap.Tick)
	}
	if len(snap.Trains) != 1 || snap.Trains[0].Front.Offset != 90 {
		t.Fatalf("trains %#v", snap.Trains)
	}
}

func TestNew(t *testing.T) {
	n := newLoop(t)
	_, err := New(Conf{
		Network: n,
		Trains: []TrainConf{
			{Number: 1, Length: 250, Route: n.PassingLoopRoute(0, false), Speed: 10},
		},
	})
	if err == nil {
		t.Fatal("train longer than its first section placed")
	}
	_, err = New(Conf{
		Network: n,
		Trains: []TrainConf{
			{Number: 1, Length: 50, Speed: 10},
		},
	})
	if err == nil {
		t.Fatal("train without route placed")
	}
}

func TestSplice(t *testing.T) {
	n := newLoop(t)
	route := n.PassingLoopRoute(0, false)
	loop := n.PassingLoopRoute(0, true)
	path := loop.Slice(1, 5)
	got, err := splice(route, 1, path)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "J1", "p1", "p2", "p3", "J2", "b"}; !cmp.Equal(comments(n, got), want) {
		t.Fatalf("diff: %s", cmp.Diff(want, comments(n, got)))
	}
	if !got[1].FacingPoint {
		t.Fatal("facing point lost")
	}
	if _, err := splice(route, 2, path); err == nil {
		t.Fatal("path spliced at the wrong section")
	}
}
