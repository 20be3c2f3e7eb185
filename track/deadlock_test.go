package track

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/heisoku/layout"
)

func TestPassingLoopCatalogue(t *testing.T) {
	n := newLoop(t, true)
	if len(n.Deadlocks) != 1 {
		t.Fatalf("got %d deadlock areas, want 1", len(n.Deadlocks))
	}
	d := n.Deadlocks[0]
	j1, j2 := n.MustLookupIndex("J1"), n.MustLookupIndex("J2")

	type path struct {
		Name            string
		UsableLength    float64
		LastUsableIndex int
		EndSection      int
		AllowedTrains   []int
	}
	got := make([]path, len(d.Paths))
	for i, p := range d.Paths {
		got[i] = path{p.Name, p.UsableLength, p.LastUsableIndex, p.EndSection, p.AllowedTrains}
	}
	want := []path{
		{"MAIN", 200, 2, j2, []int{AnyTrain}},
		{"PASS01", 240, 3, j2, []int{AnyTrain}},
		{"MAIN", 200, 2, j1, []int{AnyTrain}},
		{"PASS01", 240, 3, j1, []int{AnyTrain}},
	}
	if !cmp.Equal(got, want) {
		t.Fatalf("diff: %s", cmp.Diff(got, want))
	}
	wantRefs := map[int][]int{j1: {0, 1}, j2: {2, 3}}
	if !cmp.Equal(d.PathRefs, wantRefs) {
		t.Fatalf("diff: %s", cmp.Diff(d.PathRefs, wantRefs))
	}
	for _, s := range []int{j1, j2} {
		if ref := n.Section(s).DeadlockReference; ref != d.ID {
			t.Fatalf("section %d references %d", s, ref)
		}
	}
	if b := section(n, "m1").DeadlockBoundaries; !cmp.Equal(b, map[int]int{d.ID: 0}) {
		t.Fatalf("m1 boundaries %v", b)
	}
	if b := section(n, "p2").DeadlockBoundaries; !cmp.Equal(b, map[int]int{d.ID: 1}) {
		t.Fatalf("p2 boundaries %v", b)
	}
	if section(n, "a").DeadlockBoundaries != nil {
		t.Fatal("boundaries set outside the area")
	}
}

func TestInverseSymmetry(t *testing.T) {
	n := newLoop(t, true)
	d := n.Deadlocks[0]
	want := map[int]int{0: 2, 2: 0, 1: 3, 3: 1}
	if !cmp.Equal(d.Inverse, want) {
		t.Fatalf("diff: %s", cmp.Diff(d.Inverse, want))
	}
	for p, q := range d.Inverse {
		if !d.Paths[p].Route.EqualReverse(d.Paths[q].Route) {
			t.Fatalf("paths %d and %d are not each other's reverse", p, q)
		}
	}
}

func TestPathIdempotence(t *testing.T) {
	n := newLoop(t, true)
	d := n.Deadlocks[0]
	j1 := n.MustLookupIndex("J1")

	i, existed := d.AddPath(d.Paths[0].Route, j1)
	if i != 0 || !existed || len(d.Paths) != 4 {
		t.Fatalf("got %d %t with %d paths", i, existed, len(d.Paths))
	}
	i, existed = d.AddNamedPath(d.Paths[1].Route, j1, "PASS01", "freight")
	if i != 1 || !existed {
		t.Fatalf("got %d %t", i, existed)
	}
	i, _ = d.AddNamedPath(d.Paths[1].Route, j1, "PASS01", "freight")
	if i != 1 || !cmp.Equal(d.Paths[1].Groups, []string{"freight"}) {
		t.Fatalf("groups %v", d.Paths[1].Groups)
	}
	if !cmp.Equal(d.PathRefs[j1], []int{0, 1}) {
		t.Fatalf("refs %v", d.PathRefs[j1])
	}

	// a different name makes a different path
	i, existed = d.AddNamedPath(d.Paths[1].Route, j1, "siding", "")
	if i != 4 || existed {
		t.Fatalf("got %d %t", i, existed)
	}
}

func TestSetTrainDetails(t *testing.T) {
	n := newLoop(t, true)
	d := n.Deadlocks[0]
	a := addTrain(n, 1, 150, n.PassingLoopRoute(0, false))
	b := addTrain(n, 2, 220, n.PassingLoopRoute(1, true))

	ka := d.TrainSubpathKey(a.Number, a.Subpath)
	kb := d.TrainSubpathKey(b.Number, b.Subpath)
	if ka != 1 || kb != 2 {
		t.Fatalf("keys %d %d", ka, kb)
	}
	if !cmp.Equal(d.TrainRefs, map[int][]int{ka: {0, 1}, kb: {2, 3}}) {
		t.Fatalf("refs %v", d.TrainRefs)
	}
	if !cmp.Equal(d.TrainOwnPath, map[int]int{ka: 0, kb: 3}) {
		t.Fatalf("own %v", d.TrainOwnPath)
	}
	wantFit := map[int]map[int]bool{
		ka: {0: true, 1: true},
		kb: {2: false, 3: true},
	}
	if !cmp.Equal(d.TrainLengthFit, wantFit) {
		t.Fatalf("diff: %s", cmp.Diff(d.TrainLengthFit, wantFit))
	}
	if got := d.GetEndSection(a); got != n.MustLookupIndex("J2") {
		t.Fatalf("end %d", got)
	}
	if got := d.GetValidPassingPaths(b.Number, b.Subpath, false); !cmp.Equal(got, []int{3}) {
		t.Fatalf("own paths %v", got)
	}
	if got := d.GetValidPassingPaths(b.Number, b.Subpath, true); !cmp.Equal(got, []int{0, 1, 2, 3}) {
		t.Fatalf("paths %v", got)
	}

	if got := d.SetTrainDetails(a.Number, a.Subpath, a.Length, a.Routes[0], 0); got != layout.NotFound {
		t.Fatalf("invalid index accepted: %d", got)
	}
}

func TestSearchMatchingFullPath(t *testing.T) {
	n := newLoop(t, true)
	d := n.Deadlocks[0]
	idx := func(names ...string) []int {
		res := make([]int, len(names))
		for i, name := range names {
			res[i] = n.MustLookupIndex(name)
		}
		return res
	}
	j1, j2 := n.MustLookupIndex("J1"), n.MustLookupIndex("J2")

	type setup struct {
		name  string
		d     *Deadlock
		route layout.Route
		start int
		want  PathMatch
	}
	partial := n.newDeadlock()
	partial.AddPath(n.BuildRoute(0, idx("J1", "m1", "m2", "J2")...), j1)
	for _, s := range []setup{
		{"found", d, n.PassingLoopRoute(0, true), j1, PathMatch{MatchFound, 1}},
		{"endsInside", d, n.BuildRoute(0, idx("a", "J1", "m1")...), j1, PathMatch{MatchEndsInside, layout.NotFound}},
		{"reversed", d, n.BuildRoute(1, idx("m1", "J1", "a")...), j1, PathMatch{MatchReversed, 2}},
		{"new", partial, n.PassingLoopRoute(0, true), j1, PathMatch{MatchNew, 5}},
		{"againstCatalogue", partial, n.PassingLoopRoute(1, false), j2, PathMatch{MatchNew, 4}},
	} {
		t.Run(s.name, func(t *testing.T) {
			start := s.route.IndexOf(s.start, 0)
			got := s.d.SearchMatchingFullPath(s.route, s.start, start)
			if got != s.want {
				t.Fatalf("got %+v, want %+v", got, s.want)
			}
		})
	}
}

func TestSelectPath(t *testing.T) {
	n := newLoop(t, true)
	d := n.Deadlocks[0]
	j1 := section(n, "J1")
	short := addTrain(n, 1, 150, n.PassingLoopRoute(0, false))
	long := addTrain(n, 2, 220, n.PassingLoopRoute(0, false))

	type setup struct {
		name string
		tr   *Train
		want int
	}
	for _, s := range []setup{
		{"fitsMain", short, 0},
		{"lengthMisfit", long, 1},
	} {
		t.Run(s.name, func(t *testing.T) {
			paths := d.CheckDeadlockPathAvailability(j1, s.tr)
			if !cmp.Equal(paths, []int{0, 1}) {
				t.Fatalf("available %v", paths)
			}
			got, end, err := d.SelectPath(paths, s.tr)
			if err != nil {
				t.Fatal(err)
			}
			if got != s.want || end != n.MustLookupIndex("J2") {
				t.Fatalf("got %d to %d, want %d", got, end, s.want)
			}
		})
	}

	t.Run("noPath", func(t *testing.T) {
		stranger := NewTrain(9, 100, n.PassingLoopRoute(0, false))
		_, _, err := d.SelectPath([]int{0, 1}, stranger)
		if !errors.Is(err, ErrNoPathAvailable) {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("fallbackToOwn", func(t *testing.T) {
		got, _, err := d.SelectPath(nil, long)
		if err != nil || got != 0 {
			t.Fatalf("got %d %v", got, err)
		}
	})
}

func TestSimplePassingLoop(t *testing.T) {
	n := newLoop(t, true)
	d := n.Deadlocks[0]
	east := n.PassingLoopRoute(0, false)
	a := addTrain(n, 1, 150, east)
	b := addTrain(n, 2, 150, n.PassingLoopRoute(1, false))
	j1, j2 := section(n, "J1"), section(n, "J2")

	if !j1.IsAvailable(a.Forward()) {
		t.Fatal("area refused to the first train")
	}
	paths := d.CheckDeadlockPathAvailability(j1, a)
	p, _, err := d.SelectPath(paths, a)
	if err != nil || p != 0 {
		t.Fatalf("first train got %d %v", p, err)
	}
	for _, name := range []string{"J1", "m1", "m2"} {
		section(n, name).Reserve(a.Forward(), east)
	}

	if !j2.IsAvailable(b.Forward()) {
		t.Fatal("area refused to the second train")
	}
	paths = d.CheckDeadlockPathAvailability(j2, b)
	if !cmp.Equal(paths, []int{3}) {
		t.Fatalf("available %v", paths)
	}
	p, end, err := d.SelectPath(paths, b)
	if err != nil || p != 3 || end != j1.Index {
		t.Fatalf("second train got %d to %d %v", p, end, err)
	}
}

func TestOppositeContention(t *testing.T) {
	n := newLoop(t, true)
	d := n.Deadlocks[0]
	a := addTrain(n, 1, 150, n.PassingLoopRoute(0, false))
	b := addTrain(n, 2, 150, n.PassingLoopRoute(1, false))
	j1, j2 := section(n, "J1"), section(n, "J2")

	// a may only take the loop, and holds b back where the loop rejoins
	d.TrainRefs[d.TrainSubpathKey(a.Number, a.Subpath)] = []int{1}
	j1.SetDeadlockTrap(a.Number, b.Number)

	paths := d.CheckDeadlockPathAvailability(j2, b)
	if !cmp.Equal(paths, []int{2}) {
		t.Fatalf("available %v", paths)
	}
	p, _, err := d.SelectPath(paths, b)
	if err != nil || p != 2 {
		t.Fatalf("got %d %v", p, err)
	}

	// with every path taken by a's choice, b gets nothing while a third train waits at J1
	d.TrainRefs[d.TrainSubpathKey(b.Number, b.Subpath)] = []int{3}
	j1.DeadlockAwaited = []int{3}
	if paths := d.CheckDeadlockPathAvailability(j2, b); len(paths) != 0 {
		t.Fatalf("available %v", paths)
	}
	if j2.IsAvailable(b.Forward()) {
		t.Fatal("area entry allowed without a path")
	}
}

func TestFindDeadlockOverlap(t *testing.T) {
	n := newLoop(t, true)
	main := n.PassingLoopRoute(0, false)
	// same boundaries: the existing area is reused
	d, part := n.FindDeadlock(main.Slice(1, 4), main, n.MustLookupIndex("J1"), n.MustLookupIndex("J2"))
	if d == nil || d.ID != 0 || len(part) != 4 {
		t.Fatalf("got %v %s", d, part)
	}
	// starting inside an area extends the part back to the area's boundary
	d, part = n.FindDeadlock(main.Slice(2, 5), main, n.MustLookupIndex("m1"), n.MustLookupIndex("b"))
	if d == nil || d.ID != 0 {
		t.Fatalf("got %v", d)
	}
	if want := main.Slice(1, 5); !part.Equal(want) {
		t.Fatalf("got %s, want %s", part, want)
	}
}
