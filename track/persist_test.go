package track

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"nyiyui.ca/hato/heisoku/circuit"
	"nyiyui.ca/hato/heisoku/codec"
)

func save(t *testing.T, n *Network) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := n.Save(codec.NewWriter(&buf)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSaveRestore(t *testing.T) {
	n := newLoop(t, true)
	a := addTrain(n, 1, 150, n.PassingLoopRoute(0, false))
	b := addTrain(n, 2, 220, n.PassingLoopRoute(1, true))
	section(n, "J1").Reserve(a.Forward(), a.Routes[0])
	section(n, "m1").SetOccupied(a.Forward())
	section(n, "m2").Claim(b.Forward())
	section(n, "p2").PreReserve(b.Forward())
	section(n, "J2").SetDeadlockTrap(a.Number, b.Number)
	section(n, "J2").DeadlockAwaited = []int{b.Number}
	saved := save(t, n)

	n2 := newLoop(t, true)
	if err := n2.Restore(codec.NewReader(bytes.NewReader(saved))); err != nil {
		t.Fatal(err)
	}
	if got := save(t, n2); !bytes.Equal(got, saved) {
		t.Fatal("second save differs")
	}

	opts := []cmp.Option{
		cmpopts.IgnoreUnexported(Section{}, Deadlock{}),
		cmp.AllowUnexported(circuit.OccupyState{}, circuit.Queue{}),
		cmpopts.EquateEmpty(),
	}
	for i, s := range n.Sections {
		if !cmp.Equal(s, n2.Sections[i], opts...) {
			t.Fatalf("section %s diff: %s", s, cmp.Diff(s, n2.Sections[i], opts...))
		}
	}
	if !cmp.Equal(n.Deadlocks, n2.Deadlocks, opts...) {
		t.Fatalf("deadlock diff: %s", cmp.Diff(n.Deadlocks, n2.Deadlocks, opts...))
	}
	if !cmp.Equal(n.Deadlocks[0].keys, n2.Deadlocks[0].keys, cmp.AllowUnexported(subpathKeys{})) {
		t.Fatal("subpath keys differ")
	}
}

func TestSaveRestoreFractionalLength(t *testing.T) {
	n := newLoop(t, true)
	n.Deadlocks[0].Paths[0].UsableLength = 150.1
	saved := save(t, n)

	n2 := newLoop(t, true)
	if err := n2.Restore(codec.NewReader(bytes.NewReader(saved))); err != nil {
		t.Fatal(err)
	}
	d := n2.Deadlocks[0]
	if got := d.Paths[0].UsableLength; got != 150.1 {
		t.Fatalf("usable length %v", got)
	}
	a := addTrain(n2, 1, 150.1, n2.PassingLoopRoute(0, false))
	key := d.TrainSubpathKey(a.Number, a.Subpath)
	if d.TrainLengthFit[key][0] {
		t.Fatal("train as long as the path fits it after restore")
	}
}

func TestRestoreTrains(t *testing.T) {
	n := newLoop(t, true)
	a := addTrain(n, 1, 150, n.PassingLoopRoute(0, false))
	b := addTrain(n, 2, 220, n.PassingLoopRoute(1, true))
	section(n, "J1").Reserve(a.Forward(), a.Routes[0])
	section(n, "m1").SetOccupied(a.Forward())
	section(n, "m2").Claim(b.Forward())
	section(n, "J2").SetDeadlockTrap(a.Number, b.Number)
	section(n, "J2").SetDeadlockTrap(b.Number, a.Number)
	saved := save(t, n)

	n2 := newLoop(t, true)
	if err := n2.Restore(codec.NewReader(bytes.NewReader(saved))); err != nil {
		t.Fatal(err)
	}
	// only a comes back, on a route that no longer includes J1
	a2 := NewTrain(a.Number, a.Length, n2.BuildRoute(0, n2.MustLookupIndex("m1"), n2.MustLookupIndex("m2")))
	n2.Trains[a2.Number] = a2
	n2.RestoreTrains()

	if r := section(n2, "J1").State.Reserved; r != nil {
		t.Fatalf("invalid reservation kept: %s", r)
	}
	if !section(n2, "m1").State.ThisTrainOccupying(a.Number) {
		t.Fatal("occupation dropped")
	}
	if section(n2, "m2").State.Claimed.Len() != 0 {
		t.Fatal("claim by unknown train kept")
	}
	j2 := section(n2, "J2")
	if len(j2.DeadlockTraps) != 0 {
		t.Fatalf("traps %v", j2.DeadlockTraps)
	}
	if !cmp.Equal(j2.DeadlockActives, []int{a.Number}) {
		t.Fatalf("actives %v", j2.DeadlockActives)
	}
}

func TestRestoreMismatch(t *testing.T) {
	n := newLoop(t, false)
	saved := save(t, n)
	n2 := newLoop(t, false)
	n2.AddSection(NewSection("extra", 0, 10))
	if err := n2.Restore(codec.NewReader(bytes.NewReader(saved))); err == nil {
		t.Fatal("restore into a different topology succeeded")
	}
	if err := n.Restore(codec.NewReader(bytes.NewReader(saved[:len(saved)-3]))); err == nil {
		t.Fatal("truncated restore succeeded")
	}
}
