package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"nyiyui.ca/hato/heisoku/track"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

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

func TestSaveLoad(t *testing.T) {
	s := openMemory(t)
	n := newLoop(t)
	tr := track.NewTrain(1, 150, n.PassingLoopRoute(0, false))
	n.AddTrain(tr)
	j1 := n.Section(n.MustLookupIndex("J1"))
	m1 := n.Section(n.MustLookupIndex("m1"))
	n.Step(func() {
		j1.Reserve(tr.Forward(), tr.Routes[0])
		m1.Claim(tr.Forward())
	})
	m, err := s.Save(n, "after reserve")
	if err != nil {
		t.Fatal(err)
	}
	if m.Tick != 1 {
		t.Fatalf("tick %d", m.Tick)
	}

	n2 := newLoop(t)
	n2.AddTrain(track.NewTrain(1, 150, n2.PassingLoopRoute(0, false)))
	m2, err := s.Load(m.ID, n2)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Comment != "after reserve" || m2.ID != m.ID {
		t.Fatalf("meta %#v", m2)
	}
	got := n2.Snapshot()
	want := n.Snapshot()
	if !cmp.Equal(got.Sections, want.Sections, cmpopts.EquateEmpty()) {
		t.Fatalf("diff: %s", cmp.Diff(want.Sections, got.Sections, cmpopts.EquateEmpty()))
	}
}

func TestLoadWaitsForStep(t *testing.T) {
	s := openMemory(t)
	m, err := s.Save(newLoop(t), "empty")
	if err != nil {
		t.Fatal(err)
	}
	n := newLoop(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	go n.Step(func() {
		close(entered)
		<-release
	})
	<-entered
	loaded := make(chan error, 1)
	go func() {
		_, err := s.Load(m.ID, n)
		loaded <- err
	}()
	select {
	case err := <-loaded:
		t.Fatalf("loaded during a step: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	if err := <-loaded; err != nil {
		t.Fatal(err)
	}
}

func TestCompression(t *testing.T) {
	s := openMemory(t)
	type setup struct {
		name string
		raw  []byte
	}
	repetitive := make([]byte, 4096)
	for i := range repetitive {
		repetitive[i] = byte(i % 4)
	}
	for _, st := range []setup{
		{"empty", []byte{}},
		{"short", []byte{1, 2, 3}},
		{"repetitive", repetitive},
	} {
		t.Run(st.name, func(t *testing.T) {
			m := Meta{ID: uuid.New(), Comment: st.name}
			if err := s.Put(m, st.raw); err != nil {
				t.Fatal(err)
			}
			m2, raw, err := s.Get(m.ID)
			if err != nil {
				t.Fatal(err)
			}
			if !cmp.Equal(raw, st.raw, cmpopts.EquateEmpty()) {
				t.Fatalf("diff: %s", cmp.Diff(st.raw, raw))
			}
			if st.name == "repetitive" && !m2.Compressed {
				t.Fatal("repetitive data stored uncompressed")
			}
		})
	}
}

func TestList(t *testing.T) {
	s := openMemory(t)
	ticks := []int{30, 10, 20}
	for _, tick := range ticks {
		if err := s.Put(Meta{ID: uuid.New(), Tick: tick}, []byte{byte(tick)}); err != nil {
			t.Fatal(err)
		}
	}
	ms, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, m := range ms {
		got = append(got, m.Tick)
	}
	if !cmp.Equal(got, []int{10, 20, 30}) {
		t.Fatalf("ticks %v", got)
	}
}

func TestNotFound(t *testing.T) {
	s := openMemory(t)
	id := uuid.New()
	if _, _, err := s.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if err := s.Delete(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: %v", err)
	}
	m := Meta{ID: id}
	if err := s.Put(m, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(id); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestParseKey(t *testing.T) {
	id := uuid.New()
	got, err := ParseKey(dataKey(id))
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("got %s", got)
	}
	if _, err := ParseKey("form:x:data"); err == nil {
		t.Fatal("foreign key parsed")
	}
}
