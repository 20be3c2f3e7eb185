package track

import (
	"fmt"
	"testing"

	"nyiyui.ca/hato/heisoku/circuit"
	"nyiyui.ca/hato/heisoku/layout"
)

func newLoop(t *testing.T, location bool) *Network {
	t.Helper()
	opts := DefaultOptions()
	opts.LocationPassingPaths = location
	n, err := InitPassingLoop(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(n.Close)
	return n
}

func addTrain(n *Network, number int, length float64, route layout.Route) *Train {
	tr := NewTrain(number, length, route)
	tr.Name = fmt.Sprintf("train%d", number)
	n.AddTrain(tr)
	return tr
}

func section(n *Network, comment string) *Section {
	return n.Section(n.MustLookupIndex(comment))
}

type recordSignals struct {
	NopSignals
	switches map[int]int
	enabled  map[int]circuit.TrainRouted
}

func newRecordSignals() *recordSignals {
	return &recordSignals{
		switches: map[int]int{},
		enabled:  map[int]circuit.TrainRouted{},
	}
}

func (r *recordSignals) IsNormal(int) bool { return false }

func (r *recordSignals) Enable(signal int, t circuit.TrainRouted) { r.enabled[signal] = t }

func (r *recordSignals) Enabled(signal int) (circuit.TrainRouted, bool) {
	t, ok := r.enabled[signal]
	return t, ok
}

func (r *recordSignals) ResetEnabled(signal int) { delete(r.enabled, signal) }

func (r *recordSignals) SetSwitch(junction, position int) { r.switches[junction] = position }
