package track

import "nyiyui.ca/hato/heisoku/circuit"

// Signals is the signalling side as seen from sections. Signal and switch identities are integers owned by the implementation.
type Signals interface {
	// IsNormal reports whether the signal is a normal (main) signal, which is enabled by route clearing instead of by reservation.
	IsNormal(signal int) bool
	Enable(signal int, t circuit.TrainRouted)
	// Enabled returns the train the signal is enabled for.
	Enabled(signal int) (circuit.TrainRouted, bool)
	ResetEnabled(signal int)
	// ResetSignal drops the signal's cleared route.
	ResetSignal(signal int)
	// ResetRoute drops a route the signal set through the junction.
	ResetRoute(signal, junction int)
	SetSwitch(junction, position int)
}

// NopSignals is used when no signalling is attached. Every signal is normal.
type NopSignals struct{}

func (NopSignals) IsNormal(int) bool { return true }
func (NopSignals) Enable(int, circuit.TrainRouted) {}
func (NopSignals) Enabled(int) (circuit.TrainRouted, bool) { return circuit.TrainRouted{}, false }
func (NopSignals) ResetEnabled(int) {}
func (NopSignals) ResetSignal(int) {}
func (NopSignals) ResetRoute(int, int) {}
func (NopSignals) SetSwitch(int, int) {}
