// Package track implements section reservation and deadlock avoidance for a railway network.
//
// All mutation happens inside Network.Step, which serialises a simulation tick.
// Sections, deadlock areas, and trains refer to each other by integer index through the Network.
package track

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"nyiyui.ca/hato/heisoku/circuit"
	"nyiyui.ca/hato/heisoku/layout"
	"nyiyui.ca/hato/heisoku/notify"
)

// Options holds the network-wide tunables.
type Options struct {
	// StandardOverlap is the distance (m) kept reserved past a plain section before release.
	StandardOverlap float64 `json:"standard-overlap"`
	// JunctionOverlap is used at facing junctions and crossovers without their own overlap.
	JunctionOverlap float64 `json:"junction-overlap"`
	// LocationPassingPaths selects location-based deadlock processing (catalogued passing paths)
	// instead of path-based processing (per-train alternative paths).
	LocationPassingPaths bool `json:"location-passing-paths"`
	// DeadlockTrace enables the "deadlock" debug logger.
	DeadlockTrace bool `json:"deadlock-trace"`
}

func DefaultOptions() Options {
	return Options{
		StandardOverlap: 15,
		JunctionOverlap: 30,
	}
}

type Network struct {
	lock sync.Mutex

	Options   Options
	Sections  []*Section
	Deadlocks map[int]*Deadlock
	Trains    map[int]*Train
	Signals   Signals

	nextDeadlock int
	tick         int

	events   *notify.MultiplexerSender[Event]
	EventMux *notify.Multiplexer[Event]
}

func NewNetwork(opts Options) *Network {
	sender, mux := notify.NewMultiplexerSender[Event]("track events")
	return &Network{
		Options:   opts,
		Deadlocks: map[int]*Deadlock{},
		Trains:    map[int]*Train{},
		Signals:   NopSignals{},
		events:    sender,
		EventMux:  mux,
	}
}

// Step runs fn as one tick, holding the network lock.
func (n *Network) Step(fn func()) {
	n.lock.Lock()
	defer n.lock.Unlock()
	fn()
	n.tick++
}

// Locked runs fn holding the network lock without advancing the tick.
func (n *Network) Locked(fn func()) {
	n.lock.Lock()
	defer n.lock.Unlock()
	fn()
}

func (n *Network) Tick() int { return n.tick }

// Close stops event delivery. The network must not be stepped afterwards.
func (n *Network) Close() { n.events.Close() }

var nopLogger = zap.NewNop().Sugar()

func (n *Network) trace() *zap.SugaredLogger {
	if !n.Options.DeadlockTrace {
		return nopLogger
	}
	return zap.S().Named("deadlock")
}

// AddSection registers s and returns its index.
func (n *Network) AddSection(s *Section) int {
	s.Index = len(n.Sections)
	s.net = n
	n.Sections = append(n.Sections, s)
	return s.Index
}

// Section returns the section with the given index. It panics on an unknown index.
func (n *Network) Section(i int) *Section {
	if i < 0 || i >= len(n.Sections) {
		panic(fmt.Sprintf("invalid section index %d", i))
	}
	return n.Sections[i]
}

// MustLookupIndex finds a section with a matching comment. If it doesn't it panics.
// This is for debugging/testing.
func (n *Network) MustLookupIndex(comment string) int {
	for i, s := range n.Sections {
		if s.Comment == comment {
			return i
		}
	}
	panic(fmt.Sprintf("found nothing when looking up for %s", comment))
}

// BuildRoute builds a route through sections, all travelled in direction.
// Junction elements whose far end is switchable are marked as facing points.
func (n *Network) BuildRoute(direction int, sections ...int) layout.Route {
	r := make(layout.Route, len(sections))
	for i, si := range sections {
		s := n.Section(si)
		r[i] = layout.RouteElement{
			Section:     si,
			Direction:   direction,
			FacingPoint: s.Kind == layout.Junction && s.Pins[direction][1].Linked(),
		}
	}
	return r
}

// AddTrain registers t and records its details in every deadlock area its route enters at a facing point.
func (n *Network) AddTrain(t *Train) {
	n.Trains[t.Number] = t
	route := t.Routes[0]
	for i := 1; i < len(route); i++ {
		e := route[i]
		if !e.FacingPoint {
			continue
		}
		ref := n.Section(e.Section).DeadlockReference
		if ref < 0 {
			continue
		}
		d := n.Deadlocks[ref]
		end := d.SetTrainDetails(t.Number, t.Subpath, t.Length, route, i)
		n.trace().Debugw("train details set",
			"train", t.Number,
			"deadlock", d.ID,
			"section", e.Section,
			"end", end)
		if end > i {
			i = end - 1
		}
	}
}

// DropTrain removes every trace of t from the network.
func (n *Network) DropTrain(t *Train) {
	for _, s := range n.Sections {
		s.RemoveTrain(t.Forward(), true)
		s.RemoveTrain(t.Backward(), true)
		s.ClearDeadlockTrap(t.Number)
	}
	for _, d := range n.Deadlocks {
		d.RemoveTrainSubpathKey(t.Number, t.Subpath)
	}
	delete(n.Trains, t.Number)
}

func (n *Network) train(number int) *Train { return n.Trains[number] }

func (n *Network) speedOf(number int) float64 {
	if t := n.Trains[number]; t != nil {
		return t.Speed
	}
	return 0
}

// verifyDeadlock reports whether a trap set by holders still applies.
func (n *Network) verifyDeadlock(holders []int) bool {
	for _, h := range holders {
		if _, ok := n.Trains[h]; ok {
			return true
		}
	}
	return false
}

func (n *Network) publish(kind EventKind, section int, t circuit.TrainRouted) {
	n.events.Send(Event{Kind: kind, Section: section, Train: t, Tick: n.tick})
}

// deadlockIDs returns the deadlock ids in ascending order.
func (n *Network) deadlockIDs() []int {
	return sortedKeys(n.Deadlocks)
}
