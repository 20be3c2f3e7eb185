// Package sim drives trains along their routes, one tick at a time, through the reservation protocol.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"nyiyui.ca/hato/heisoku/layout"
	"nyiyui.ca/hato/heisoku/notify"
	"nyiyui.ca/hato/heisoku/track"
)

const defaultLookahead = 100

// TrainConf places a train.
type TrainConf struct {
	Number int
	Name   string
	Length float64
	Route  layout.Route
	// Speed in m per tick.
	Speed float64
	// Start is the tick the train departs on.
	Start int
}

type Conf struct {
	Network *track.Network
	Trains  []TrainConf
	// Lookahead is how far (m) ahead of its front a train asks for the next block.
	Lookahead float64
	// AfterStep, if set, is called after each tick, outside the step.
	AfterStep func(n *track.Network)
}

type Simulation struct {
	n         *track.Network
	trains    []*train
	lookahead float64
	afterStep func(n *track.Network)

	snapshots   *notify.MultiplexerSender[track.Snapshot]
	SnapshotMux *notify.Multiplexer[track.Snapshot]
}

type train struct {
	t     *track.Train
	speed float64
	start int
	// front is the distance of the train's front from the start of its route.
	front   float64
	arrived bool
	// waiting is the section the train last failed to get, or -1.
	waiting int
}

// New places the trains at the start of their routes, occupying the first section.
// Each train must fit in the first section of its route. No step may run during New.
func New(conf Conf) (*Simulation, error) {
	snapshots, mux := notify.NewMultiplexerSender[track.Snapshot]("simulation snapshots")
	s := &Simulation{
		n:           conf.Network,
		lookahead:   conf.Lookahead,
		afterStep:   conf.AfterStep,
		snapshots:   snapshots,
		SnapshotMux: mux,
	}
	if s.lookahead <= 0 {
		s.lookahead = defaultLookahead
	}
	for _, tc := range conf.Trains {
		if len(tc.Route) == 0 {
			return nil, fmt.Errorf("train %d: empty route", tc.Number)
		}
		if _, ok := s.n.Trains[tc.Number]; ok {
			return nil, fmt.Errorf("train %d: duplicate number", tc.Number)
		}
		first := s.n.Section(tc.Route[0].Section)
		if tc.Length > first.Length {
			return nil, fmt.Errorf("train %d: length %g does not fit in %s", tc.Number, tc.Length, first)
		}
		t := track.NewTrain(tc.Number, tc.Length, tc.Route)
		t.Name = tc.Name
		t.NotStarted = tc.Start > 0
		s.n.AddTrain(t)
		tr := &train{
			t:       t,
			speed:   tc.Speed,
			start:   tc.Start,
			front:   tc.Length,
			waiting: -1,
		}
		s.trains = append(s.trains, tr)
		tr.place(s.n)
		first.SetOccupied(t.Forward())
	}
	return s, nil
}

func (s *Simulation) Network() *track.Network { return s.n }

// Done reports whether every train has reached the end of its route.
func (s *Simulation) Done() bool {
	for _, tr := range s.trains {
		if !tr.arrived {
			return false
		}
	}
	return true
}

// Step runs one tick: every train, in order, asks for the block ahead and then moves as far
// as its speed and its reservations allow.
func (s *Simulation) Step() {
	var snap track.Snapshot
	s.n.Step(func() {
		tick := s.n.Tick()
		for _, tr := range s.trains {
			if tr.arrived || tick < tr.start {
				continue
			}
			tr.t.NotStarted = false
			s.request(tr)
			s.move(tr)
		}
		snap = s.n.Snapshot()
	})
	s.snapshots.Send(snap)
	if s.afterStep != nil {
		s.afterStep(s.n)
	}
}

var ErrStuck = errors.New("simulation did not finish")

// Run steps every interval until every train has arrived, maxTicks have run, or ctx is done.
// A zero interval steps without waiting.
func (s *Simulation) Run(ctx context.Context, interval time.Duration, maxTicks int) error {
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}
	for i := 0; i < maxTicks; i++ {
		if s.Done() {
			return nil
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		s.Step()
	}
	if s.Done() {
		return nil
	}
	for _, tr := range s.trains {
		if !tr.arrived {
			zap.S().Warnw("train did not arrive",
				"train", tr.t.Number,
				"name", tr.t.Name,
				"front", tr.t.Positions[0],
				"waiting", tr.waiting)
		}
	}
	return fmt.Errorf("after %d ticks: %w", maxTicks, ErrStuck)
}

// Close stops snapshot delivery.
func (s *Simulation) Close() { s.snapshots.Close() }

// start returns the distance from the start of route to the start of element i.
func start(n *track.Network, route layout.Route, i int) float64 {
	var d float64
	for j := 0; j < i; j++ {
		d += n.Section(route[j].Section).Length
	}
	return d
}

// locate returns the route index and offset of the point distance along route.
// A point on a boundary belongs to the earlier element.
func locate(n *track.Network, route layout.Route, distance float64) (int, float64) {
	var d float64
	for i, e := range route {
		l := n.Section(e.Section).Length
		if distance <= d+l {
			return i, distance - d
		}
		d += l
	}
	last := len(route) - 1
	return last, n.Section(route[last].Section).Length
}

// place sets the train's positions from its front distance.
func (tr *train) place(n *track.Network) {
	route := tr.t.Routes[0]
	fi, fo := locate(n, route, tr.front)
	rear := tr.front - tr.t.Length
	ri, ro := 0, 0.0
	if rear > 0 {
		ri, ro = locate(n, route, rear)
		// the rear is just past a boundary, not at its end
		if ro == n.Section(route[ri].Section).Length && ri < fi {
			ri, ro = ri+1, 0
		}
	}
	tr.t.Positions[0] = track.Position{Section: route[fi].Section, Offset: fo, Direction: route[fi].Direction, RouteIndex: fi}
	tr.t.Positions[1] = track.Position{Section: route[ri].Section, Offset: ro, Direction: route[ri].Direction, RouteIndex: ri}
}
