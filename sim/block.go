package sim

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/heisoku/layout"
	"nyiyui.ca/hato/heisoku/track"
)

// request asks for the next block ahead of the train once its front is within lookahead of it.
// A block is reserved whole or not at all; if not, the train claims the first section it could not get.
func (s *Simulation) request(tr *train) {
	t := tr.t
	fwd := t.Forward()
	route := t.Routes[0]
	j := t.Positions[0].RouteIndex + 1
	for j < len(route) && s.n.Section(route[j].Section).IsSet(fwd, false) {
		j++
	}
	if j >= len(route) || start(s.n, route, j)-tr.front > s.lookahead {
		return
	}
	block, ok := s.block(tr, j)
	if !ok {
		s.wait(tr, route[j].Section)
		return
	}
	route = t.Routes[0]
	for _, k := range block {
		sec := s.n.Section(route[k].Section)
		if !sec.IsAvailable(fwd) {
			if !sec.State.Claimed.ContainsTrain(t.Number) {
				sec.Claim(fwd)
			}
			s.wait(tr, sec.Index)
			return
		}
	}
	for _, k := range block {
		s.n.Section(route[k].Section).Reserve(fwd, route)
	}
	if tr.waiting != -1 {
		zap.S().Debugw("train proceeds",
			"train", t.Number,
			"waited", tr.waiting)
	}
	tr.waiting = -1
}

func (s *Simulation) wait(tr *train, section int) {
	if tr.waiting == section {
		return
	}
	tr.waiting = section
	zap.S().Debugw("train waits",
		"train", tr.t.Number,
		"section", section,
		"tick", s.n.Tick())
}

// block returns the route indices of the block starting at j: up to the next end signal, the
// section before the next facing point, or the end of the route. At a facing point into a
// deadlock area, the block is the path chosen through the area, up to its last usable section.
func (s *Simulation) block(tr *train, j int) ([]int, bool) {
	t := tr.t
	route := t.Routes[0]
	if e := route[j]; e.FacingPoint && s.n.Options.LocationPassingPaths {
		if ref := s.n.Section(e.Section).DeadlockReference; ref >= 0 {
			d := s.n.Deadlocks[ref]
			if d.HasTrainSubpathKey(t.Number, t.Subpath) {
				return s.enterArea(tr, d, j)
			}
		}
	}
	k := j
	for k < len(route)-1 {
		e := route[k]
		if s.n.Section(e.Section).EndSignals[e.Direction] != track.NoSignal || route[k+1].FacingPoint {
			break
		}
		k++
	}
	return span(j, k), true
}

// enterArea selects a path through d for a train about to enter it at route index j, and
// puts the path on the train's route.
func (s *Simulation) enterArea(tr *train, d *track.Deadlock, j int) ([]int, bool) {
	t := tr.t
	entry := s.n.Section(t.Routes[0][j].Section)
	if !entry.IsAvailable(t.Forward()) {
		return nil, false
	}
	paths := d.CheckDeadlockPathAvailability(entry, t)
	p, _, err := d.SelectPath(paths, t)
	if err != nil {
		zap.S().Warnw("no path through deadlock area",
			"train", t.Number,
			"deadlock", d.ID,
			"err", err)
		return nil, false
	}
	// the own path is returned even when it is not available
	if !slices.Contains(paths, p) {
		return nil, false
	}
	path := d.Paths[p]
	route, err := splice(t.Routes[0], j, path.Route)
	if err != nil {
		zap.S().Warnw("path does not fit route",
			"train", t.Number,
			"deadlock", d.ID,
			"path", path.Name,
			"err", err)
		return nil, false
	}
	if !route.Equal(t.Routes[0]) {
		zap.S().Infow("train takes passing path",
			"train", t.Number,
			"deadlock", d.ID,
			"path", path.Name)
	}
	t.Routes[0] = route
	last := j + path.LastUsableIndex
	if path.LastUsableIndex < 1 {
		last = j
	}
	return span(j, last), true
}

// splice replaces the stretch of route from index j to the end of path with path's interior.
func splice(route layout.Route, j int, path layout.Route) (layout.Route, error) {
	if len(path) < 2 || path[0].Section != route[j].Section {
		return nil, fmt.Errorf("path %s does not start at %s", path, route[j])
	}
	k := route.IndexOf(path[len(path)-1].Section, j+1)
	if k < 0 {
		return nil, fmt.Errorf("route %s does not rejoin path %s", route, path)
	}
	r := make(layout.Route, 0, j+len(path)+len(route)-k)
	r = append(r, route[:j+1]...)
	r = append(r, path[1:len(path)-1]...)
	r = append(r, route[k:]...)
	return r, nil
}

func span(from, to int) []int {
	s := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		s = append(s, i)
	}
	return s
}

// move advances the train by its speed, stopping at the end of the last section set for it.
// Sections the front enters are occupied, and those it has cleared are released.
func (s *Simulation) move(tr *train) {
	t := tr.t
	fwd := t.Forward()
	route := t.Routes[0]
	i := t.Positions[0].RouteIndex
	for i+1 < len(route) && s.n.Section(route[i+1].Section).IsSet(fwd, false) {
		i++
	}
	limit := start(s.n, route, i+1)
	step := math.Min(tr.speed, limit-tr.front)
	if step <= 0 {
		t.Speed = 0
		return
	}
	old := t.Positions[0].RouteIndex
	tr.front += step
	t.DistanceTravelled += step
	t.Speed = tr.speed
	tr.place(s.n)
	for k := old + 1; k <= t.Positions[0].RouteIndex; k++ {
		s.n.Section(route[k].Section).SetOccupied(fwd)
	}
	s.n.ProcessClearActions(t)
	if tr.front >= start(s.n, route, len(route)) {
		tr.arrived = true
		t.Speed = 0
		zap.S().Infow("train arrived",
			"train", t.Number,
			"name", t.Name,
			"tick", s.n.Tick(),
			"travelled", t.DistanceTravelled)
	}
}
