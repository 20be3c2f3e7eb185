package track

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/heisoku/layout"
)

const (
	// AnyTrain in DeadlockPath.AllowedTrains marks a public path.
	AnyTrain = -1
	// MainPathName is the name of the preferred path through an area.
	MainPathName = "MAIN"
)

// DeadlockPath is one way through a deadlock area, from an entry boundary to the opposite one.
type DeadlockPath struct {
	Route  layout.Route
	Name   string
	Groups []string
	// UsableLength is the length (m) a train can stand in without fouling the exit.
	UsableLength float64
	// LastUsableIndex is the last route index within UsableLength.
	LastUsableIndex int
	EndSection      int
	// AllowedTrains holds train/subpath keys of the area, or AnyTrain.
	AllowedTrains []int
}

func (p *DeadlockPath) Allows(key int) bool {
	return slices.Contains(p.AllowedTrains, key)
}

func (p *DeadlockPath) Allow(key int) {
	p.AllowedTrains = addUnique(p.AllowedTrains, key)
}

// Deadlock is a deadlock area: a stretch of track between two boundary sections with
// several paths through it, where trains meeting head-on must be kept on different paths.
type Deadlock struct {
	ID    int
	Paths []*DeadlockPath
	// PathRefs maps an entry boundary section to the paths starting there.
	PathRefs map[int][]int
	// TrainRefs maps a train/subpath key to the paths the train may use.
	TrainRefs map[int][]int
	// TrainLengthFit maps a train/subpath key to whether the train fits each path.
	TrainLengthFit map[int]map[int]bool
	// TrainOwnPath maps a train/subpath key to the path its own route takes.
	TrainOwnPath map[int]int
	// Inverse pairs paths which are each other reversed.
	Inverse map[int]int

	keys subpathKeys
	net  *Network
}

// subpathKeys assigns a small unique key per (train, subpath) pair. Keys start at 1.
type subpathKeys struct {
	index map[int]map[int]int
	next  int
}

func (k *subpathKeys) lookup(train, subpath int) (int, bool) {
	key, ok := k.index[train][subpath]
	return key, ok
}

func (k *subpathKeys) get(train, subpath int) int {
	if key, ok := k.lookup(train, subpath); ok {
		return key
	}
	k.next++
	if k.index[train] == nil {
		k.index[train] = map[int]int{}
	}
	k.index[train][subpath] = k.next
	return k.next
}

func (k *subpathKeys) remove(train, subpath int) {
	subpaths, ok := k.index[train]
	if !ok {
		return
	}
	delete(subpaths, subpath)
	if len(subpaths) == 0 {
		delete(k.index, train)
	}
}

func (n *Network) newDeadlock() *Deadlock {
	d := &Deadlock{
		ID:             n.nextDeadlock,
		PathRefs:       map[int][]int{},
		TrainRefs:      map[int][]int{},
		TrainLengthFit: map[int]map[int]bool{},
		TrainOwnPath:   map[int]int{},
		Inverse:        map[int]int{},
		keys:           subpathKeys{index: map[int]map[int]int{}},
		net:            n,
	}
	n.nextDeadlock++
	n.Deadlocks[d.ID] = d
	return d
}

// TrainSubpathKey returns the key for the train and subpath, assigning a new one if needed.
func (d *Deadlock) TrainSubpathKey(train, subpath int) int { return d.keys.get(train, subpath) }

func (d *Deadlock) HasTrainSubpathKey(train, subpath int) bool {
	_, ok := d.keys.lookup(train, subpath)
	return ok
}

func (d *Deadlock) RemoveTrainSubpathKey(train, subpath int) { d.keys.remove(train, subpath) }

func (d *Deadlock) addPathRef(entry, path int) {
	d.PathRefs[entry] = addUnique(d.PathRefs[entry], path)
}

func (d *Deadlock) appendPath(route layout.Route, entry int) int {
	p := &DeadlockPath{
		Route:      route,
		EndSection: route[len(route)-1].Section,
	}
	p.UsableLength, p.LastUsableIndex = d.net.usableLength(route)
	i := len(d.Paths)
	d.Paths = append(d.Paths, p)
	d.addPathRef(entry, i)
	d.SetIntermediateReferences(route, i)
	return i
}

// pairInverse pairs path i with any earlier path that is its reverse.
func (d *Deadlock) pairInverse(i int) {
	for j := 0; j < i; j++ {
		if d.Paths[i].Route.EqualReverse(d.Paths[j].Route) {
			d.Inverse[i] = j
			d.Inverse[j] = i
		}
	}
}

// AddPath adds route, entered at entry, returning its index and whether an equal path already existed.
// The first path of an area is named MAIN and later ones PASSnn.
func (d *Deadlock) AddPath(route layout.Route, entry int) (int, bool) {
	for i, p := range d.Paths {
		if route.Equal(p.Route) {
			d.addPathRef(entry, i)
			return i, true
		}
	}
	i := d.appendPath(route, entry)
	if len(d.Paths) == 1 {
		d.Paths[i].Name = MainPathName
	} else {
		d.Paths[i].Name = fmt.Sprintf("PASS%02d", len(d.Paths))
	}
	d.pairInverse(i)
	return i, false
}

// AddNamedPath is AddPath for a path with a caller-chosen name. A path only matches an
// existing one with the same name; the group is then merged into the existing path's groups.
func (d *Deadlock) AddNamedPath(route layout.Route, entry int, name, group string) (int, bool) {
	for i, p := range d.Paths {
		if route.Equal(p.Route) && p.Name == name {
			if group != "" && !slices.Contains(p.Groups, group) {
				p.Groups = append(p.Groups, group)
			}
			d.addPathRef(entry, i)
			return i, true
		}
	}
	i := d.appendPath(route, entry)
	d.Paths[i].Name = name
	if group != "" {
		d.Paths[i].Groups = append(d.Paths[i].Groups, group)
	}
	d.pairInverse(i)
	return i, false
}

// SetIntermediateReferences records, on every section of route except its boundaries, that it is on path of this area.
func (d *Deadlock) SetIntermediateReferences(route layout.Route, path int) {
	for i := 1; i <= len(route)-2; i++ {
		s := d.net.Section(route[i].Section)
		if s.DeadlockBoundaries == nil {
			s.DeadlockBoundaries = map[int]int{}
		}
		if _, ok := s.DeadlockBoundaries[d.ID]; !ok {
			s.DeadlockBoundaries[d.ID] = path
		}
	}
}

// GetEndSection returns the exit boundary of the area for the train, or layout.NotFound.
func (d *Deadlock) GetEndSection(tr *Train) int {
	key, ok := d.keys.lookup(tr.Number, tr.Subpath)
	if !ok || len(d.TrainRefs[key]) == 0 {
		zap.S().Warnw("no passing paths for train in deadlock area; check for passing paths at the same location without a common branch",
			"train", tr.Number,
			"name", tr.Name,
			"deadlock", d.ID)
		return layout.NotFound
	}
	return d.Paths[d.TrainRefs[key][0]].EndSection
}

// GetValidPassingPaths returns the paths the train may use, including public paths if allowPublic.
func (d *Deadlock) GetValidPassingPaths(train, subpath int, allowPublic bool) []int {
	key := d.TrainSubpathKey(train, subpath)
	var found []int
	for i, p := range d.Paths {
		if p.Allows(key) || (allowPublic && p.Allows(AnyTrain)) {
			found = append(found, i)
		}
	}
	return found
}

// CheckNoOverlapDeadlockPaths reports whether no section of route bounds a deadlock area.
func (n *Network) CheckNoOverlapDeadlockPaths(route layout.Route) bool {
	for _, e := range route {
		if n.Section(e.Section).DeadlockReference >= 0 {
			return false
		}
	}
	return true
}

// FindDeadlock returns the area the alternative path part between start and end belongs to,
// creating one if neither boundary is in use. If a boundary lies inside an existing area, part
// is extended along main to that area's boundaries. Nil is returned if the path overlaps areas
// it cannot be merged with.
func (n *Network) FindDeadlock(part, main layout.Route, start, end int) (*Deadlock, layout.Route) {
	startSection, endSection := n.Section(start), n.Section(end)
	startIndex := main.IndexOf(start, 0)
	endIndex := main.IndexOf(end, startIndex)

	var found *Deadlock
	if len(startSection.DeadlockBoundaries) > 0 {
		newStart := layout.NotFound
		for _, id := range sortedKeys(startSection.DeadlockBoundaries) {
			d := n.Deadlocks[id]
			p := d.Paths[startSection.DeadlockBoundaries[id]]
			newStart = main.IndexOfBackward(p.Route[0].Section, startIndex)
			if newStart < 0 {
				newStart = main.IndexOfBackward(p.EndSection, startIndex)
			}
			if newStart >= 0 {
				found = d
				break
			}
		}
		if newStart < 0 {
			return nil, part
		}
		prefix := make(layout.Route, 0, startIndex-newStart)
		prefix = append(prefix, main[newStart:startIndex]...)
		part = append(prefix, part...)
	}
	if len(endSection.DeadlockBoundaries) > 0 {
		newEnd := layout.NotFound
		for _, id := range sortedKeys(endSection.DeadlockBoundaries) {
			d := n.Deadlocks[id]
			p := d.Paths[endSection.DeadlockBoundaries[id]]
			newEnd = main.IndexOf(p.Route[0].Section, endIndex)
			if newEnd < 0 {
				newEnd = main.IndexOf(p.EndSection, endIndex)
			}
			if newEnd >= 0 {
				found = d
				break
			}
		}
		if newEnd < 0 {
			return nil, part
		}
		part = append(part, main[endIndex+1:newEnd+1]...)
	}
	if found != nil {
		return found, part
	}

	switch {
	case startSection.DeadlockReference >= 0 && startSection.DeadlockReference == endSection.DeadlockReference:
		return n.Deadlocks[startSection.DeadlockReference], part
	case startSection.DeadlockReference < 0 && endSection.DeadlockReference < 0:
		if !n.CheckNoOverlapDeadlockPaths(part) {
			n.trace().Debugw("alternative path overlaps existing deadlock areas",
				"start", start,
				"end", end)
			return nil, part
		}
		d := n.newDeadlock()
		startSection.DeadlockReference = d.ID
		endSection.DeadlockReference = d.ID
		return d, part
	default:
		return nil, part
	}
}

// AddAlternativePath registers alt, which leaves and rejoins main, as a passing area.
// Both directions are catalogued as public paths: the stretch of main as MAIN, alt as PASSnn.
// A nil area and nil error mean the path overlaps other areas and was not registered.
func (n *Network) AddAlternativePath(main, alt layout.Route) (*Deadlock, error) {
	if len(alt) < 2 {
		return nil, fmt.Errorf("alternative path %s too short", alt)
	}
	start, end := alt[0].Section, alt[len(alt)-1].Section
	startIndex := main.IndexOf(start, 0)
	endIndex := main.IndexOf(end, startIndex)
	if startIndex < 0 || endIndex < 0 {
		return nil, fmt.Errorf("alternative path %s does not leave and rejoin %s", alt, main)
	}
	if endIndex <= startIndex {
		return nil, fmt.Errorf("alternative path %s rejoins %s before leaving it", alt, main)
	}
	d, part := n.FindDeadlock(main.Slice(startIndex, endIndex), main, start, end)
	if d == nil {
		return nil, nil
	}
	// alt grows by whatever main grew by
	prefix := part[:part.IndexOf(start, 0)]
	suffix := part[part.IndexOf(end, len(prefix))+1:]
	full := make(layout.Route, 0, len(prefix)+len(alt)+len(suffix))
	full = append(full, prefix...)
	full = append(full, alt...)
	full = append(full, suffix...)

	entry, exit := part[0].Section, part[len(part)-1].Section
	i, _ := d.AddNamedPath(part, entry, MainPathName, "")
	name := fmt.Sprintf("PASS%02d", len(d.PathRefs[entry]))
	j, existed := d.AddNamedPath(full, entry, name, "")
	if existed {
		name = d.Paths[j].Name
	}
	ri, _ := d.AddNamedPath(part.Reverse(), exit, MainPathName, "")
	rj, _ := d.AddNamedPath(full.Reverse(), exit, name, "")
	for _, k := range []int{i, j, ri, rj} {
		d.Paths[k].Allow(AnyTrain)
	}
	return d, nil
}

// usableLength returns the length of the interior of route up to its last end signal in
// the direction of travel (the whole interior if there is none), and the last index within it.
func (n *Network) usableLength(route layout.Route) (float64, int) {
	if len(route) < 3 {
		return 0, 0
	}
	var total, usable float64
	last := layout.NotFound
	for i := 1; i <= len(route)-2; i++ {
		e := route[i]
		s := n.Section(e.Section)
		total += s.Length
		if s.EndSignals[e.Direction] != NoSignal {
			usable, last = total, i
		}
	}
	if last == layout.NotFound {
		return total, len(route) - 2
	}
	return usable, last
}
