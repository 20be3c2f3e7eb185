package track

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/heisoku/layout"
)

// ErrNoPathAvailable is returned by SelectPath when the train has no path of its own to fall back on.
var ErrNoPathAvailable = errors.New("no path available")

type MatchKind int

const (
	// MatchFound: Index is a path equal to the train's route through the area.
	MatchFound MatchKind = iota
	// MatchEndsInside: the train's route ends inside the area.
	MatchEndsInside
	// MatchNew: the route crosses the area by a path not yet catalogued; Index is the route index of the exit.
	MatchNew
	// MatchReversed: the route turns back inside the area; Index is the route index to continue searching from.
	MatchReversed
)

func (k MatchKind) String() string {
	switch k {
	case MatchFound:
		return "found"
	case MatchEndsInside:
		return "ends-inside"
	case MatchNew:
		return "new"
	case MatchReversed:
		return "reversed"
	default:
		panic(fmt.Sprintf("invalid MatchKind %d", int(k)))
	}
}

type PathMatch struct {
	Kind  MatchKind
	Index int
}

// SearchMatchingFullPath looks for the path the route takes through the area, entering at
// startSection which is at startIndex on route.
func (d *Deadlock) SearchMatchingFullPath(route layout.Route, startSection, startIndex int) PathMatch {
	available, ok := d.PathRefs[startSection]
	if !ok {
		if len(d.Paths) > 0 && startSection == d.Paths[0].EndSection {
			// entering against the catalogued direction
			if end := route.IndexOf(d.Paths[0].Route[0].Section, startIndex); end > 0 {
				return PathMatch{Kind: MatchNew, Index: end}
			}
		}
		return PathMatch{Kind: MatchReversed, Index: startIndex + 1}
	}

	matchEnd := layout.NotFound
	for _, pi := range available {
		p := d.Paths[pi]
		end := route.IndexOf(p.EndSection, startIndex)
		// a route running the wrong way finds the end at the start
		if end > 0 && end != startIndex {
			if route.Slice(startIndex, end).Equal(p.Route) {
				return PathMatch{Kind: MatchFound, Index: pi}
			}
			if matchEnd < 0 {
				matchEnd = end
			}
			continue
		}
		if route[startIndex].Direction != d.Paths[available[0]].Route[0].Direction {
			return PathMatch{Kind: MatchReversed, Index: startIndex + 1}
		}
		if p.Route.Contains(route[len(route)-1].Section) {
			return PathMatch{Kind: MatchEndsInside, Index: layout.NotFound}
		}
	}
	if matchEnd >= 0 {
		return PathMatch{Kind: MatchNew, Index: matchEnd}
	}
	return PathMatch{Kind: MatchReversed, Index: startIndex + 1}
}

// SetTrainDetails records which paths of the area the train may use when its route enters the
// area at route[elementIndex], and whether it fits each of them. It returns the route index of
// the exit of the first usable path, or the route index to resume scanning from if the route
// turns back, or layout.NotFound.
func (d *Deadlock) SetTrainDetails(train, subpath int, length float64, route layout.Route, elementIndex int) int {
	if elementIndex <= 0 || elementIndex >= len(route) {
		zap.S().Warnw("invalid route index for deadlock area",
			"train", train,
			"deadlock", d.ID,
			"index", elementIndex)
		return layout.NotFound
	}
	key := d.TrainSubpathKey(train, subpath)
	section := route[elementIndex].Section
	m := d.SearchMatchingFullPath(route, section, elementIndex)
	d.net.trace().Debugw("match path",
		"train", train,
		"deadlock", d.ID,
		"section", section,
		"kind", m.Kind,
		"index", m.Index)
	switch m.Kind {
	case MatchEndsInside:
		if _, ok := d.TrainRefs[key]; !ok {
			d.RemoveTrainSubpathKey(train, subpath)
		}
		return layout.NotFound
	case MatchReversed:
		d.RemoveTrainSubpathKey(train, subpath)
		return m.Index
	case MatchNew:
		part := route.Slice(elementIndex, m.Index)
		i, _ := d.AddPath(part, section)
		p := d.Paths[i]
		p.UsableLength, p.LastUsableIndex = d.net.usableLength(part)
		p.EndSection = route[m.Index].Section
		p.Name = ""
		p.Allow(key)
		d.TrainOwnPath[key] = i
	default:
		d.Paths[m.Index].Allow(key)
		d.TrainOwnPath[key] = m.Index
	}

	refs := d.TrainRefs[key]
	fit := d.TrainLengthFit[key]
	if fit == nil {
		fit = map[int]bool{}
		d.TrainLengthFit[key] = fit
	}
	for i, p := range d.Paths {
		if !p.Allows(AnyTrain) && !p.Allows(key) {
			continue
		}
		if !slices.Contains(d.PathRefs[section], i) {
			continue
		}
		refs = addUnique(refs, i)
		fit[i] = length < p.UsableLength
	}
	d.TrainRefs[key] = refs
	if len(refs) == 0 {
		return layout.NotFound
	}
	first := d.Paths[refs[0]].Route
	return route.IndexOf(first[len(first)-1].Section, elementIndex)
}

// GetFreePaths returns the paths allowed to the train whose sections up to the last usable one are all available to it.
func (d *Deadlock) GetFreePaths(tr *Train) []int {
	key, ok := d.keys.lookup(tr.Number, tr.Subpath)
	if !ok {
		return nil
	}
	var free []int
	for _, pi := range d.TrainRefs[key] {
		p := d.Paths[pi]
		ok := true
		for i := 1; i <= p.LastUsableIndex && i < len(p.Route); i++ {
			if !d.net.Section(p.Route[i].Section).IsAvailable(tr.Forward()) {
				ok = false
				break
			}
		}
		if ok {
			free = append(free, pi)
		}
	}
	return free
}

// CheckDeadlockPathAvailability returns the paths the train may take into the area at start
// without blocking trains holding traps at the exit. The exit holders' free paths are grouped
// into used (any), common (all), and single (only choice); the train avoids the reverse of
// those, least restrictive first, only as far as it must.
func (d *Deadlock) CheckDeadlockPathAvailability(start *Section, tr *Train) []int {
	endIndex := d.GetEndSection(tr)
	if endIndex == layout.NotFound {
		return nil
	}
	end := d.net.Section(endIndex)
	free := d.GetFreePaths(tr)

	var used, common, single []int
	first := true
	for _, other := range end.DeadlockActives {
		if other == tr.Number {
			continue
		}
		ot := d.net.train(other)
		if ot != nil && d.HasTrainSubpathKey(ot.Number, ot.Subpath) {
			otherFree := d.GetFreePaths(ot)
			for _, p := range otherFree {
				used = addUnique(used, p)
			}
			if first {
				common = append(common, otherFree...)
			} else {
				common = slices.DeleteFunc(common, func(p int) bool { return !slices.Contains(otherFree, p) })
			}
			if len(otherFree) == 1 {
				single = addUnique(single, otherFree[0])
			}
		} else {
			for _, p := range free {
				used = addUnique(used, p)
				single = addUnique(single, p)
			}
		}
		first = false
	}
	inverseUsed, inverseCommon, inverseSingle := d.inverses(used), d.inverses(common), d.inverses(single)
	d.net.trace().Debugw("path availability",
		"train", tr.Number,
		"deadlock", d.ID,
		"free", free,
		"inverse-used", inverseUsed,
		"inverse-common", inverseCommon,
		"inverse-single", inverseSingle)

	if end.CheckDeadlockAwaited(tr.Number) {
		if u := without(free, inverseUsed); len(u) > 0 {
			return u
		}
		if len(inverseCommon) > 0 {
			if u := without(free, inverseCommon); len(u) > 0 {
				return u
			}
		}
		if len(inverseSingle) > 0 {
			if u := without(free, inverseSingle); len(u) > 0 {
				return u
			}
		}
		if len(start.DeadlockAwaited) > 0 {
			return free
		}
		return nil
	}
	if len(inverseSingle) > 0 {
		if u := without(free, inverseSingle); len(u) > 0 {
			return u
		}
	}
	return free
}

func (d *Deadlock) inverses(paths []int) []int {
	var res []int
	for _, p := range paths {
		if q, ok := d.Inverse[p]; ok {
			res = addUnique(res, q)
		}
	}
	return res
}

func without(paths, excluded []int) []int {
	var res []int
	for _, p := range paths {
		if !slices.Contains(excluded, p) {
			res = append(res, p)
		}
	}
	return res
}

// SelectPath chooses a path from available for the train, returning its index and the area's exit
// section. A fitting path is preferred to one the train does not fit; the own path and MAIN are
// preferred over others, unless trains already hold traps at the exit. If no candidate applies the
// train's own path is returned even if it does not fit.
func (d *Deadlock) SelectPath(available []int, tr *Train) (int, int, error) {
	end := d.GetEndSection(tr)
	key, ok := d.keys.lookup(tr.Number, tr.Subpath)
	own, hasOwn := d.TrainOwnPath[key]
	if !ok || !hasOwn {
		return layout.NotFound, end, fmt.Errorf("train %d in deadlock area %d: %w", tr.Number, d.ID, ErrNoPathAvailable)
	}
	fitInfo := d.TrainLengthFit[key]

	preferMain, checkedMain, checkedOwn := true, false, false
	if end >= 0 && len(d.net.Section(end).DeadlockActives) > 0 {
		preferMain = false
		checkedMain = true
	}
	if d.Paths[own].Name == MainPathName {
		checkedOwn = true
	}

	fit, nofit := layout.NotFound, layout.NotFound
	for _, pi := range available {
		p := d.Paths[pi]
		fits := fitInfo[pi]
		if !checkedOwn && pi == own {
			checkedOwn = true
			if fits {
				fit = pi
				break
			}
			nofit = pi
			// fit > 0 rather than >= 0: path 0 is never taken here
			if checkedMain && fit > 0 {
				break
			}
		}
		if p.Name == MainPathName {
			checkedMain = true
			if fits {
				fit = pi
				if checkedOwn && preferMain {
					break
				}
			} else if !checkedOwn || nofit < 0 || preferMain {
				nofit = pi
			}
			continue
		}
		if fits {
			fit = pi
			if checkedMain || checkedOwn {
				break
			}
		} else if (!checkedOwn && !checkedMain) || !preferMain {
			nofit = pi
		}
	}
	switch {
	case fit >= 0:
		return fit, end, nil
	case nofit >= 0:
		return nofit, end, nil
	default:
		return own, end, nil
	}
}
