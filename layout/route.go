package layout

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// AlternativePath marks a route element as the start of an alternative path.
type AlternativePath struct {
	// Index of the alternative path in the route's catalogue.
	Index int
	// EndSection is the section where the alternative path rejoins the route.
	EndSection int
}

// RouteElement is one section along a route, with the direction it is traversed in.
type RouteElement struct {
	Section   int
	Direction int
	// FacingPoint is set if the train enters a junction from its single end, so that the junction selects where it goes.
	FacingPoint bool
	// AlternativePath is non-nil if an alternative path starts at this element.
	AlternativePath *AlternativePath
}

func (e RouteElement) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d", e.Section, e.Direction)
	if e.FacingPoint {
		b.WriteString("f")
	}
	if e.AlternativePath != nil {
		fmt.Fprintf(&b, "(alt %d→%d)", e.AlternativePath.Index, e.AlternativePath.EndSection)
	}
	return b.String()
}

// Route is an ordered list of route elements. Routes are produced by the route/timetable side and never changed in place here.
type Route []RouteElement

// NewRoute builds a plain route from alternating section and direction values.
// This is for tests and hard-coded layouts.
func NewRoute(sectionsAndDirections ...int) Route {
	if len(sectionsAndDirections)%2 != 0 {
		panic("odd number of arguments")
	}
	r := make(Route, 0, len(sectionsAndDirections)/2)
	for i := 0; i < len(sectionsAndDirections); i += 2 {
		checkDirection(sectionsAndDirections[i+1])
		r = append(r, RouteElement{
			Section:   sectionsAndDirections[i],
			Direction: sectionsAndDirections[i+1],
		})
	}
	return r
}

func (r Route) String() string {
	parts := make([]string, len(r))
	for i, e := range r {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// IndexOf returns the index of the first element at or after start that is on section, or NotFound.
func (r Route) IndexOf(section, start int) int {
	if start < 0 {
		start = 0
	}
	if start >= len(r) {
		return NotFound
	}
	i := slices.IndexFunc(r[start:], func(e RouteElement) bool { return e.Section == section })
	if i == -1 {
		return NotFound
	}
	return start + i
}

// IndexOfBackward returns the index of the last element at or before start that is on section, or NotFound.
func (r Route) IndexOfBackward(section, start int) int {
	if start >= len(r) {
		start = len(r) - 1
	}
	for i := start; i >= 0; i-- {
		if r[i].Section == section {
			return i
		}
	}
	return NotFound
}

// Equal reports whether r and r2 go through the same sections in the same directions.
// Other element attributes are ignored.
func (r Route) Equal(r2 Route) bool {
	return slices.EqualFunc(r, r2, func(a, b RouteElement) bool {
		return a.Section == b.Section && a.Direction == b.Direction
	})
}

// EqualReverse reports whether r2 is r traversed the other way.
func (r Route) EqualReverse(r2 Route) bool {
	if len(r) != len(r2) {
		return false
	}
	last := len(r2) - 1
	for i := range r {
		if r[i].Section != r2[last-i].Section || r[i].Direction == r2[last-i].Direction {
			return false
		}
	}
	return true
}

// Reverse returns a copy of r traversed the other way.
func (r Route) Reverse() Route {
	r2 := make(Route, len(r))
	for i, e := range r {
		r2[len(r)-1-i] = RouteElement{
			Section:   e.Section,
			Direction: Opposite(e.Direction),
		}
	}
	return r2
}

// Slice returns a copy of elements from..to (both inclusive).
func (r Route) Slice(from, to int) Route {
	if from < 0 || to >= len(r) || from > to {
		panic(fmt.Sprintf("invalid slice %d..%d of route length %d", from, to, len(r)))
	}
	return slices.Clone(r[from : to+1])
}

// Sections returns the section indices along r.
func (r Route) Sections() []int {
	s := make([]int, len(r))
	for i, e := range r {
		s[i] = e.Section
	}
	return s
}

// Contains reports whether section is anywhere on r.
func (r Route) Contains(section int) bool {
	return r.IndexOf(section, 0) != NotFound
}
