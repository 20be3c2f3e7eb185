package track

import (
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/heisoku/circuit"
	"nyiyui.ca/hato/heisoku/layout"
)

// Position is where one end of a train is.
type Position struct {
	Section int `json:"section"`
	// Offset from the start of the section in Direction (m).
	Offset    float64 `json:"offset"`
	Direction int     `json:"direction"`
	// RouteIndex is the index of Section in the train's forward route, or -1.
	RouteIndex int `json:"route-index"`
}

// ClearAction releases a section once the train has travelled Distance.
type ClearAction struct {
	Distance float64
	Section  int
}

// Train is what the reservation engine needs to know about a train.
// The movement engine and route planner own these fields and update them between ticks.
type Train struct {
	Number int
	Name   string
	// Length in metres.
	Length            float64
	Speed             float64
	DistanceTravelled float64
	// Subpath is the active subpath of the train's timetable route.
	Subpath int
	// Routes are the valid routes ahead (0) and, for reversing, behind (1).
	Routes [2]layout.Route
	// AltRoute is the alternative path the train is taking, if any.
	AltRoute layout.Route
	// Positions are the front (0) and rear (1) of the train.
	Positions [2]Position

	// NotStarted is set for a train waiting to be started, whose reservations other trains may take over.
	NotStarted   bool
	PlayerDriven bool
	Manual       bool

	// DeadlockInfo lists, per section, the other trains that would deadlock with this one
	// if both entered, each mapped to the far section of the conflicting stretch.
	DeadlockInfo map[int][]map[int]int
	// Waits holds sections where the train must wait.
	Waits map[int]bool
	// ActiveWaits are (start, end) section pairs spanning an active wait.
	ActiveWaits [][2]int

	OccupiedTrack []int
	ClearActions  []ClearAction
	ClaimState    bool
}

// NewTrain returns a train at the start of route.
func NewTrain(number int, length float64, route layout.Route) *Train {
	t := &Train{
		Number:       number,
		Length:       length,
		DeadlockInfo: map[int][]map[int]int{},
		Waits:        map[int]bool{},
	}
	t.Routes[0] = route
	if len(route) > 0 {
		t.Positions[0] = Position{Section: route[0].Section, Direction: route[0].Direction, RouteIndex: 0}
		t.Positions[1] = t.Positions[0]
	}
	return t
}

func (t *Train) Forward() circuit.TrainRouted { return circuit.TrainRouted{Number: t.Number, Dir: 0} }
func (t *Train) Backward() circuit.TrainRouted { return circuit.TrainRouted{Number: t.Number, Dir: 1} }

func (t *Train) front(r circuit.TrainRouted) Position { return t.Positions[r.Dir] }
func (t *Train) rear(r circuit.TrainRouted) Position { return t.Positions[1-r.Dir] }

func (t *Train) CheckWaitCondition(section int) bool { return t.Waits[section] }

func (t *Train) HasActiveWait(start, end int) bool {
	return slices.Contains(t.ActiveWaits, [2]int{start, end})
}

// atInitialPlacement reports whether a player train has not moved since being placed.
func (t *Train) atInitialPlacement() bool {
	return t.PlayerDriven && !t.Manual && t.DistanceTravelled == 0 && len(t.Routes[0]) > 0 && t.Subpath == 0
}

func (t *Train) lastClearingDistance() (float64, bool) {
	if len(t.ClearActions) == 0 {
		return 0, false
	}
	return t.ClearActions[len(t.ClearActions)-1].Distance, true
}

func (t *Train) insertClearAction(a ClearAction) {
	i := slices.IndexFunc(t.ClearActions, func(b ClearAction) bool { return b.Distance > a.Distance })
	if i == -1 {
		i = len(t.ClearActions)
	}
	t.ClearActions = slices.Insert(t.ClearActions, i, a)
}

func (t *Train) addOccupied(section int) {
	if !slices.Contains(t.OccupiedTrack, section) {
		t.OccupiedTrack = append(t.OccupiedTrack, section)
	}
}

func (t *Train) removeOccupied(section int) {
	t.OccupiedTrack = removeValue(t.OccupiedTrack, section)
}
