package layout

import "fmt"

// NotFound is returned by lookups that found nothing.
const NotFound = -1

// NoLink is the Link of a Pin that connects to nothing.
const NoLink = -1

// Kind is the kind of a track section.
type Kind int

const (
	Normal Kind = iota
	Junction
	Crossover
	EndOfTrack
	Empty
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Junction:
		return "junction"
	case Crossover:
		return "crossover"
	case EndOfTrack:
		return "end-of-track"
	case Empty:
		return "empty"
	default:
		panic(fmt.Sprintf("invalid Kind %d", k))
	}
}

// Pin is one connection from a section to an adjacent section.
// Direction is the direction the adjacent section is entered in.
type Pin struct {
	Link      int
	Direction int
}

// Unlinked is a Pin that doesn't connect anywhere.
var Unlinked = Pin{Link: NoLink, Direction: NoLink}

func (p Pin) Linked() bool { return p.Link >= 0 }

func (p Pin) String() string {
	if !p.Linked() {
		return "(none)"
	}
	return fmt.Sprintf("%d/%d", p.Link, p.Direction)
}

// Opposite returns the other direction (0 ↔ 1).
func Opposite(direction int) int {
	checkDirection(direction)
	return 1 - direction
}

func checkDirection(direction int) {
	if direction != 0 && direction != 1 {
		panic(fmt.Sprintf("invalid direction %d", direction))
	}
}
