package circuit

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// TrainRouted is a train seen through one of its two route directions.
// Dir is 0 for the train's forward route and 1 for its backward route.
type TrainRouted struct {
	Number int `json:"number"`
	Dir    int `json:"dir"`
}

func (t TrainRouted) String() string {
	return fmt.Sprintf("%d[%d]", t.Number, t.Dir)
}

// Other returns the same train routed the other way.
func (t TrainRouted) Other() TrainRouted {
	return TrainRouted{Number: t.Number, Dir: 1 - t.Dir}
}

// Queue is a FIFO of routed trains. The zero value is an empty queue.
type Queue struct {
	items []TrainRouted
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Enqueue(t TrainRouted) { q.items = append(q.items, t) }

func (q *Queue) Dequeue() (TrainRouted, bool) {
	if len(q.items) == 0 {
		return TrainRouted{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *Queue) Peek() (TrainRouted, bool) {
	if len(q.items) == 0 {
		return TrainRouted{}, false
	}
	return q.items[0], true
}

// Contains reports whether t is queued in exactly this route direction.
func (q *Queue) Contains(t TrainRouted) bool { return slices.Contains(q.items, t) }

// ContainsTrain reports whether the train is queued in either route direction.
func (q *Queue) ContainsTrain(number int) bool {
	return slices.ContainsFunc(q.items, func(t TrainRouted) bool { return t.Number == number })
}

// RemoveTrain drops every entry of the train (both route directions), keeping the order of the rest.
func (q *Queue) RemoveTrain(number int) bool {
	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(t TrainRouted) bool { return t.Number == number })
	return len(q.items) < before
}

func (q *Queue) Clear() { q.items = nil }

// Items returns a copy of the queued trains, head first.
func (q *Queue) Items() []TrainRouted {
	return slices.Clone(q.items)
}
