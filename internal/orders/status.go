package orders

import (
	"slices"
	"strings"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// sourcesOf lists, sorted, the statuses allowed to transition to the given one.
func sourcesOf(to Status) []string {
	var out []string
	for from, next := range validNext {
		if next[to] {
			out = append(out, string(from))
		}
	}
	slices.Sort(out)
	return out
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

func (s Status) lower() string { return strings.ToLower(string(s)) }
