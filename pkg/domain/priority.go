package domain

import dErrors "docanchor/pkg/domain-errors"

// Priority orders queued verification jobs. Higher rank is dispatched first;
// ties are broken by submission order.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var priorityRanks = map[Priority]int{
	PriorityUrgent: 3,
	PriorityHigh:   2,
	PriorityNormal: 1,
	PriorityLow:    0,
}

// Rank returns the numeric dispatch rank. Unknown priorities rank lowest.
func (p Priority) Rank() int {
	return priorityRanks[p]
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// ParsePriority validates a caller-supplied priority, defaulting empty input
// to normal.
func ParsePriority(raw string) (Priority, error) {
	if raw == "" {
		return PriorityNormal, nil
	}
	p := Priority(raw)
	if !p.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown priority: "+raw)
	}
	return p, nil
}
