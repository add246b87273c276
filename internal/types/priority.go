package types

import (
	"fmt"
	"strings"
)

// PriorityLevel selects the compute unit price attached to swaps.
type PriorityLevel string

const (
	PriorityNone    PriorityLevel = "none"
	PriorityLow     PriorityLevel = "low"
	PriorityMedium  PriorityLevel = "medium"
	PriorityHigh    PriorityLevel = "high"
	PriorityExtreme PriorityLevel = "extreme"
)

// цена за compute unit в micro-lamports
var priorityFees = map[PriorityLevel]uint64{
	PriorityNone:    0,
	PriorityLow:     1_000,
	PriorityMedium:  5_000,
	PriorityHigh:    10_000,
	PriorityExtreme: 50_000,
}

// ParsePriorityLevel accepts a level name, case-insensitively. Empty means none.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	level := PriorityLevel(strings.ToLower(strings.TrimSpace(s)))
	if level == "" {
		return PriorityNone, nil
	}
	if _, ok := priorityFees[level]; !ok {
		return "", fmt.Errorf("unknown priority level: %s", s)
	}
	return level, nil
}

// ComputeUnitPrice returns the price per compute unit in micro-lamports.
func (l PriorityLevel) ComputeUnitPrice() uint64 {
	return priorityFees[l]
}
