// Package position allocates fractional order keys for sibling lists.
//
// Keys are float64 values whose relative order matches the order of the
// siblings. A new key is derived from the neighbours at the insertion slot,
// so reordering never renumbers existing siblings. Repeated bisection of the
// same gap shrinks toward float64 precision; that degradation is accepted
// and no renumbering pass exists.
package position

import (
	"math"
	"time"
)

const (
	// Gap is the distance kept from a single neighbour at either end.
	Gap = 1000.0
	// Default is the key of the first child dropped inside an empty parent.
	Default = 1000.0
	// Epsilon is the offset applied when bisection collides with a neighbour.
	Epsilon = 0.001
)

// Key returns the value of an optional key; nil sorts as 0.
func Key(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Baseline is the key used when a list has no neighbours at all: wall-clock
// seconds shifted down by Gap.
func Baseline(now time.Time) float64 {
	return float64(now.UnixMilli())/1000 - Gap
}

// Between returns a key that sorts after prev and before next. Either
// neighbour may be nil.
func Between(prev, next *float64, now time.Time) float64 {
	switch {
	case prev == nil && next == nil:
		return Baseline(now)
	case prev == nil:
		return *next - Gap
	case next == nil:
		return *prev + Gap
	}

	key := (*prev + *next) / 2
	if key != *prev && key != *next {
		return key
	}

	// The gap is exhausted. Nudge past prev, staying as close to next as
	// float64 allows when Epsilon would overtake it. Adjacent neighbours
	// leave no room, so the result then sorts just after next; it never
	// equals either neighbour.
	key = *prev + Epsilon
	if *prev < *next && key >= *next {
		key = math.Nextafter(*prev, *next)
	}
	if key == *prev {
		key = math.Nextafter(*prev, math.Inf(1))
	}
	if key == *next {
		key = math.Nextafter(*next, math.Inf(1))
	}
	return key
}

// ForSlot returns the key for an item inserted at index into siblings, where
// siblings are the keys of the list without the inserted item. Nil sibling
// keys count as 0.
func ForSlot(siblings []*float64, index int, now time.Time) float64 {
	index = max(0, min(index, len(siblings)))
	var prev, next *float64
	if index > 0 {
		v := Key(siblings[index-1])
		prev = &v
	}
	if index < len(siblings) {
		v := Key(siblings[index])
		next = &v
	}
	return Between(prev, next, now)
}

// Append returns the key for a new last sibling.
func Append(siblings []*float64, now time.Time) float64 {
	return ForSlot(siblings, len(siblings), now)
}

// Inside returns the key for a node dropped onto a parent, becoming its first
// child: half the current first child's key, or Default for an empty parent.
// A non-positive first key has no smaller half, so Gap is subtracted instead.
func Inside(children []*float64) float64 {
	if len(children) == 0 {
		return Default
	}
	first := Key(children[0])
	if half := first / 2; half < first {
		return half
	}
	return first - Gap
}
