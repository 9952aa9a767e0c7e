package domain

import (
	"encoding/json"
	"fmt"
)

// Direction is the side of a binary-outcome market event.
// DirectionNone is only valid on a Consensus (no winner); DirectionSkip is
// only valid on a Vote (structural abstention).
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
	DirectionSkip
)

const (
	directionStringNone = "none"
	directionStringUp   = "up"
	directionStringDown = "down"
	directionStringSkip = "skip"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return directionStringUp
	case DirectionDown:
		return directionStringDown
	case DirectionSkip:
		return directionStringSkip
	default:
		return directionStringNone
	}
}

// Opposite returns the opposing directional side. None and Skip have no
// opposite and are returned unchanged.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return d
	}
}

// IsDirectional reports whether the direction commits to a side.
func (d Direction) IsDirectional() bool {
	return d == DirectionUp || d == DirectionDown
}

// ParseDirection converts a string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case directionStringUp:
		return DirectionUp, nil
	case directionStringDown:
		return DirectionDown, nil
	case directionStringSkip:
		return DirectionSkip, nil
	case directionStringNone:
		return DirectionNone, nil
	}
	return DirectionNone, fmt.Errorf("unknown direction: %q", s)
}

// MarshalJSON serialises the direction as a readable string so WAL records
// stay inspectable.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON parses the string form written by MarshalJSON.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
