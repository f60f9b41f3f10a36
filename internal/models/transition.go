package models

import (
	"fmt"

	"roommate/server/internal/apperr"
)

var ErrInvalidTransition = apperr.New(apperr.InvalidState, "status transition not allowed")

// transitions maps a status to the set of statuses it may move to
type transitions[S ~string] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t transitions[S]) check(entity string, id uint, from, to S) error {
	if !t.allows(from, to) {
		return fmt.Errorf("%w: %s %d cannot move from %s to %s", ErrInvalidTransition, entity, id, from, to)
	}
	return nil
}
