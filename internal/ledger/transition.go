package ledger

import (
	"errors"
	"fmt"

	"github.com/matthewbaird/rentledger/internal/types"
)

// ErrInvalidTransition is returned when a lease status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// leaseTransitions lists the statuses each lease status may move to.
var leaseTransitions = map[string][]string{
	string(types.LeaseActive):     {string(types.LeaseEnded), string(types.LeaseTerminated)},
	string(types.LeaseEnded):      {},
	string(types.LeaseTerminated): {},
}

// ValidateTransition checks whether transitioning from current to target is
// allowed according to the given transition map. It returns nil if the
// transition is valid, or an error wrapping ErrInvalidTransition otherwise.
func ValidateTransition(transitions map[string][]string, current, target string) error {
	allowed, ok := transitions[current]
	if !ok {
		return fmt.Errorf("%w: unknown current state %q", ErrInvalidTransition, current)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return fmt.Errorf("%w: from %q to %q", ErrInvalidTransition, current, target)
}
