package queue

import (
	"fmt"

	"antrian/antrian-service/internal/models"
	"antrian/antrian-service/internal/store"
)

const (
	ActionPromote = "promote"
	ActionHandle  = "handle"
	ActionCancel  = "cancel"
)

var transitionMap = map[string][]string{
	ActionPromote: {models.StatusWaiting},
	ActionHandle:  {models.StatusActive},
	ActionCancel:  {models.StatusWaiting, models.StatusActive},
}

var transitionTarget = map[string]string{
	ActionPromote: models.StatusActive,
	ActionHandle:  models.StatusDone,
	ActionCancel:  models.StatusCancelled,
}

func validTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// isTerminal reports whether no action leaves status.
func isTerminal(status string) bool {
	for action := range transitionMap {
		if validTransition(action, status) {
			return false
		}
	}
	return true
}

// rejectTransition explains why action cannot run from status.
func rejectTransition(action, status string) error {
	if isTerminal(status) {
		return fmt.Errorf("%w: ticket is already %s", store.ErrInvalidTransition, status)
	}
	return fmt.Errorf("%w: cannot %s a ticket in status %s", store.ErrInvalidTransition, action, status)
}
