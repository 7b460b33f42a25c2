package queue

import (
	"errors"
	"fmt"
)

var ErrInvalidRequest = errors.New("invalid request")

// ErrQueueEmpty is returned by CallNext and FirstWaiting when nobody is waiting.
var ErrQueueEmpty = errors.New("no waiting ticket")

func invalid(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, message)
}
