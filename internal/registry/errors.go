package registry

import "fmt"

// ErrNotFound is returned when an id does not name a known session.
type ErrNotFound struct {
	ID int64
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("registry: session %d not found", e.ID)
}
