package ring

import "errors"

var (
	// ErrEmptyNodeID is returned when a node id is empty.
	ErrEmptyNodeID = errors.New("node id cannot be empty")
	// ErrInvalidBudget is returned for NaN budgets, and for negative budgets on add.
	ErrInvalidBudget = errors.New("invalid available resources")
	// ErrInvalidReplicas is returned when the vnode count does not fit in a uint16.
	ErrInvalidReplicas = errors.New("invalid replica count")
	// ErrHashCollision is returned when a virtual node position is already owned.
	ErrHashCollision = errors.New("virtual node hash collision")
)
