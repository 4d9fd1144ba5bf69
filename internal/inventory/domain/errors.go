package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is frequently benign: an expiry sweep racing a confirm
	// produces it, so callers on that path log and absorb it.
	ErrNotFound = errors.New("record not found")

	// ErrCapacityExceeded rejects a reservation or assignment that would
	// overcommit an item, lot or warehouse. Raised before any mutation.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidQuantity rejects non-positive or malformed quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrAlreadyLocked rejects dissociating or archiving a lot that a
	// delivery has confirmed against.
	ErrAlreadyLocked = errors.New("lot already locked")
)

// PartialCascadeError reports a cascade in which some line items applied and
// others failed. The transactional stores roll the whole cascade back before
// returning it, but the split is preserved for reconciliation logs either way.
type PartialCascadeError struct {
	Op        string
	Succeeded []string
	Failed    map[string]error
}

func (e *PartialCascadeError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for id, err := range e.Failed {
		failed = append(failed, fmt.Sprintf("%s: %v", id, err))
	}
	return fmt.Sprintf("%s: partial cascade failure (%d ok, %d failed: %s)",
		e.Op, len(e.Succeeded), len(e.Failed), strings.Join(failed, "; "))
}

func (e *PartialCascadeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
