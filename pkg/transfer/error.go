package transfer

import (
	"fmt"
	"strings"

	// Packages
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Error reports the objects of an upload which were not committed. It
// matches tablestore.ErrRetriesExhausted, and tablestore.ErrPartialTransfer
// when other objects of the same upload were committed.
type Error struct {
	Failed    []*schema.TransferOutcome // sorted by key
	Committed int
}

var _ error = (*Error)(nil)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (e *Error) Error() string {
	var b strings.Builder
	if e.Partial() {
		b.WriteString(tablestore.ErrPartialTransfer.Error())
	} else {
		b.WriteString(tablestore.ErrRetriesExhausted.Error())
	}
	fmt.Fprintf(&b, ": %d of %d objects failed", len(e.Failed), len(e.Failed)+e.Committed)
	for _, outcome := range e.Failed {
		fmt.Fprintf(&b, "; %s", outcome.Key)
		if len(outcome.MissingParts) > 0 {
			ids := make([]string, len(outcome.MissingParts))
			for i, n := range outcome.MissingParts {
				ids[i] = schema.PartID(n)
			}
			fmt.Fprintf(&b, " (parts %s)", strings.Join(ids, ","))
		}
		if outcome.Err != nil {
			fmt.Fprintf(&b, ": %v", outcome.Err)
		}
	}
	return b.String()
}

// Partial returns true when some objects were committed
func (e *Error) Partial() bool {
	return e.Committed > 0
}

func (e *Error) Is(target error) bool {
	switch target {
	case tablestore.ErrRetriesExhausted:
		return true
	case tablestore.ErrPartialTransfer:
		return e.Partial()
	default:
		return false
	}
}

// Unwrap returns the error of each failed object
func (e *Error) Unwrap() []error {
	result := make([]error, 0, len(e.Failed))
	for _, outcome := range e.Failed {
		if outcome.Err != nil {
			result = append(result, outcome.Err)
		}
	}
	return result
}
