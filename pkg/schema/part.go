package schema

import (
	"fmt"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Part is a contiguous byte range of a source, uploaded independently.
// Numbers start at 1 and a retried part keeps its number.
type Part struct {
	Key    string `json:"key"`
	Number int    `json:"number"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// PartHandle is the receipt a backend returns for an accepted part
type PartHandle struct {
	Number int    `json:"number"`
	ETag   string `json:"etag"`
	Size   int64  `json:"size"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ID returns the fixed-width part identifier
func (p Part) ID() string {
	return PartID(p.Number)
}

// End returns the offset one past the last byte of the part
func (p Part) End() int64 {
	return p.Offset + p.Size
}

// PartID formats a part number as a zero-padded identifier
func PartID(number int) string {
	return fmt.Sprintf("%0*d", PartIDWidth, number)
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (p Part) String() string {
	return types.Stringify(p)
}

func (h PartHandle) String() string {
	return types.Stringify(h)
}
