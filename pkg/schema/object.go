package schema

import (
	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// ObjectRef names a local source file and the key it is uploaded to
type ObjectRef struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

// Version is a committed object
type Version struct {
	Key       string `json:"key"`
	ETag      string `json:"etag,omitempty"`
	VersionID string `json:"version,omitempty"`
	Size      int64  `json:"size"`
	Parts     int    `json:"parts,omitempty"`
}

// TransferOutcome is the terminal result of uploading one object. Exactly one
// of Version and Err is set.
type TransferOutcome struct {
	Key          string   `json:"key"`
	Version      *Version `json:"version,omitempty"`
	Err          error    `json:"-"`
	MissingParts []int    `json:"missing,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Committed returns true if the object was committed
func (o *TransferOutcome) Committed() bool {
	return o != nil && o.Version != nil && o.Err == nil
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r ObjectRef) String() string {
	return types.Stringify(r)
}

func (v Version) String() string {
	return types.Stringify(v)
}

func (o TransferOutcome) String() string {
	return types.Stringify(o)
}
