package schema

import (
	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Manifest lists the parts of a sliced file. Parts are assembled in the
// order of Entries.
type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

type ManifestEntry struct {
	URL       string `json:"url"`
	Mandatory bool   `json:"mandatory,omitempty"`
}

// ReassemblyPlan describes the destination of a reassembled file
type ReassemblyPlan struct {
	Path     string   `json:"path"`             // destination file
	Header   []string `json:"header,omitempty"` // optional first line, quoted
	Compress bool     `json:"compress,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (m Manifest) String() string {
	return types.Stringify(m)
}

func (p ReassemblyPlan) String() string {
	return types.Stringify(p)
}
