package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	// Packages
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Manifests larger than this are rejected
const maxManifestSize = 16 * 1024 * 1024

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ReadManifest fetches and parses the manifest of a sliced file. A manifest
// which does not exist returns ErrManifestMissing, since it means the upload
// of the sliced file did not complete.
func ReadManifest(ctx context.Context, fetcher tablestore.Fetcher, url string) (*schema.Manifest, error) {
	r, err := fetcher.Fetch(ctx, url)
	if errors.Is(err, tablestore.ErrNotFound) {
		return nil, tablestore.ErrManifestMissing.With(url)
	} else if err != nil {
		return nil, err
	}
	defer r.Close()

	// Decode the manifest
	var manifest schema.Manifest
	if data, err := io.ReadAll(io.LimitReader(r, maxManifestSize+1)); err != nil {
		return nil, tablestore.ErrTransientTransport.Withf("%s: %w", url, err)
	} else if len(data) > maxManifestSize {
		return nil, tablestore.ErrPermanentRequest.Withf("%s: manifest exceeds %d bytes", url, maxManifestSize)
	} else if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, tablestore.ErrPermanentRequest.Withf("%s: %w", url, err)
	}

	// Every entry needs a location
	for i, entry := range manifest.Entries {
		if entry.URL == "" {
			return nil, tablestore.ErrPartUnavailable.Withf("%s: entry %d has no url", url, i)
		}
	}

	return &manifest, nil
}
