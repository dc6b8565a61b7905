package transfer

import (
	// Packages
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Plan splits size bytes into parts of partSize bytes, the last part holding
// the remainder. Parts are numbered from 1 and tile the input with no gaps or
// overlaps. A zero size yields no parts: such a source must be uploaded with
// Backend.PutObject instead.
func Plan(key string, size, partSize int64) []schema.Part {
	if size <= 0 {
		return nil
	}
	if partSize <= 0 {
		partSize = DefaultPartSize
	}

	parts := make([]schema.Part, 0, (size+partSize-1)/partSize)
	for offset := int64(0); offset < size; offset += partSize {
		parts = append(parts, schema.Part{
			Key:    key,
			Number: len(parts) + 1,
			Offset: offset,
			Size:   min(partSize, size-offset),
		})
	}
	return parts
}
