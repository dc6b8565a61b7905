package transfer_test

import (
	"context"
	"testing"

	// Packages
	tablestore "github.com/mutablelogic/go-tablestore"
	transfer "github.com/mutablelogic/go-tablestore/pkg/transfer"
	assert "github.com/stretchr/testify/assert"
)

func Test_Manifest_001(t *testing.T) {
	assert := assert.New(t)
	fetcher := mapFetcher{
		"https://host/ok":      []byte(`{"entries":[{"url":"https://host/1","mandatory":true},{"url":"https://host/2"}],"other":1}`),
		"https://host/empty":   []byte(`{"entries":[]}`),
		"https://host/invalid": []byte(`{"entries":`),
		"https://host/no-url":  []byte(`{"entries":[{"url":"https://host/1"},{"mandatory":true}]}`),
		"https://host/wrong":   []byte(`{"entries":{"url":"x"}}`),
	}

	t.Run("Ok", func(t *testing.T) {
		manifest, err := transfer.ReadManifest(context.Background(), fetcher, "https://host/ok")
		if assert.NoError(err) && assert.Len(manifest.Entries, 2) {
			assert.Equal("https://host/1", manifest.Entries[0].URL)
			assert.True(manifest.Entries[0].Mandatory)
			assert.Equal("https://host/2", manifest.Entries[1].URL)
			assert.False(manifest.Entries[1].Mandatory)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		manifest, err := transfer.ReadManifest(context.Background(), fetcher, "https://host/empty")
		if assert.NoError(err) {
			assert.Empty(manifest.Entries)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := transfer.ReadManifest(context.Background(), fetcher, "https://host/missing")
		assert.ErrorIs(err, tablestore.ErrManifestMissing)
		assert.NotErrorIs(err, tablestore.ErrTransientTransport)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := transfer.ReadManifest(context.Background(), fetcher, "https://host/invalid")
		assert.ErrorIs(err, tablestore.ErrPermanentRequest)
		_, err = transfer.ReadManifest(context.Background(), fetcher, "https://host/wrong")
		assert.ErrorIs(err, tablestore.ErrPermanentRequest)
	})

	t.Run("NoURL", func(t *testing.T) {
		_, err := transfer.ReadManifest(context.Background(), fetcher, "https://host/no-url")
		assert.ErrorIs(err, tablestore.ErrPartUnavailable)
	})
}
