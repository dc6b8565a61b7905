package backend

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	// Packages
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	transfer "github.com/mutablelogic/go-tablestore/pkg/transfer"
	transport "github.com/mutablelogic/go-tablestore/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	blob "gocloud.dev/blob"
)

func TestBlobBackendURL(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		backendURL string
		key        string
		want       string
		storage    string
	}{
		{"mem root", "mem://testbucket", "file.txt", "mem://testbucket/file.txt", "file.txt"},
		{"mem leading slash", "mem://testbucket", "/dir/file.txt", "mem://testbucket/dir/file.txt", "dir/file.txt"},
		{"mem prefix", "mem://testbucket/prefix", "file.txt", "mem://testbucket/prefix/file.txt", "prefix/file.txt"},
		{"mem nested prefix", "mem://testbucket/a/b/", "c/file.txt", "mem://testbucket/a/b/c/file.txt", "a/b/c/file.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			b, err := NewBlobBackend(ctx, tt.backendURL)
			require.NoError(t, err)
			defer b.Close()

			assert.Equal(tt.want, b.URL(tt.key))
			assert.Equal(tt.storage, b.storageKey(tt.key))
		})
	}
}

func TestNewFileBackend(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		backend string
		dir     string
		wantErr bool
	}{
		{"valid name and dir", "mybackend", tmpDir, false},
		{"name with hyphen", "my-backend", tmpDir, false},
		{"name with digits", "backend2", tmpDir, false},
		{"empty name", "", tmpDir, true},
		{"name starts with digit", "2backend", tmpDir, true},
		{"name starts with hyphen", "-backend", tmpDir, true},
		{"name with underscore", "my_backend", tmpDir, false},
		{"name with slash", "my/backend", tmpDir, true},
		{"relative dir", "mybackend", "relative/path", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			b, err := NewFileBackend(ctx, tt.backend, tt.dir)
			if tt.wantErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				if b != nil {
					b.Close()
				}
			}
		})
	}
}

func TestBlobUpload_Mem(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	b, err := NewBlobBackend(ctx, "mem://testbucket/prefix")
	require.NoError(err)
	defer b.Close()

	// Put parts out of order, and one part twice
	upload, err := b.Begin(ctx, "data.csv")
	require.NoError(err)
	parts := []struct {
		number int
		data   string
	}{
		{3, "three"},
		{1, "one,"},
		{2, "stale"},
		{2, "two,"},
	}
	handles := make(map[int]schema.PartHandle)
	for _, part := range parts {
		handle, err := upload.PutPart(ctx, schema.Part{Key: "data.csv", Number: part.number, Size: int64(len(part.data))}, strings.NewReader(part.data))
		require.NoError(err)
		assert.Equal(part.number, handle.Number)
		assert.Equal(int64(len(part.data)), handle.Size)
		handles[part.number] = handle
	}

	// Nothing is visible before commit
	_, err = b.Fetch(ctx, b.URL("data.csv"))
	assert.ErrorIs(err, tablestore.ErrNotFound)

	version, err := upload.Commit(ctx, []schema.PartHandle{handles[1], handles[2], handles[3]})
	require.NoError(err)
	assert.Equal("data.csv", version.Key)
	assert.Equal(int64(13), version.Size)
	assert.Equal(3, version.Parts)

	// Read it back
	r, err := b.Fetch(ctx, b.URL("data.csv"))
	require.NoError(err)
	data, err := io.ReadAll(r)
	r.Close()
	require.NoError(err)
	assert.Equal("one,two,three", string(data))

	// Staged parts are removed
	assert.Empty(listKeys(t, b.bucket, "prefix/data.csv"+partsSuffix))
}

func TestBlobUpload_Abort(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	b, err := NewBlobBackend(ctx, "mem://testbucket")
	require.NoError(err)
	defer b.Close()

	upload, err := b.Begin(ctx, "data.csv")
	require.NoError(err)
	_, err = upload.PutPart(ctx, schema.Part{Key: "data.csv", Number: 1, Size: 4}, strings.NewReader("data"))
	require.NoError(err)
	assert.Len(listKeys(t, b.bucket, "data.csv"+partsSuffix), 1)

	// Abort removes the staged parts, and can be repeated
	assert.NoError(upload.Abort(ctx))
	assert.NoError(upload.Abort(ctx))
	assert.Empty(listKeys(t, b.bucket, "data.csv"+partsSuffix))

	// Commit without staged parts fails
	_, err = upload.Commit(ctx, []schema.PartHandle{{Number: 1, Size: 4}})
	assert.ErrorIs(err, tablestore.ErrPermanentRequest)

	// Commit without parts is not supported
	_, err = upload.Commit(ctx, nil)
	assert.ErrorIs(err, tablestore.ErrUnsupportedEmptyChunkedUpload)

	// An empty key
	_, err = b.Begin(ctx, "/")
	assert.Error(err)
}

func TestBlobPutObject_File(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewFileBackend(ctx, "store", dir)
	require.NoError(err)
	defer b.Close()

	version, err := b.PutObject(ctx, "out/empty.csv", bytes.NewReader(nil), 0)
	require.NoError(err)
	assert.Equal(int64(0), version.Size)
	_, err = os.Stat(filepath.Join(dir, "out", "empty.csv"))
	assert.NoError(err)

	version, err = b.PutObject(ctx, "out/data.csv", strings.NewReader("a,b\n"), 4)
	require.NoError(err)
	assert.Equal(int64(4), version.Size)
	data, err := os.ReadFile(filepath.Join(dir, "out", "data.csv"))
	require.NoError(err)
	assert.Equal("a,b\n", string(data))

	// Only objects of this backend can be fetched
	assert.Equal("file://store"+dir+"/out/data.csv", b.URL("out/data.csv"))
	_, err = b.Fetch(ctx, "file://other"+dir+"/out/data.csv")
	assert.ErrorIs(err, tablestore.ErrPermanentRequest)
	_, err = b.Fetch(ctx, b.URL("out/missing.csv"))
	assert.ErrorIs(err, tablestore.ErrNotFound)
}

func TestBlobTransfer_Mem(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewBlobBackend(ctx, "mem://exports")
	require.NoError(err)
	defer b.Close()

	// Upload two slices and a manifest
	slices := []string{strings.Repeat("1,one\n", 100), strings.Repeat("2,two\n", 50)}
	paths := make([]string, len(slices))
	for i, slice := range slices {
		paths[i] = filepath.Join(dir, "slice"+schema.PartID(i))
		require.NoError(os.WriteFile(paths[i], []byte(slice), 0o600))
	}
	uploader, err := transfer.NewUploader(b, transfer.WithPartSize(64))
	require.NoError(err)
	manifest, err := uploader.UploadSliced(ctx, "table/", paths...)
	require.NoError(err)
	assert.Len(manifest.Entries, 2)

	// Reassemble through a router
	router := transport.NewRouter(transport.NewFetcher(nil))
	router.Register("mem", b)
	read, err := transfer.ReadManifest(ctx, router, b.URL("table/"+schema.ManifestName))
	require.NoError(err)
	reassembler, err := transfer.NewReassembler(router)
	require.NoError(err)
	dest := filepath.Join(dir, "table.csv")
	require.NoError(reassembler.Reassemble(ctx, read, schema.ReassemblyPlan{Path: dest, Header: []string{"id", "name"}}))

	data, err := os.ReadFile(dest)
	require.NoError(err)
	assert.Equal("\"id\",\"name\"\n"+slices[0]+slices[1], string(data))
	assert.Empty(listKeys(t, b.bucket, "table/slice00000"+partsSuffix))
}

func listKeys(t *testing.T, bucket *blob.Bucket, prefix string) []string {
	t.Helper()
	var keys []string
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		keys = append(keys, obj.Key)
	}
	return keys
}
