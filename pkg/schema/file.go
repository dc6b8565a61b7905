package schema

import (
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// CONSTANTS

const (
	ProviderAWS   = "aws"
	ProviderAzure = "azure"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// FilePrepareRequest asks the storage service for upload credentials
type FilePrepareRequest struct {
	Name            string   `json:"name"`
	SizeBytes       int64    `json:"sizeBytes,omitempty"`
	IsPublic        bool     `json:"isPublic,omitempty"`
	IsSliced        bool     `json:"isSliced,omitempty"`
	IsEncrypted     bool     `json:"isEncrypted,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	FederationToken bool     `json:"federationToken,omitempty"`
}

// File is a file resource of the storage service
type File struct {
	ID                uint64             `json:"id"`
	Name              string             `json:"name"`
	SizeBytes         int64              `json:"sizeBytes"`
	IsSliced          bool               `json:"isSliced"`
	Provider          string             `json:"provider"`
	Region            string             `json:"region,omitempty"`
	URL               string             `json:"url,omitempty"` // object URL, or manifest URL when sliced
	Created           time.Time          `json:"created,omitzero"`
	UploadParams      *UploadParams      `json:"uploadParams,omitempty"`
	BlockUploadParams *BlockUploadParams `json:"absUploadParams,omitempty"`
}

// UploadParams are the S3 upload parameters for a prepared file
type UploadParams struct {
	Bucket      string       `json:"bucket"`
	Key         string       `json:"key"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

// Credentials are temporary S3 credentials issued with a prepared file
type Credentials struct {
	AccessKeyID     string    `json:"AccessKeyId"`
	SecretAccessKey string    `json:"SecretAccessKey"`
	SessionToken    string    `json:"SessionToken"`
	Expiration      time.Time `json:"Expiration,omitzero"`
}

// BlockUploadParams are the block blob upload parameters for a prepared file.
// ContainerURL carries the shared access signature as its query string.
type BlockUploadParams struct {
	BlobName     string `json:"blobName"`
	ContainerURL string `json:"containerUrl"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// UploadKey returns the key a prepared file is uploaded to, or an empty
// string when the file has no upload parameters
func (f File) UploadKey() string {
	switch {
	case f.UploadParams != nil:
		return f.UploadParams.Key
	case f.BlockUploadParams != nil:
		return f.BlockUploadParams.BlobName
	default:
		return ""
	}
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r FilePrepareRequest) String() string {
	return types.Stringify(r)
}

func (f File) String() string {
	return types.Stringify(f)
}
