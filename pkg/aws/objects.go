package aws

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	// Packages
	s3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Maximum number of parts in a multipart upload
	MaxParts = 10000
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// CreateMultipartUpload starts a multipart upload and returns the upload id
func (client *Client) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	result, err := client.S3().CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:             types.StringPtr(bucket),
		Key:                types.StringPtr(key),
		ContentDisposition: types.StringPtr(fmt.Sprintf("inline; filename=%q", filepath.Base(key))),
	})
	if err != nil {
		return "", Err(err)
	}
	return types.PtrString(result.UploadId), nil
}

// UploadPart uploads size bytes from r as one part of a multipart upload and
// returns the entity tag of the part
func (client *Client) UploadPart(ctx context.Context, bucket, key, uploadId string, number int32, r io.ReadSeeker, size int64) (string, error) {
	result, err := client.S3().UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        types.StringPtr(bucket),
		Key:           types.StringPtr(key),
		UploadId:      types.StringPtr(uploadId),
		PartNumber:    types.Int32Ptr(number),
		Body:          r,
		ContentLength: types.Int64Ptr(size),
	})
	if err != nil {
		return "", Err(err)
	}
	return types.PtrString(result.ETag), nil
}

// CompleteMultipartUpload commits a multipart upload from parts, which are
// expected in ascending part number order
func (client *Client) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadId string, parts []s3types.CompletedPart) (*s3.CompleteMultipartUploadOutput, error) {
	result, err := client.S3().CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   types.StringPtr(bucket),
		Key:      types.StringPtr(key),
		UploadId: types.StringPtr(uploadId),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return nil, Err(err)
	}
	return result, nil
}

// AbortMultipartUpload discards a multipart upload and its parts
func (client *Client) AbortMultipartUpload(ctx context.Context, bucket, key, uploadId string) error {
	_, err := client.S3().AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   types.StringPtr(bucket),
		Key:      types.StringPtr(key),
		UploadId: types.StringPtr(uploadId),
	})
	return Err(err)
}

// PutObject creates or replaces an object in a single request
func (client *Client) PutObject(ctx context.Context, bucket, key string, r io.ReadSeeker, size int64) (*s3.PutObjectOutput, error) {
	result, err := client.S3().PutObject(ctx, &s3.PutObjectInput{
		Bucket:        types.StringPtr(bucket),
		Key:           types.StringPtr(key),
		Body:          r,
		ContentLength: types.Int64Ptr(size),
	})
	if err != nil {
		return nil, Err(err)
	}
	return result, nil
}

// GetObject returns the content of an object. The caller must close the
// reader.
func (client *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	result, err := client.S3().GetObject(ctx, &s3.GetObjectInput{
		Bucket: types.StringPtr(bucket),
		Key:    types.StringPtr(key),
	})
	if err != nil {
		return nil, Err(err)
	}
	return result.Body, nil
}
