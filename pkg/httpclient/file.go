package httpclient

import (
	"context"
	"net/url"
	"strconv"

	// Packages
	client "github.com/mutablelogic/go-client"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// PrepareFileUpload registers a file with the storage service and returns
// it with the parameters for uploading its content
func (c *Client) PrepareFileUpload(ctx context.Context, req schema.FilePrepareRequest) (*schema.File, error) {
	if req.Name == "" {
		return nil, httpresponse.ErrBadRequest.With("file name is required")
	}

	// Make request
	payload, err := client.NewJSONRequest(req)
	if err != nil {
		return nil, err
	}

	// Perform request
	var response schema.File
	if err := c.DoWithContext(ctx, payload, &response, client.OptPath("files", "prepare")); err != nil {
		return nil, err
	}

	// Return the response
	return &response, nil
}

// GetFile returns a file with upload parameters and temporary credentials
func (c *Client) GetFile(ctx context.Context, id uint64) (*schema.File, error) {
	query := url.Values{"federationToken": {"1"}}

	// Perform request
	var response schema.File
	if err := c.DoWithContext(ctx, client.NewRequest(), &response,
		client.OptPath("files", strconv.FormatUint(id, 10)),
		client.OptQuery(query),
	); err != nil {
		return nil, err
	}

	// Return the response
	return &response, nil
}
