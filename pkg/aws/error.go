package aws

import (
	"context"
	"errors"

	// Packages
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	tablestore "github.com/mutablelogic/go-tablestore"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Err classifies an SDK error: missing objects are not found, failures to
// send a request or 5xx responses are transient, and other responses are
// permanent. Context errors are returned unchanged.
func Err(err error) error {
	if err == nil {
		return nil
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// Missing objects
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return tablestore.ErrNotFound.Withf("%w", err)
	}

	// Response errors
	var awserr *awshttp.ResponseError
	if errors.As(err, &awserr) {
		if code := awserr.HTTPStatusCode(); code >= 300 {
			return tablestore.StatusErr(code, awserr.Error())
		}
		return tablestore.ErrTransientTransport.Withf("%w", err)
	}

	// Requests which were not sent
	var senderr *smithyhttp.RequestSendError
	if errors.As(err, &senderr) {
		return tablestore.ErrTransientTransport.Withf("%w", err)
	}

	return tablestore.ErrPermanentRequest.Withf("%w", err)
}
