// Package transport provides the HTTP execution layer shared by every network
// call of the transfer subsystem.
//
// Transport is an http.RoundTripper which retries failed requests according
// to a RetryDecision, waiting between attempts for the duration returned by a
// BackoffDelay:
//
//	client := transport.NewClient(
//	    transport.WithMaxRetries(5),
//	    transport.WithMaxDelay(30*time.Second),
//	)
//
// The default decision never retries 501, retries 503 only when maintenance
// retry is enabled, retries 409 only for configured conflict codes and retries
// every other status above 499 and every transport error.
package transport
