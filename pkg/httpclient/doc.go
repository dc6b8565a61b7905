// Package httpclient provides a typed Go client for the control plane of
// the storage service, which prepares file uploads and issues upload
// parameters with temporary credentials.
//
// Create a client with:
//
//	client, err := httpclient.New("https://api.example.com/v1")
//	if err != nil {
//	   panic(err)
//	}
//
// Then prepare a file and upload to the returned parameters:
//
//	file, err := client.PrepareFileUpload(ctx, schema.FilePrepareRequest{
//	   Name: "export.csv",
//	})
//	store, err := backend.NewFromUploadParams(ctx, file)
//
// Requests are made through a retrying transport. Set TABLESTORE_HTTP1 to
// disable HTTP/2.
package httpclient
