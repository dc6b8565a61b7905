// Package transfer moves large objects between local files and blob storage.
//
// An Uploader splits each local file into fixed-size parts, uploads the parts
// of all files in parallel with a bounded number of workers, re-issues failed
// parts with the same part number and commits every file whose parts were
// all accepted:
//
//	uploader, err := transfer.NewUploader(backend, transfer.WithPartSize(8<<20))
//	outcomes, err := uploader.Upload(ctx, schema.ObjectRef{Key: "in/data.csv", Path: "data.csv"})
//
// A Reassembler downloads the parts listed in a manifest and concatenates
// them, in manifest order, into one local file:
//
//	manifest, err := transfer.ReadManifest(ctx, fetcher, url)
//	err = reassembler.Reassemble(ctx, manifest, schema.ReassemblyPlan{Path: "out.csv"})
package transfer
