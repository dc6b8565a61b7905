package schema

////////////////////////////////////////////////////////////////////////////////
// CONSTANTS

const (
	SchemaName = "tablestore"

	// PartIDWidth is the number of digits in a part identifier. S3 allows up
	// to 10000 parts per object, so five digits keep lexical and numeric
	// ordering in agreement.
	PartIDWidth = 5

	// ManifestName is the object name of the manifest within a sliced file prefix
	ManifestName = "manifest"
)
