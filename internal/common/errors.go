package common

import "errors"

// Error kinds shared by the indexer and blacklist plugins.
var (
	// ErrConfig marks a malformed configuration option. Fatal at init.
	ErrConfig = errors.New("config error")

	// ErrConnection marks a document-store transport failure.
	ErrConnection = errors.New("connection error")

	// ErrResponseCode marks a non-2xx response from the document store.
	ErrResponseCode = errors.New("response code error")

	// ErrBulkFail marks a bulk operation with a non-zero per-item failure count.
	ErrBulkFail = errors.New("bulk operation had failed items")

	// ErrMissingDependency marks a required upstream plugin that is absent. Fatal.
	ErrMissingDependency = errors.New("missing dependency")
)
