package internalerr

import "errors"

// Sentinel errors for the ingestion and query paths
var (
	ErrDownloadFailed   = errors.New("download failed")
	ErrExtractionFailed = errors.New("extraction failed")
	ErrParseFailed      = errors.New("parse failed")
	ErrValidationFailed = errors.New("validation failed")
	ErrQueryRejected    = errors.New("query rejected")
)
