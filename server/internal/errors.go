package internal

import "errors"

var (
	ErrInvalidURL           = errors.New("invalid or unsupported url")
	ErrUnrecognizedURLShape = errors.New("could not extract video id from url")
	ErrExtractionFailed     = errors.New("metadata extraction failed")
	ErrFormatUnavailable    = errors.New("selected quality not available")
	ErrDownloadTransport    = errors.New("download failed")
	ErrPersistence          = errors.New("persistence failure")
	ErrNotFound             = errors.New("download not found")
)
