package apperrors

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrValidation              = errors.New("validation failed")
	ErrUnsupportedDatabaseType = errors.New("unsupported database type")
	ErrInvalidConnectionURL    = errors.New("invalid connection URL")
	ErrConnectionFailed        = errors.New("connection test failed")
	ErrMetadataNotCached       = errors.New("metadata not cached")
	ErrInvalidToken            = errors.New("invalid or expired token")
)
