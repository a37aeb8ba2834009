package models

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("invalid user token")
	ErrForbidden        = errors.New("token does not own this session")
	ErrStorageFailure   = errors.New("storage failure")
	ErrExtractionFailed = errors.New("failed to extract frames")
	ErrEmptySource      = errors.New("could not read frames from video")
)
