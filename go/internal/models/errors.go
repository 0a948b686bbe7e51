package models

import "errors"

var (
	// ErrExamNotFound is returned by exam lookups that match no record
	ErrExamNotFound = errors.New("exam not found")
	// ErrUserNotFound is returned by user lookups that match no record
	ErrUserNotFound = errors.New("user not found")
)
