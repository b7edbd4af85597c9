package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNicknameTaken indicates the nickname is already in use within the
	// group. The caller may retry with a different nickname.
	ErrNicknameTaken = errors.New("nickname already taken in this group")

	// ErrGroupConfirmed indicates an attempt to re-interpret a group whose
	// interpretation has already been confirmed.
	ErrGroupConfirmed = errors.New("group interpretation already confirmed")
)
