// Package store defines the persistence interfaces for the access
// controller. Implementations live in the sqlite and memory subpackages.
package store

import "errors"

var (
	// ErrNotFound is returned when a user, card, or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a user whose student id
	// is already taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyBound is returned when binding a card that is already
	// bound to any user, including the same one.
	ErrAlreadyBound = errors.New("card already bound")
)
