// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// booking engine and the handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup by key matches no row.  Lookups
// scoped by owner return it as well when the row exists but belongs to
// someone else.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a delete or update cannot be performed
// because of dependent records, e.g. removing a kart that still has
// bookings.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned by user creation when the email is taken.
var ErrEmailExists = errors.New("email already exists")
