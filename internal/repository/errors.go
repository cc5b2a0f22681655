// Package repository implements the data access layer over MySQL. Sentinel
// errors defined here let handlers distinguish failure scenarios without
// inspecting driver errors: ErrNotFound maps to 404 (or to the deliberately
// vague 400 on login), ErrEmailExists feeds the duplicate-email validation
// message, ErrConflict maps to 409.
package repository

import "errors"

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert would violate an email
// uniqueness constraint.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when an update or delete cannot proceed because
// of conflicting state.
var ErrConflict = errors.New("conflict")
