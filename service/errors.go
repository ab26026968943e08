package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrStorage           = errors.New("storage failure")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrSlotUnavailable   = errors.New("lawyer already booked for that time")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrNotParticipant    = errors.New("user is not a participant of the conversation")
	ErrDependencyNotSet  = errors.New("service dependency not set")
)

// InvalidRequestError names the request field that failed validation
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalid(field, reason string) error {
	return &InvalidRequestError{Field: field, Reason: reason}
}

func required(field string) error {
	return invalid(field, "is required")
}

// storageErr wraps a repository failure so handlers report it as 5xx
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func notSet(name string) error {
	return fmt.Errorf("%w: %s", ErrDependencyNotSet, name)
}
