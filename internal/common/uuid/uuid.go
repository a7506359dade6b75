package uuid

import "github.com/google/uuid"

// UUID generates opaque unique identifiers.
type UUID interface {
	NewUUID() string
}

// DefaultUUID implements UUID using random (v4) UUIDs.
type DefaultUUID struct{}

// New returns the default generator.
func New() *DefaultUUID {
	return &DefaultUUID{}
}

// NewUUID returns a new random UUID string.
func (d *DefaultUUID) NewUUID() string {
	return uuid.New().String()
}
