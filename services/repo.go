package services

import "errors"

// ErrNotRegistered is returned when a service identifier is unknown to the
// registry.
var ErrNotRegistered = errors.New("service not registered")

// Registry resolves control-plane service identifiers.
type Registry interface {
	Get(serviceID string) (*Service, error)
	List() ([]*Service, error)
}
