// Package services holds the registry of internal services allowed to talk to
// the control-plane gateway.
package services

// Service describes a control-plane peer. The ID is what a connecting service
// presents at handshake time; the registry decides whether it is known.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"` // Disabled services cannot open new connections
}

// CanConnect reports whether the service may open a gateway connection.
func (s *Service) CanConnect() bool {
	return !s.Disabled
}
