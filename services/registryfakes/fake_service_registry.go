package fakeserviceregistry

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-session-server/services"
)

var _ services.Registry = (*FakeServiceRegistry)(nil)

// FakeServiceRegistry is an in-memory registry for tests and development.
type FakeServiceRegistry struct {
	services map[string]*services.Service
	lock     sync.RWMutex
}

func NewFakeServiceRegistry() *FakeServiceRegistry {
	return &FakeServiceRegistry{
		services: make(map[string]*services.Service),
	}
}

// Register adds or replaces a service entry, assigning an id when empty.
func (r *FakeServiceRegistry) Register(service *services.Service) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if service.ID == "" {
		service.ID = uuid.New().String()
	}
	r.services[service.ID] = service
	return nil
}

func (r *FakeServiceRegistry) Get(serviceID string) (*services.Service, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	service, ok := r.services[serviceID]
	if !ok || service == nil {
		return nil, services.ErrNotRegistered
	}
	return service, nil
}

func (r *FakeServiceRegistry) List() ([]*services.Service, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*services.Service, 0, len(r.services))
	for _, s := range r.services {
		if s != nil {
			list = append(list, s)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list, nil
}
