package transcription

import (
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownProvider = errors.New("transcription: unknown provider")

// Selector resolves the transcription provider for an org. Orgs without an
// override use the platform default. Overrides exist so a tenant can be
// pinned to a specific engine while a rollout is in progress.
type Selector struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaults  string
	overrides map[string]string // orgID -> provider name
}

func NewSelector(defaultName string, providers ...Provider) (*Selector, error) {
	s := &Selector{
		providers: make(map[string]Provider, len(providers)),
		defaults:  defaultName,
		overrides: make(map[string]string),
	}
	for _, p := range providers {
		if _, dup := s.providers[p.Name()]; dup {
			return nil, fmt.Errorf("transcription: duplicate provider %q", p.Name())
		}
		s.providers[p.Name()] = p
	}
	if _, ok := s.providers[defaultName]; !ok {
		return nil, fmt.Errorf("%w: default %q not registered", ErrUnknownProvider, defaultName)
	}
	return s, nil
}

// SetOverride pins org to the named provider. An empty name clears the pin.
func (s *Selector) SetOverride(orgID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		delete(s.overrides, orgID)
		return nil
	}
	if _, ok := s.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	s.overrides[orgID] = name
	return nil
}

// ForOrg returns the provider serving the org.
func (s *Selector) ForOrg(orgID string) Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name, ok := s.overrides[orgID]; ok {
		return s.providers[name]
	}
	return s.providers[s.defaults]
}
