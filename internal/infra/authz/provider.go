// Package authz provides role resolution backed by an in-memory grant
// table, plus a chain combinator for layering providers.
package authz

import (
	"context"
	"sync"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

// Static resolves roles from a fixed grant table. Grants can be changed
// at runtime; reads and writes are safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	grants map[string]map[domain.Role]struct{}
}

var _ usecase.AuthorizationProvider = (*Static)(nil)

func NewStatic() *Static {
	return &Static{grants: map[string]map[domain.Role]struct{}{}}
}

// Grant adds roles to a user, creating the user on first grant.
func (s *Static) Grant(userID string, roles ...domain.Role) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.grants[userID]
	if !ok {
		held = map[domain.Role]struct{}{}
		s.grants[userID] = held
	}
	for _, role := range roles {
		held[role] = struct{}{}
	}
}

// Revoke removes roles from a user. Unknown users and roles are ignored.
func (s *Static) Revoke(userID string, roles ...domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.grants[userID]
	if !ok {
		return
	}
	for _, role := range roles {
		delete(held, role)
	}
	if len(held) == 0 {
		delete(s.grants, userID)
	}
}

func (s *Static) HasRole(ctx context.Context, userID string, role domain.Role) (usecase.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held, ok := s.grants[userID]
	if !ok {
		return usecase.Decision{Reason: "user has no role grants"}, nil
	}
	if _, ok := held[role]; !ok {
		return usecase.Decision{Reason: "role not granted"}, nil
	}
	return usecase.Decision{Allowed: true}, nil
}

func (s *Static) HasAnyRole(ctx context.Context, userID string, roles ...domain.Role) (usecase.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held, ok := s.grants[userID]
	if !ok {
		return usecase.Decision{Reason: "user has no role grants"}, nil
	}
	for _, role := range roles {
		if _, ok := held[role]; ok {
			return usecase.Decision{Allowed: true}, nil
		}
	}
	return usecase.Decision{Reason: "none of the roles granted"}, nil
}

// Chain consults providers in order and allows on the first allow. A
// provider error aborts the chain so authorization fails closed.
type Chain struct {
	providers []usecase.AuthorizationProvider
}

var _ usecase.AuthorizationProvider = (*Chain)(nil)

func NewChain(providers ...usecase.AuthorizationProvider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) HasRole(ctx context.Context, userID string, role domain.Role) (usecase.Decision, error) {
	reason := "no provider granted the role"
	for _, p := range c.providers {
		decision, err := p.HasRole(ctx, userID, role)
		if err != nil {
			return usecase.Decision{}, err
		}
		if decision.Allowed {
			return decision, nil
		}
		if decision.Reason != "" {
			reason = decision.Reason
		}
	}
	return usecase.Decision{Reason: reason}, nil
}

func (c *Chain) HasAnyRole(ctx context.Context, userID string, roles ...domain.Role) (usecase.Decision, error) {
	reason := "no provider granted any of the roles"
	for _, p := range c.providers {
		decision, err := p.HasAnyRole(ctx, userID, roles...)
		if err != nil {
			return usecase.Decision{}, err
		}
		if decision.Allowed {
			return decision, nil
		}
		if decision.Reason != "" {
			reason = decision.Reason
		}
	}
	return usecase.Decision{Reason: reason}, nil
}
