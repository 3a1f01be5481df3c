package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultRefreshTTL = 30 * 24 * time.Hour

	// RoleOrganizer gates organization and API key management.
	RoleOrganizer = "organizer"

	// DefaultUserRole is assigned on first OAuth login.
	DefaultUserRole = "rider"
)

// Service provides organization, API key and refresh token operations on
// top of the Store, minting access tokens through the TokenService.
type Service struct {
	store      Store
	tokens     *TokenService
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// NewService constructs the auth service.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) *Service {
	svc := &Service{
		store:      store,
		tokens:     tokens,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Tokens exposes the token service for the authentication guard.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// CreateOrganization registers an organization owned by the requester.
// Scopes must come from the fixed vocabulary.
func (s *Service) CreateOrganization(ctx context.Context, ownerID, name, contactEmail string, scopes []string) (Organization, error) {
	name = strings.TrimSpace(name)
	contactEmail = strings.TrimSpace(contactEmail)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if contactEmail == "" || !strings.Contains(contactEmail, "@") {
		return Organization{}, fmt.Errorf("%w: valid contact_email is required", ErrInvalidInput)
	}
	if !ValidScopes(scopes, AvailableScopes) {
		return Organization{}, fmt.Errorf("%w: one or more scopes are invalid", ErrInvalidScopes)
	}
	org := Organization{
		OwnerID:      ownerID,
		Name:         name,
		ContactEmail: contactEmail,
		Scopes:       scopes,
	}
	if err := s.store.CreateOrganization(ctx, &org); err != nil {
		return Organization{}, err
	}
	return org, nil
}

// GetOrganization returns the organization iff the requester owns it.
func (s *Service) GetOrganization(ctx context.Context, orgID, requesterID string) (Organization, error) {
	return s.store.GetOwnedOrganization(ctx, orgID, requesterID)
}

// ResolveOrganization loads an organization regardless of ownership. Used
// by the ownership guard, which must establish existence before comparing
// owners.
func (s *Service) ResolveOrganization(ctx context.Context, orgID string) (Organization, error) {
	return s.store.GetOrganization(ctx, orgID)
}

// UpdateOrganization applies a partial update. An empty update returns the
// current row untouched.
func (s *Service) UpdateOrganization(ctx context.Context, orgID, requesterID string, upd OrganizationUpdate) (Organization, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Organization{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	if upd.ContactEmail != nil {
		trimmed := strings.TrimSpace(*upd.ContactEmail)
		if trimmed == "" || !strings.Contains(trimmed, "@") {
			return Organization{}, fmt.Errorf("%w: valid contact_email is required", ErrInvalidInput)
		}
		upd.ContactEmail = &trimmed
	}
	if upd.Scopes != nil && !ValidScopes(upd.Scopes, AvailableScopes) {
		return Organization{}, fmt.Errorf("%w: one or more scopes are invalid", ErrInvalidScopes)
	}
	if upd.Name == nil && upd.ContactEmail == nil && upd.Scopes == nil {
		return s.store.GetOwnedOrganization(ctx, orgID, requesterID)
	}
	return s.store.UpdateOrganization(ctx, orgID, requesterID, upd)
}

// GetUser loads a user row for the /me endpoint.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}
