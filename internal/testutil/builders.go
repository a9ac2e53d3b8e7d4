// Package testutil provides testing utilities and helpers for the portal.
package testutil

import (
	"time"

	"github.com/google/uuid"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
)

// ProfileBuilder provides a fluent interface for building profiles for testing.
type ProfileBuilder struct {
	p domainauth.Profile
}

// NewProfile creates a ProfileBuilder for a fresh user with a random id.
func NewProfile() *ProfileBuilder {
	now := TestTime()
	id := uuid.NewString()
	return &ProfileBuilder{p: domainauth.Profile{
		ID:          id,
		Email:       id[:8] + "@example.com",
		DisplayName: id[:8],
		Role:        domainauth.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
}

// WithID sets the profile id.
func (b *ProfileBuilder) WithID(id string) *ProfileBuilder {
	b.p.ID = id
	return b
}

// WithEmail sets the profile email.
func (b *ProfileBuilder) WithEmail(email string) *ProfileBuilder {
	b.p.Email = email
	return b
}

// WithRole sets the profile role.
func (b *ProfileBuilder) WithRole(role domainauth.Role) *ProfileBuilder {
	b.p.Role = role
	return b
}

// AsAdmin sets the admin role.
func (b *ProfileBuilder) AsAdmin() *ProfileBuilder {
	return b.WithRole(domainauth.RoleAdmin)
}

// WithPetitionsUsed sets the usage counter.
func (b *ProfileBuilder) WithPetitionsUsed(n int) *ProfileBuilder {
	b.p.PetitionsUsed = n
	return b
}

// Build returns a copy of the profile.
func (b *ProfileBuilder) Build() domainauth.Profile {
	return b.p
}

// BuildPtr returns a pointer to a copy of the profile.
func (b *ProfileBuilder) BuildPtr() *domainauth.Profile {
	p := b.p
	return &p
}

// IdentityFor returns the identity that would resolve to p.
func IdentityFor(p domainauth.Profile) domainauth.Identity {
	return domainauth.Identity{
		UserID:    p.ID,
		Email:     p.Email,
		FullName:  p.DisplayName,
		ExpiresAt: TestTime().Add(time.Hour),
	}
}

// CaseRequestBuilder provides a fluent interface for building CreateCaseRequest objects for testing.
type CaseRequestBuilder struct {
	req model.CreateCaseRequest
}

// NewCaseRequest creates a CaseRequestBuilder owned by userID.
func NewCaseRequest(userID string) *CaseRequestBuilder {
	return &CaseRequestBuilder{req: model.CreateCaseRequest{
		CaseID:       model.NewCaseID(time.Now()),
		OriginalText: "Cobranca indevida\n\nCategoria: consumidor\n\nO banco cobrou tarifas nao contratadas.",
		UserID:       userID,
	}}
}

// WithCaseID sets the case id.
func (b *CaseRequestBuilder) WithCaseID(id string) *CaseRequestBuilder {
	b.req.CaseID = id
	return b
}

// WithText sets the petition text.
func (b *CaseRequestBuilder) WithText(text string) *CaseRequestBuilder {
	b.req.OriginalText = text
	return b
}

// Build returns the request.
func (b *CaseRequestBuilder) Build() model.CreateCaseRequest {
	return b.req
}
