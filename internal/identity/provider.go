package identity

import (
	"context"
	"errors"
	"time"
)

// KYC verification states reported by the identity collaborator.
const (
	KYCVerified   = "verified"
	KYCPending    = "pending"
	KYCUnverified = "unverified"
)

// ErrUnknownUser indicates the identity collaborator has no record for the reference.
var ErrUnknownUser = errors.New("unknown user")

// Profile is the read-only view of a user the identity service exposes to the
// money-movement engine. Verification workflows live entirely on the other side
// of this boundary.
type Profile struct {
	UserID     string
	KYCStatus  string
	Country    string
	Email      string
	DeviceID   string
	Active     bool
	EnrolledAt time.Time
}

// AccountAge reports how long the profile has existed as of now.
func (p Profile) AccountAge(now time.Time) time.Duration {
	if p.EnrolledAt.IsZero() {
		return 0
	}
	return now.Sub(p.EnrolledAt)
}

// Provider is the port to the external identity/KYC service.
type Provider interface {
	// Lookup returns the profile for a known user id.
	Lookup(ctx context.Context, userID string) (Profile, error)
	// Resolve maps a recipient reference (user id, email or phone) to a user id.
	Resolve(ctx context.Context, ref string) (string, error)
}

// StaticProvider serves profiles from a fixed map. Used in tests and local
// development where no identity service is running.
type StaticProvider struct {
	profiles map[string]Profile
	aliases  map[string]string
}

// NewStaticProvider builds a provider over the given profiles.
func NewStaticProvider(profiles ...Profile) *StaticProvider {
	p := &StaticProvider{
		profiles: make(map[string]Profile, len(profiles)),
		aliases:  make(map[string]string, len(profiles)),
	}
	for _, profile := range profiles {
		p.Add(profile)
	}
	return p
}

// Add registers a profile, indexing its email as a recipient alias.
func (p *StaticProvider) Add(profile Profile) {
	p.profiles[profile.UserID] = profile
	if profile.Email != "" {
		p.aliases[profile.Email] = profile.UserID
	}
}

// Lookup returns the stored profile.
func (p *StaticProvider) Lookup(_ context.Context, userID string) (Profile, error) {
	profile, ok := p.profiles[userID]
	if !ok {
		return Profile{}, ErrUnknownUser
	}
	return profile, nil
}

// Resolve accepts a user id or a registered email alias.
func (p *StaticProvider) Resolve(_ context.Context, ref string) (string, error) {
	if _, ok := p.profiles[ref]; ok {
		return ref, nil
	}
	if id, ok := p.aliases[ref]; ok {
		return id, nil
	}
	return "", ErrUnknownUser
}
