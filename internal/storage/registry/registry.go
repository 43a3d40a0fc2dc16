// Package registry holds the in-memory token registry shared by every request.
// Contents are volatile and rebuilt by client re-registration after a restart.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// ErrInvalidToken is returned when a token fails the gateway's format check.
var ErrInvalidToken = errors.New("invalid push token")

// TokenValidator is satisfied by every dispatch.Gateway.
type TokenValidator interface {
	IsValidToken(token string) bool
}

// Entry pairs a token with its registration for listing.
type Entry struct {
	Token string `json:"token"`
	notification.Registration
}

// Registry maps tokens to their registrations. It is safe for concurrent use.
type Registry struct {
	validator TokenValidator
	now       func() time.Time

	mu      sync.RWMutex
	entries map[string]*notification.Registration
	order   []string
}

// New creates an empty registry gated by validator.
func New(validator TokenValidator) *Registry {
	return &Registry{
		validator: validator,
		now:       time.Now,
		entries:   make(map[string]*notification.Registration),
	}
}

// Validate reports whether token may be registered.
func (r *Registry) Validate(token string) bool {
	return token != "" && r.validator.IsValidToken(token)
}

// Register inserts or overwrites the registration for token. Overwriting resets
// StoredAt and clears LastUsed but keeps the token's listing position.
func (r *Registry) Register(token string, info notification.DeviceInfo) (notification.Registration, error) {
	if !r.Validate(token) {
		return notification.Registration{}, ErrInvalidToken
	}

	reg := &notification.Registration{
		StoredAt:   r.now(),
		DeviceInfo: info.WithDefaults(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[token]; !exists {
		r.order = append(r.order, token)
	}
	r.entries[token] = reg
	return copyOf(reg), nil
}

// Get returns the registration for token, if any.
func (r *Registry) Get(token string) (notification.Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[token]
	if !ok {
		return notification.Registration{}, false
	}
	return copyOf(reg), true
}

// Contains reports whether token is registered.
func (r *Registry) Contains(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[token]
	return ok
}

// List returns every entry in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Entry, 0, len(r.order))
	for _, token := range r.order {
		list = append(list, Entry{Token: token, Registration: copyOf(r.entries[token])})
	}
	return list
}

// Tokens returns a snapshot of the registered tokens in registration order.
func (r *Registry) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tokens := make([]string, len(r.order))
	copy(tokens, r.order)
	return tokens
}

// Touch sets LastUsed for token. Unknown tokens are ignored.
func (r *Registry) Touch(token string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[token]
	if !ok {
		return
	}
	// Replace rather than mutate so copies handed out earlier stay stable.
	updated := *reg
	updated.LastUsed = &at
	r.entries[token] = &updated
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IsEmpty reports whether no token is registered.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

func copyOf(reg *notification.Registration) notification.Registration {
	out := *reg
	if reg.LastUsed != nil {
		lastUsed := *reg.LastUsed
		out.LastUsed = &lastUsed
	}
	return out
}
