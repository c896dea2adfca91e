// Package username validates, reserves and releases chat usernames so that
// no two active clients share one.
package username

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	// MinLength is the shortest accepted username, in characters.
	MinLength = 2
	// MaxLength is the longest accepted username, in characters.
	MaxLength = 32
	// BannedCharacters may not appear anywhere in a username.
	BannedCharacters = "@#:`'\""
)

// Registry guards a Store with the validation rules and makes
// check-then-insert atomic for every caller sharing the Registry.
type Registry struct {
	mu    sync.Mutex
	store Store
}

// NewRegistry returns a Registry backed by store, or by a fresh MemoryStore
// when store is nil.
func NewRegistry(store Store) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{store: store}
}

// Validate checks the length and character rules without consulting the
// store.
func Validate(name string) error {
	if n := utf8.RuneCountInString(name); n < MinLength || n > MaxLength {
		return &ValidationError{Name: name, Reason: ReasonLength}
	}
	if strings.ContainsAny(name, BannedCharacters) {
		return &ValidationError{Name: name, Reason: ReasonBannedCharacter}
	}
	return nil
}

// Reserve claims name for the caller. It returns a *ValidationError when the
// name is malformed or taken and a *RegistryError when the store fails.
func (r *Registry) Reserve(ctx context.Context, name string) error {
	if err := Validate(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	taken, err := r.store.Contains(ctx, name)
	if err != nil {
		return &RegistryError{Op: "lookup", Name: name, Err: err}
	}
	if taken {
		return &ValidationError{Name: name, Reason: ReasonTaken}
	}

	added, err := r.store.Add(ctx, name)
	if err != nil {
		return &RegistryError{Op: "insert", Name: name, Err: err}
	}
	if !added {
		// reserved outside this registry between lookup and insert
		return &ValidationError{Name: name, Reason: ReasonTaken}
	}
	return nil
}

// Release frees name so another client may reserve it.
func (r *Registry) Release(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Remove(ctx, name); err != nil {
		return &RegistryError{Op: "release", Name: name, Err: err}
	}
	return nil
}
