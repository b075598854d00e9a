// Package state is the durable key-value port for channel state.
//
// Writes are not transactional across a read-then-write sequence. The only
// such sequence today is the one-time beta notice, where a lost race shows
// the notice twice.
package state

import (
	"context"
	"fmt"
	"strconv"
)

// Persisted keys.
const (
	KeyAlphaVersion     = "prerelease.alpha_version"
	KeyBetaMessageShown = "prerelease.beta_message_shown"
)

// Store is an opaque key-value store.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Update sets key to value, creating it if needed.
	Update(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// GetBool reads a boolean key. A missing key is false.
func GetBool(ctx context.Context, s Store, key string) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("state %s: %w", key, err)
	}
	return b, nil
}

// SetBool writes a boolean key.
func SetBool(ctx context.Context, s Store, key string, v bool) error {
	return s.Update(ctx, key, strconv.FormatBool(v))
}
