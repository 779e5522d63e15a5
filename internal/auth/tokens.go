package auth

import (
	"errors"
	"log"

	"taxpadi-client/internal/db"
)

// Storage keys for the persisted token pair
const (
	AccessTokenKey  = "auth_token"
	RefreshTokenKey = "refresh_token"
)

// Store is the durable key/value slot the tokens live in
type Store interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Tokens persists the access/refresh token pair in a Store.
// It satisfies client.TokenStore.
type Tokens struct {
	store Store
}

// NewTokens creates a token store backed by store
func NewTokens(store Store) *Tokens {
	return &Tokens{store: store}
}

func (t *Tokens) AccessToken() string {
	return t.get(AccessTokenKey)
}

func (t *Tokens) RefreshToken() string {
	return t.get(RefreshTokenKey)
}

func (t *Tokens) SetTokens(access, refresh string) error {
	if err := t.store.SetItem(AccessTokenKey, access); err != nil {
		return err
	}
	if refresh == "" {
		return t.store.RemoveItem(RefreshTokenKey)
	}
	return t.store.SetItem(RefreshTokenKey, refresh)
}

func (t *Tokens) ClearTokens() error {
	return errors.Join(
		t.store.RemoveItem(AccessTokenKey),
		t.store.RemoveItem(RefreshTokenKey),
	)
}

func (t *Tokens) get(key string) string {
	v, err := t.store.GetItem(key)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("[Auth] Failed to read %s err=%v", key, err)
		}
		return ""
	}
	return v
}
