// Package auth keeps the signed-in user's session: the persisted token pair,
// the current user and business, and periodic access-token refresh.
package auth

import (
	"context"
	"log"
	"sync"
	"time"

	"taxpadi-client/internal/models"
	"taxpadi-client/internal/validation"
)

const DefaultRefreshInterval = 14 * time.Minute

// Service is the subset of the API client the manager needs
type Service interface {
	Login(ctx context.Context, payload models.LoginPayload) (*models.AuthResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.User, error)
	Refresh(ctx context.Context) (*models.RefreshTokenResponse, error)
}

// TokenReader exposes the stored tokens
type TokenReader interface {
	AccessToken() string
	RefreshToken() string
	ClearTokens() error
}

// State is a snapshot of the session
type State struct {
	User            *models.User
	Business        *models.Business
	IsAuthenticated bool
	IsLoading       bool
	AccessToken     string
	RefreshToken    string
}

// Manager owns the authentication state
type Manager struct {
	service Service
	tokens  TokenReader

	mu    sync.RWMutex
	state State

	refreshMu     sync.Mutex
	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
}

// NewManager creates a manager; the state starts loading until Initialize runs
func NewManager(service Service, tokens TokenReader) *Manager {
	return &Manager{
		service: service,
		tokens:  tokens,
		state:   State{IsLoading: true},
	}
}

// State returns a copy of the current session state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Initialize restores the session from stored tokens. When both tokens are
// present the user is fetched from /auth/me; any failure clears the session.
func (m *Manager) Initialize(ctx context.Context) error {
	access, refresh := m.tokens.AccessToken(), m.tokens.RefreshToken()
	if access == "" || refresh == "" {
		m.setState(State{})
		log.Printf("[Auth] Initialize completed authenticated=false")
		return nil
	}

	user, err := m.service.Me(ctx)
	if err != nil {
		log.Printf("[Auth] Initialize failed err=%v", err)
		m.Clear()
		return err
	}

	m.setState(State{
		User:            user,
		IsAuthenticated: true,
		AccessToken:     access,
		RefreshToken:    refresh,
	})
	log.Printf("[Auth] Initialize completed authenticated=true user_id=%s", user.ID)
	return nil
}

// SetSession records the result of account creation or login
func (m *Manager) SetSession(resp *models.AuthResponse) {
	if resp == nil {
		return
	}
	user := resp.Data.User
	m.setState(State{
		User:            &user,
		Business:        resp.Data.Business,
		IsAuthenticated: resp.Data.AccessToken != "",
		AccessToken:     resp.Data.AccessToken,
		RefreshToken:    resp.Data.RefreshToken,
	})
	log.Printf("[Auth] Session set user_id=%s", user.ID)
}

// Login validates the credentials, signs in and records the session
func (m *Manager) Login(ctx context.Context, payload models.LoginPayload) (*models.AuthResponse, error) {
	if err := validation.ValidateLogin(payload); err != nil {
		return nil, err
	}

	resp, err := m.service.Login(ctx, payload)
	if err != nil {
		return nil, err
	}
	m.SetSession(resp)
	return resp, nil
}

// Logout ends the session; local state is cleared even if the request fails
func (m *Manager) Logout(ctx context.Context) error {
	err := m.service.Logout(ctx)
	m.setState(State{})
	return err
}

// Clear drops the in-memory session and the stored tokens
func (m *Manager) Clear() {
	if err := m.tokens.ClearTokens(); err != nil {
		log.Printf("[Auth] Clear failed to remove tokens err=%v", err)
	}
	m.setState(State{})
}

// StartRefresh refreshes the access token every interval while the session is
// authenticated. A failed refresh clears the session. Calling it again
// replaces the running loop.
func (m *Manager) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	m.StopRefresh()

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.refreshCancel = cancel
	m.refreshDone = done

	go m.refreshLoop(ctx, interval, done)
	log.Printf("[Auth] Token refresh started interval=%v", interval)
}

// StopRefresh stops the refresh loop and waits for it to exit
func (m *Manager) StopRefresh() {
	m.refreshMu.Lock()
	cancel, done := m.refreshCancel, m.refreshDone
	m.refreshCancel, m.refreshDone = nil, nil
	m.refreshMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("[Auth] Token refresh stopped")
}

func (m *Manager) refreshLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.State().IsAuthenticated {
				continue
			}
			resp, err := m.service.Refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Auth] Token refresh failed err=%v", err)
				m.Clear()
				continue
			}
			m.mu.Lock()
			m.state.AccessToken = resp.Data.AccessToken
			m.state.RefreshToken = resp.Data.RefreshToken
			m.mu.Unlock()
			log.Printf("[Auth] Token refreshed")
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
