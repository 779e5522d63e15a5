package client

import (
	"context"
	"errors"
	"log"

	"taxpadi-client/internal/models"
)

const (
	pathVerifyBusiness = "/auth/verify-business"
	pathCreateAccount  = "/auth/create-account"
	pathLogin          = "/auth/login"
	pathLogout         = "/auth/logout"
	pathMe             = "/auth/me"
	pathRefresh        = "/auth/refresh"
)

// ErrNoRefreshToken is returned by Refresh when no refresh token is stored
var ErrNoRefreshToken = errors.New("no refresh token available")

// VerifyBusiness resolves an invitation code (invitation code, CAC/BN,
// business email, phone or name) to a business record
func (c *Client) VerifyBusiness(ctx context.Context, code string) (*models.BusinessVerificationResponse, error) {
	log.Printf("[Auth] VerifyBusiness started code=%q", code)

	var resp models.BusinessVerificationResponse
	if err := c.Post(ctx, pathVerifyBusiness, map[string]string{"code": code}, &resp); err != nil {
		log.Printf("[Auth] VerifyBusiness failed code=%q err=%v", code, err)
		return nil, err
	}

	found := resp.Data.Business != nil
	log.Printf("[Auth] VerifyBusiness completed code=%q found=%t", code, found)
	return &resp, nil
}

// CreateAccount creates an account and stores the returned tokens
func (c *Client) CreateAccount(ctx context.Context, payload models.AccountPayload) (*models.AuthResponse, error) {
	log.Printf("[Auth] CreateAccount started user_type=%s", payload.AccountUserType())

	var resp models.AuthResponse
	if err := c.Post(ctx, pathCreateAccount, payload, &resp); err != nil {
		log.Printf("[Auth] CreateAccount failed user_type=%s err=%v", payload.AccountUserType(), err)
		return nil, err
	}

	c.storeTokens(resp.Data.AccessToken, resp.Data.RefreshToken)
	log.Printf("[Auth] CreateAccount completed user_id=%s", resp.Data.User.ID)
	return &resp, nil
}

// Login authenticates with email and password and stores the returned tokens
func (c *Client) Login(ctx context.Context, payload models.LoginPayload) (*models.AuthResponse, error) {
	log.Printf("[Auth] Login started email=%s", payload.Email)

	var resp models.AuthResponse
	if err := c.Post(ctx, pathLogin, payload, &resp); err != nil {
		log.Printf("[Auth] Login failed email=%s err=%v", payload.Email, err)
		return nil, err
	}

	c.storeTokens(resp.Data.AccessToken, resp.Data.RefreshToken)
	log.Printf("[Auth] Login completed user_id=%s", resp.Data.User.ID)
	return &resp, nil
}

// Logout ends the server session. Local tokens are cleared even when the request fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Post(ctx, pathLogout, nil, nil)
	if err != nil {
		log.Printf("[Auth] Logout request failed err=%v", err)
	}
	if cerr := c.tokens.ClearTokens(); cerr != nil {
		log.Printf("[Auth] Logout failed to clear tokens err=%v", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

// Me returns the authenticated user
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var resp struct {
		Success bool        `json:"success"`
		Data    models.User `json:"data"`
	}
	if err := c.Get(ctx, pathMe, &resp); err != nil {
		log.Printf("[Auth] Me failed err=%v", err)
		return nil, err
	}
	return &resp.Data, nil
}

// Refresh exchanges the stored refresh token for a new token pair.
// Stored tokens are cleared when the refresh fails.
func (c *Client) Refresh(ctx context.Context) (*models.RefreshTokenResponse, error) {
	refresh := c.tokens.RefreshToken()
	if refresh == "" {
		c.clearTokens()
		return nil, ErrNoRefreshToken
	}

	var resp models.RefreshTokenResponse
	if err := c.Post(ctx, pathRefresh, map[string]string{"refreshToken": refresh}, &resp); err != nil {
		log.Printf("[Auth] Refresh failed err=%v", err)
		c.clearTokens()
		return nil, err
	}

	c.storeTokens(resp.Data.AccessToken, resp.Data.RefreshToken)
	log.Printf("[Auth] Refresh completed")
	return &resp, nil
}

func (c *Client) storeTokens(access, refresh string) {
	if access == "" {
		return
	}
	if err := c.tokens.SetTokens(access, refresh); err != nil {
		log.Printf("[Auth] Failed to store tokens err=%v", err)
	}
}

func (c *Client) clearTokens() {
	if err := c.tokens.ClearTokens(); err != nil {
		log.Printf("[Auth] Failed to clear tokens err=%v", err)
	}
}
