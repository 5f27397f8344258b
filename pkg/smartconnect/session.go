package smartconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Credentials holds everything needed to open (and reopen) a session.
// TOTPSecret is the base32 seed, not a one-time code; fresh codes are
// generated on every login.
type Credentials struct {
	ClientCode string
	Password   string
	TOTPSecret string
}

// Broker sessions expire roughly daily. Renew ahead of the deadline so an
// authenticated call never rides a token about to lapse.
const (
	sessionMaxAge         = 24 * time.Hour
	sessionRenewThreshold = time.Hour
)

type session struct {
	mu       sync.RWMutex
	jwt      string
	refresh  string
	feed     string
	issuedAt time.Time
}

func (s *session) accessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jwt
}

func (s *session) feedToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed
}

func (s *session) set(jwt, refresh, feed string) {
	s.mu.Lock()
	s.jwt = jwt
	s.refresh = refresh
	s.feed = feed
	s.issuedAt = time.Now()
	s.mu.Unlock()
}

func (s *session) clear() {
	s.set("", "", "")
	s.mu.Lock()
	s.issuedAt = time.Time{}
	s.mu.Unlock()
}

func (s *session) needsRenewal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.jwt == "" {
		return true
	}
	return time.Since(s.issuedAt) > sessionMaxAge-sessionRenewThreshold
}

type loginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Login opens a fresh session: generates the current TOTP code from the
// stored secret and exchanges credentials for JWT, refresh and feed tokens.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	code, err := totp.GenerateCode(creds.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("smartconnect: totp: %w", err)
	}

	env, err := c.post(ctx, "api.login", map[string]string{
		"clientcode": creds.ClientCode,
		"password":   creds.Password,
		"totp":       code,
	})
	if err != nil {
		return err
	}
	if !env.Status {
		return fmt.Errorf("smartconnect: login failed: %s", env.Message)
	}

	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("smartconnect: login response: %w", err)
	}
	if data.JWTToken == "" {
		return fmt.Errorf("smartconnect: login returned empty token")
	}
	c.session.set(data.JWTToken, data.RefreshToken, data.FeedToken)
	return nil
}

// EnsureSession renews the session with a full re-login when the current
// token is missing or close to its daily expiry. Callers invoke this before
// authenticated requests; it is cheap when the session is still fresh.
func (c *Client) EnsureSession(ctx context.Context, creds Credentials) error {
	if !c.session.needsRenewal() {
		return nil
	}
	return c.Login(ctx, creds)
}

// Logout terminates the session server-side and clears local tokens.
func (c *Client) Logout(ctx context.Context, clientCode string) error {
	_, err := c.post(ctx, "api.logout", map[string]string{"clientcode": clientCode})
	c.session.clear()
	return err
}

// FeedToken returns the token the WebSocket stream authenticates with.
func (c *Client) FeedToken() string {
	return c.session.feedToken()
}

// AccessToken returns the current JWT, empty when logged out.
func (c *Client) AccessToken() string {
	return c.session.accessToken()
}
