package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"remedian/internal/types"
)

// expirySkew is subtracted from the token lifetime so renewal happens before
// the CRM actually rejects the token.
const expirySkew = 30 * time.Second

// defaultTokenLifetime is assumed when the token endpoint omits expires_in.
const defaultTokenLifetime = 5 * time.Minute

// SessionConfig holds the OAuth client-credentials settings for the CRM.
type SessionConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret types.SecretString
	Logger       *slog.Logger
}

// Session is the single owned OAuth client-credentials session shared by all
// CRM calls. It acquires a token lazily, caches it until expiry, and renews
// it under a mutex so only one renewal is ever in flight; concurrent callers
// block briefly on the renewal rather than triggering redundant token
// exchanges. Constructed once at startup and passed by reference to the
// Connector — there is no hidden global token state.
type Session struct {
	client *Client
	cfg    SessionConfig
	logger *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewSession creates a Session that exchanges credentials through the given
// resilient client.
func NewSession(client *Client, cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Token returns a bearer token valid for at least expirySkew, acquiring or
// renewing as needed. The renewal is mutually exclusive: the mutex is held
// across the token exchange so a burst of concurrent callers results in
// exactly one outbound request.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt) {
		return s.token, nil
	}

	token, lifetime, err := s.exchange(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expiresAt = time.Now().Add(lifetime - expirySkew)
	s.logger.InfoContext(ctx, "CRM session renewed",
		"expires_in", lifetime.String(),
	)
	return s.token, nil
}

// Invalidate discards the cached token so the next Token call performs a
// fresh exchange. Called by the Connector when the CRM answers 401 with a
// token the session still believed valid.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

// exchange performs the client-credentials grant. Caller holds s.mu.
func (s *Session) exchange(ctx context.Context) (string, time.Duration, error) {
	params := url.Values{}
	params.Set("grant_type", "client_credentials")
	params.Set("client_id", s.cfg.ClientID)
	params.Set("client_secret", s.cfg.ClientSecret.Unmask())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", 0, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create token request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, types.NewAppError(
			types.ErrCodeRemoteAuth,
			"CRM token endpoint rejected client credentials ("+resp.Status+"): "+truncateBody(body),
			nil,
		)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, types.NewAppError(
			types.ErrCodeRemoteAuth,
			"failed to decode CRM token response",
			err,
		)
	}

	if tokenResp.AccessToken == "" {
		return "", 0, types.NewAppError(
			types.ErrCodeRemoteAuth,
			"CRM token endpoint returned empty access token",
			nil,
		)
	}

	lifetime := defaultTokenLifetime
	if tokenResp.ExpiresIn > 0 {
		lifetime = time.Duration(tokenResp.ExpiresIn) * time.Second
	}

	return tokenResp.AccessToken, lifetime, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
