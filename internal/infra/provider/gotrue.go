package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/core/port"
	"github.com/arclightapps/identity-gateway/internal/infra/config"
)

// Auth state change events emitted to subscribers.
const (
	StateSignedIn  = "SIGNED_IN"
	StateSignedOut = "SIGNED_OUT"
)

// GoTrueClient implements port.CredentialProvider against a GoTrue-compatible
// REST backend. Provider-classified failures come back as *port.ProviderError;
// transport faults surface as wrapped plain errors.
type GoTrueClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger

	mu        sync.Mutex
	observers map[int]func(port.AuthStateChange)
	nextID    int
}

// NewGoTrueClient constructs a provider client from settings. The request
// timeout bounds every call; zero falls back to ten seconds.
func NewGoTrueClient(cfg config.ProviderSettings, logger *zap.Logger) (*GoTrueClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base url is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GoTrueClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
		observers: make(map[int]func(port.AuthStateChange)),
	}, nil
}

type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         *userPayload `json:"user"`
}

type factorPayload struct {
	ID           string `json:"id"`
	FactorType   string `json:"factor_type"`
	Status       string `json:"status"`
	FriendlyName string `json:"friendly_name"`
}

type userPayload struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	EmailConfirmedAt *time.Time      `json:"email_confirmed_at"`
	Phone            string          `json:"phone"`
	PhoneConfirmedAt *time.Time      `json:"phone_confirmed_at"`
	Role             string          `json:"role"`
	Factors          []factorPayload `json:"factors"`
	LastSignInAt     *time.Time      `json:"last_sign_in_at"`
	CreatedAt        time.Time       `json:"created_at"`
	AppMetadata      map[string]any  `json:"app_metadata"`
	UserMetadata     map[string]any  `json:"user_metadata"`
}

// errorPayload covers the error body shapes GoTrue deployments return.
type errorPayload struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// SignInWithPassword exchanges email and password for a token bundle.
func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*port.ProviderSession, error) {
	body := map[string]string{"email": email, "password": password}

	var payload sessionPayload
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &payload); err != nil {
		return nil, err
	}

	session := payload.toSession()
	c.notify(port.AuthStateChange{Event: StateSignedIn, UserID: sessionUserID(session), Session: session})
	return session, nil
}

// SignUp creates an account. When the backend requires email confirmation it
// returns only the user record and the result carries a nil session.
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string) (*port.SignUpResult, error) {
	body := map[string]string{"email": email, "password": password}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/signup", "", body, &raw); err != nil {
		return nil, err
	}

	// Autoconfirm deployments answer with a full session, confirmation-gated
	// ones with a bare user object. Distinguish by the access_token key.
	var probe struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}

	if probe.AccessToken != "" {
		var payload sessionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode signup session: %w", err)
		}
		session := payload.toSession()
		return &port.SignUpResult{User: session.User, Session: session}, nil
	}

	var user userPayload
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode signup user: %w", err)
	}
	return &port.SignUpResult{User: user.toUser()}, nil
}

// SignOut revokes the session behind the access token.
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil); err != nil {
		return err
	}
	c.notify(port.AuthStateChange{Event: StateSignedOut})
	return nil
}

// GetUser fetches the identity record behind the access token.
func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*port.ProviderUser, error) {
	var payload userPayload
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &payload); err != nil {
		return nil, err
	}
	return payload.toUser(), nil
}

// SendPasswordReset asks the backend to dispatch a recovery email.
func (c *GoTrueClient) SendPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/recover", "", map[string]string{"email": email}, nil)
}

// VerifyEmail redeems a signup confirmation token.
func (c *GoTrueClient) VerifyEmail(ctx context.Context, token string) (*port.ProviderUser, error) {
	body := map[string]string{"type": "signup", "token": token}

	var payload sessionPayload
	if err := c.do(ctx, http.MethodPost, "/verify", "", body, &payload); err != nil {
		return nil, err
	}

	if payload.User == nil {
		return nil, &port.ProviderError{Code: "user_not_found", Message: "verification returned no user", HTTPStatus: http.StatusNotFound}
	}
	return payload.User.toUser(), nil
}

// ChallengeFactor starts a second-factor challenge against an enrolled factor.
func (c *GoTrueClient) ChallengeFactor(ctx context.Context, accessToken, factorID string) (*port.FactorChallenge, error) {
	var payload struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		ExpiresAt  int64  `json:"expires_at"`
		FactorType string `json:"factor_type"`
	}

	path := fmt.Sprintf("/factors/%s/challenge", url.PathEscape(factorID))
	if err := c.do(ctx, http.MethodPost, path, accessToken, struct{}{}, &payload); err != nil {
		return nil, err
	}

	factorType := payload.FactorType
	if factorType == "" {
		factorType = payload.Type
	}

	return &port.FactorChallenge{
		ChallengeID: payload.ID,
		FactorType:  factorType,
		ExpiresAt:   time.Unix(payload.ExpiresAt, 0).UTC(),
	}, nil
}

// VerifyFactorChallenge submits a challenge code and upgrades the session.
func (c *GoTrueClient) VerifyFactorChallenge(ctx context.Context, accessToken, factorID, challengeID, code string) (*port.ProviderSession, error) {
	body := map[string]string{"challenge_id": challengeID, "code": code}

	var payload sessionPayload
	path := fmt.Sprintf("/factors/%s/verify", url.PathEscape(factorID))
	if err := c.do(ctx, http.MethodPost, path, accessToken, body, &payload); err != nil {
		return nil, err
	}

	session := payload.toSession()
	c.notify(port.AuthStateChange{Event: StateSignedIn, UserID: sessionUserID(session), Session: session})
	return session, nil
}

// EnrollFactor registers a new second factor for the authenticated user.
func (c *GoTrueClient) EnrollFactor(ctx context.Context, accessToken, factorType string) (*port.ProviderFactor, error) {
	body := map[string]string{"factor_type": factorType}

	var payload factorPayload
	if err := c.do(ctx, http.MethodPost, "/factors", accessToken, body, &payload); err != nil {
		return nil, err
	}

	return &port.ProviderFactor{
		ID:       payload.ID,
		Type:     payload.FactorType,
		Status:   payload.Status,
		Friendly: payload.FriendlyName,
	}, nil
}

// UnenrollFactor removes an enrolled second factor.
func (c *GoTrueClient) UnenrollFactor(ctx context.Context, accessToken, factorID string) error {
	path := fmt.Sprintf("/factors/%s", url.PathEscape(factorID))
	return c.do(ctx, http.MethodDelete, path, accessToken, nil, nil)
}

// SignInWithIDToken redeems a federated identity token for a session.
func (c *GoTrueClient) SignInWithIDToken(ctx context.Context, providerName, idToken, accessToken string) (*port.ProviderSession, error) {
	body := map[string]string{"provider": providerName, "id_token": idToken}
	if accessToken != "" {
		body["access_token"] = accessToken
	}

	var payload sessionPayload
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=id_token", "", body, &payload); err != nil {
		return nil, err
	}

	session := payload.toSession()
	c.notify(port.AuthStateChange{Event: StateSignedIn, UserID: sessionUserID(session), Session: session})
	return session, nil
}

// OnAuthStateChange registers a listener for session transitions observed by
// this client. The returned function removes the listener.
func (c *GoTrueClient) OnAuthStateChange(fn func(port.AuthStateChange)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *GoTrueClient) notify(change port.AuthStateChange) {
	c.mu.Lock()
	listeners := make([]func(port.AuthStateChange), 0, len(c.observers))
	for _, fn := range c.observers {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (c *GoTrueClient) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func (c *GoTrueClient) decodeError(status int, data []byte) error {
	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Debug("Provider returned non-JSON error body", zap.Int("status", status))
		return &port.ProviderError{Message: strings.TrimSpace(string(data)), HTTPStatus: status}
	}

	code := payload.ErrorCode
	if code == "" {
		code = payload.Error
	}

	message := payload.Msg
	if message == "" {
		message = payload.ErrorDescription
	}
	if message == "" {
		message = payload.Message
	}
	if message == "" {
		message = payload.Error
	}

	return &port.ProviderError{Code: code, Message: message, HTTPStatus: status}
}

func sessionUserID(session *port.ProviderSession) string {
	if session == nil || session.User == nil {
		return ""
	}
	return session.User.ID
}

func (p *sessionPayload) toSession() *port.ProviderSession {
	session := &port.ProviderSession{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
	if p.User != nil {
		session.User = p.User.toUser()
	}
	return session
}

func (p *userPayload) toUser() *port.ProviderUser {
	user := &port.ProviderUser{
		ID:             p.ID,
		Email:          p.Email,
		EmailConfirmed: p.EmailConfirmedAt != nil,
		Phone:          p.Phone,
		PhoneConfirmed: p.PhoneConfirmedAt != nil,
		Role:           p.Role,
		LastSignInAt:   p.LastSignInAt,
		CreatedAt:      p.CreatedAt,
		AppMetadata:    p.AppMetadata,
		UserMetadata:   p.UserMetadata,
	}

	if name, ok := p.UserMetadata["display_name"].(string); ok {
		user.DisplayName = name
	}
	if avatar, ok := p.UserMetadata["avatar_url"].(string); ok {
		user.AvatarURL = avatar
	}
	if role, ok := p.AppMetadata["role"].(string); ok && role != "" {
		user.Role = role
	}
	if method, ok := p.UserMetadata["preferred_mfa_method"].(string); ok {
		user.PreferredMFAMethod = method
	}

	for _, factor := range p.Factors {
		user.Factors = append(user.Factors, port.ProviderFactor{
			ID:       factor.ID,
			Type:     factor.FactorType,
			Status:   factor.Status,
			Friendly: factor.FriendlyName,
		})
		if factor.Status == "verified" {
			user.MFAEnabled = true
		}
	}

	return user
}

var _ port.CredentialProvider = (*GoTrueClient)(nil)
