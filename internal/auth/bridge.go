// Package auth bridges the external credential endpoint to local user rows.
// Authentication never returns an error to its caller: every failure mode
// collapses to "no user", logged with enough detail to debug the deployment.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"runxchat/internal/store"
)

const defaultTimeout = 10 * time.Second

// AuthenticatedUser is the outcome of a successful login: the stable
// external identifier plus the normalized provider profile.
type AuthenticatedUser struct {
	Identifier string
	Metadata   map[string]any
}

// Bridge calls the external auth endpoint and keeps the local users table
// in sync with it.
type Bridge struct {
	apiURL     string
	store      *store.Store
	httpClient *http.Client
	log        *zap.Logger
}

// New creates a Bridge. An empty apiURL is tolerated (it is warned about at
// startup); every authentication attempt will then be denied.
func New(apiURL string, st *store.Store, timeout time.Duration, log *zap.Logger) *Bridge {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		apiURL: apiURL,
		store:  st,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.Named("auth"),
	}
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Profile struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"profile"`
	Token string `json:"token"`
}

// Authenticate verifies the credentials against the external endpoint and
// returns the matching local user, creating one on first login. Nil means
// denied; no error is ever surfaced.
func (b *Bridge) Authenticate(ctx context.Context, username, password string) *AuthenticatedUser {
	if b.apiURL == "" {
		b.log.Warn("authentication attempted without AUTH_API_URL configured")
		return nil
	}

	resp, err := b.callAuthAPI(ctx, username, password)
	if err != nil {
		b.log.Error("authentication API request failed", zap.Error(err))
		return nil
	}
	if resp == nil {
		return nil
	}

	name := resp.Profile.Name
	if name == "" {
		name = "Unknown"
	}
	b.log.Info("user authenticated",
		zap.String("name", name),
		zap.String("id", resp.Profile.ID))

	user, err := b.store.GetUserByIdentifier(ctx, username)
	if err != nil {
		b.log.Error("database operation failed during authentication", zap.Error(err))
		return nil
	}

	if user == nil {
		b.log.Info("creating new user", zap.String("identifier", username))
		metadata := map[string]any{
			"name":     name,
			"id":       resp.Profile.ID,
			"token":    resp.Token,
			"provider": "api",
		}
		encoded, err := store.MetadataJSON(metadata)
		if err != nil {
			b.log.Error("failed to encode user metadata", zap.Error(err))
			return nil
		}
		user = &store.User{Identifier: username, Metadata: encoded}
		if err := b.store.CreateUser(ctx, user); err != nil {
			// CreateUser runs in a transaction; the failed insert is rolled
			// back before the error reaches us.
			b.log.Error("database operation failed during authentication", zap.Error(err))
			return nil
		}
		return &AuthenticatedUser{Identifier: username, Metadata: metadata}
	}

	b.log.Info("user found", zap.String("identifier", username))
	metadata, err := store.NormalizeMetadata(user.Metadata)
	if err != nil {
		// Stale or double-encoded metadata should not block a valid login.
		b.log.Warn("failed to normalize stored user metadata", zap.Error(err))
	}
	return &AuthenticatedUser{Identifier: user.Identifier, Metadata: metadata}
}

// callAuthAPI performs the wire call. (nil, nil) means the endpoint answered
// with a non-success status: denial, not a transport failure.
func (b *Bridge) callAuthAPI(ctx context.Context, username, password string) (*authResponse, error) {
	payload, err := json.Marshal(authRequest{Email: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Success is exactly 201; anything else is a denial.
	if resp.StatusCode != http.StatusCreated {
		b.log.Warn("authentication failed", zap.Int("status", resp.StatusCode))
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &parsed, nil
}
