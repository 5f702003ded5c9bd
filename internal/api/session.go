// Package api provides the authenticated HTTP session shared by every
// backend-facing client in this module. The session owns the base URL, the
// transport, and the bearer credential, so nothing here relies on ambient
// globals.
package api

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

	"github.com/rs/zerolog"

	"proteus/internal/domain"
	"proteus/internal/infra"
)

// CredentialStore persists the session token across process restarts.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Options configures a Session.
type Options struct {
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	Logger      *infra.Logger
	Credentials CredentialStore
	Timeout     time.Duration
}

// Session is an authenticated request/response client for the proteus API.
// All calls attach the current bearer credential; a 401 response clears it so
// later calls do not retry with a stale token.
type Session struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *infra.Logger
	creds      CredentialStore

	mu    sync.Mutex
	token string
}

// NewSession constructs a session with sane defaults and injected dependencies.
func NewSession(opts Options) (*Session, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api: base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api: base url %q is not absolute", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Session{
		baseURL:    parsed,
		httpClient: httpClient,
		logger:     logger,
		creds:      opts.Credentials,
		token:      strings.TrimSpace(opts.Token),
	}, nil
}

// BaseURL returns the configured API root without a trailing slash.
func (s *Session) BaseURL() string {
	return s.baseURL.String()
}

// HTTPClient exposes the underlying client so collaborators that talk to
// other hosts (presigned uploads) can share its transport settings.
func (s *Session) HTTPClient() *http.Client {
	return s.httpClient
}

// Logger returns the session logger.
func (s *Session) Logger() *infra.Logger {
	return s.logger
}

// WebSocketURL derives the push channel endpoint from the API base URL,
// mirroring its transport security.
func (s *Session) WebSocketURL() string {
	scheme := "ws"
	if s.baseURL.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + s.baseURL.Host + "/ws"
}

// SetCredential installs a bearer token and persists it when a credential
// store is configured.
func (s *Session) SetCredential(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if s.creds != nil {
		if err := s.creds.Save(token); err != nil {
			s.logger.Warn().Err(err).Msg("persist credential")
		}
	}
}

// ClearCredential drops the bearer token and removes any persisted copy.
func (s *Session) ClearCredential() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if s.creds != nil {
		if err := s.creds.Clear(); err != nil {
			s.logger.Warn().Err(err).Msg("clear persisted credential")
		}
	}
}

// RestoreCredential loads a previously persisted token into the session. It
// is a no-op when no store is configured or nothing was saved.
func (s *Session) RestoreCredential() error {
	if s.creds == nil {
		return nil
	}
	token, err := s.creds.Load()
	if err != nil {
		return fmt.Errorf("api: restore credential: %w", err)
	}
	if token != "" {
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
	}
	return nil
}

// Credential returns the current bearer token, or "" when unauthenticated.
func (s *Session) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// GetJSON issues a GET and decodes the JSON response into out (skipped when
// out is nil).
func (s *Session) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	raw, err := s.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (s *Session) PostJSON(ctx context.Context, path string, body, out any) error {
	raw, err := s.Do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// PutJSON issues a PUT with a JSON body and decodes the response into out.
func (s *Session) PutJSON(ctx context.Context, path string, body, out any) error {
	raw, err := s.Do(ctx, http.MethodPut, path, nil, body)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// Delete issues a DELETE and discards any response body.
func (s *Session) Delete(ctx context.Context, path string) error {
	_, err := s.Do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// Do performs one API call and returns the raw response body. Failures are
// classified: transport errors wrap ErrNetworkUnreachable, a 401 wraps
// ErrUnauthenticated and clears the credential, 5xx wraps ErrServerFailure.
func (s *Session) Do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	endpoint := s.baseURL.String() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := s.Credential(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w: %v", method, path, domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: read response: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		s.ClearCredential()
		return nil, fmt.Errorf("api: %s %s: %w", method, path, domain.ErrUnauthenticated)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("api: %s %s: status %d: %s: %w",
			method, path, resp.StatusCode, strings.TrimSpace(string(raw)), domain.ErrServerFailure)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("api: %s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return raw, nil
}

func decodeInto(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
