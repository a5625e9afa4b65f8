// Package gauth runs the Google OAuth consent flow for Drive uploads and keeps
// the resulting token on disk.
package gauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"extranef/internal/config"
	"extranef/internal/fsutil"
	"extranef/internal/nef"
)

const (
	scopePrefix  = "https://www.googleapis.com/auth/"
	callbackPath = "/callback"
)

// State is where the account is in the sign-in lifecycle.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateConfigured   State = "configured"
	StateAuthorizing  State = "authorizing"
	StateAuthorized   State = "authorized"
)

// ErrLoginInProgress is returned when Login is called while another consent
// flow is waiting for its callback.
var ErrLoginInProgress = errors.New("google sign-in already in progress")

// Settings reads and stores the user's Google client settings.
type Settings interface {
	Google() *config.GoogleConfig
	SetGoogle(g config.GoogleConfig) error
}

// Manager owns the OAuth client configuration and the stored token.
type Manager struct {
	settings     Settings
	tokenPath    string
	redirectAddr string
	endpoint     oauth2.Endpoint
	logger       nef.Logger

	mu          sync.Mutex
	token       *oauth2.Token
	authorizing bool
}

// NewManager creates a Manager and loads any token saved at tokenPath.
// redirectAddr is the loopback host:port the consent callback listens on.
func NewManager(settings Settings, tokenPath, redirectAddr string, logger nef.Logger) *Manager {
	if logger == nil {
		logger = nef.NewNopLogger()
	}
	m := &Manager{
		settings:     settings,
		tokenPath:    tokenPath,
		redirectAddr: redirectAddr,
		endpoint:     google.Endpoint,
		logger:       logger,
	}
	tok, err := readToken(tokenPath)
	if err != nil {
		logger.Warn("ignoring stored google token", "path", tokenPath, "error", err)
	}
	m.token = tok
	return m
}

// SetEndpoint replaces google.Endpoint, the default.
func (m *Manager) SetEndpoint(e oauth2.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoint = e
}

// State reports the current sign-in state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.authorizing:
		return StateAuthorizing
	case m.token != nil && m.configured():
		return StateAuthorized
	case m.configured():
		return StateConfigured
	default:
		return StateUnconfigured
	}
}

func (m *Manager) configured() bool {
	g := m.settings.Google()
	return g != nil && g.ClientID != ""
}

// Configure stores the OAuth client and the Drive folder uploads go to.
// Changing the client id discards the stored token.
func (m *Manager) Configure(g config.GoogleConfig) error {
	if strings.TrimSpace(g.ClientID) == "" {
		return fmt.Errorf("google client id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.settings.Google()
	if err := m.settings.SetGoogle(g); err != nil {
		return err
	}
	if prev != nil && prev.ClientID != g.ClientID && m.token != nil {
		m.token = nil
		if err := removeToken(m.tokenPath); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) oauthConfig(redirectURL string) (*oauth2.Config, error) {
	g := m.settings.Google()
	if g == nil || g.ClientID == "" {
		return nil, fmt.Errorf("google client: %w", nef.ErrNotConfigured)
	}
	scope := g.Scope
	if scope == "" {
		scope = config.DefaultGoogleScope
	}
	if !strings.HasPrefix(scope, "https://") {
		scope = scopePrefix + scope
	}
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Endpoint:     m.endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{scope},
	}, nil
}

// Login runs the consent flow: it starts a one-shot loopback server, hands
// the consent URL to open, waits for Google to redirect back and exchanges
// the code for a token. If open fails the URL is logged so the user can
// visit it manually.
func (m *Manager) Login(ctx context.Context, open func(url string) error) error {
	m.mu.Lock()
	if m.authorizing {
		m.mu.Unlock()
		return ErrLoginInProgress
	}
	m.authorizing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.authorizing = false
		m.mu.Unlock()
	}()

	ln, err := net.Listen("tcp", m.redirectAddr)
	if err != nil {
		return fmt.Errorf("listening for oauth callback: %w", err)
	}
	redirectURL := "http://" + ln.Addr().String() + callbackPath

	m.mu.Lock()
	cfg, err := m.oauthConfig(redirectURL)
	m.mu.Unlock()
	if err != nil {
		ln.Close()
		return err
	}

	state := uuid.NewString()
	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackRouter(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if open != nil {
		if err := open(authURL); err != nil {
			m.logger.Warn("could not open browser; visit the URL manually", "url", authURL, "error", err)
		}
	}
	m.logger.Info("waiting for google consent", "redirect", redirectURL)

	var res callbackResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return res.err
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := writeToken(m.tokenPath, tok); err != nil {
		return err
	}
	m.token = tok
	m.logger.Info("google sign-in complete")
	return nil
}

// Logout forgets the stored token.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	return removeToken(m.tokenPath)
}

// HTTPClient returns a client that authorizes requests with the stored
// token, refreshing it as needed. Refreshed tokens are saved back to disk.
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil, fmt.Errorf("google sign-in: %w", nef.ErrNotConfigured)
	}
	cfg, err := m.oauthConfig("")
	if err != nil {
		return nil, err
	}
	src := &savingTokenSource{
		m:    m,
		base: cfg.TokenSource(context.WithoutCancel(ctx), m.token),
		last: m.token.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(m.token, src)), nil
}

// savingTokenSource persists every token that differs from the last one seen.
type savingTokenSource struct {
	m    *Manager
	base oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		s.m.mu.Lock()
		s.m.token = tok
		if err := writeToken(s.m.tokenPath, tok); err != nil {
			s.m.logger.Warn("saving refreshed google token", "error", err)
		}
		s.m.mu.Unlock()
	}
	return tok, nil
}

type callbackResult struct {
	code string
	err  error
}

func callbackRouter(state string, results chan<- callbackResult) http.Handler {
	var once sync.Once
	deliver := func(res callbackResult) {
		once.Do(func() { results <- res })
	}

	r := chi.NewRouter()
	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			deliver(callbackResult{err: fmt.Errorf("google consent denied: %s", q.Get("error"))})
			http.Error(w, "Sign-in was cancelled. You can close this window.", http.StatusForbidden)
			return
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		deliver(callbackResult{code: q.Get("code")})
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Sign-in complete. You can close this window."))
	})
	return r
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

func removeToken(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token: %w", err)
	}
	return nil
}
