package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// State of a session.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Manager drives the session lifecycle of one source:
// Unauthenticated -> Authenticated -> Expired -> Authenticated -> ...
// It implements engine.Reauthenticator. Safe for concurrent use.
type Manager struct {
	source    string
	store     Store
	auth      Authenticator
	ttl       time.Duration
	maxReauth int
	now       func() time.Time

	mu      sync.Mutex
	state   State
	current Bundle
	reauths int
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the validity window stamped on new bundles.
func WithTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

// WithMaxReauth caps re-authentications over the manager's lifetime (one run).
func WithMaxReauth(n int) Option { return func(m *Manager) { m.maxReauth = n } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(source string, store Store, auth Authenticator, opts ...Option) *Manager {
	m := &Manager{
		source:    source,
		store:     store,
		auth:      auth,
		ttl:       7 * 24 * time.Hour,
		maxReauth: 1,
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// EnsureAuthenticated returns a usable bundle, loading it from the store or
// logging in when none is stored or the stored one has expired.
func (m *Manager) EnsureAuthenticated(ctx context.Context) (Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Authenticated && m.current.Valid(m.now()) {
		return m.current, nil
	}

	stored, err := m.store.Load()
	if err != nil {
		slog.Warn("session store load failed", slog.String("source", m.source), slog.Any("error", err))
	}
	if stored != nil && stored.Valid(m.now()) {
		m.current = *stored
		m.state = Authenticated
		slog.Debug("session restored",
			slog.String("source", m.source),
			slog.Time("expires_at", stored.ExpiresAt))
		return m.current, nil
	}
	if stored != nil {
		slog.Info("stored session expired", slog.String("source", m.source), slog.Time("expires_at", stored.ExpiresAt))
	}
	return m.login(ctx)
}

// Reauthenticate marks the session expired and logs in again. Once the
// re-authentication budget is spent it fails with engine.ErrReauthExhausted.
func (m *Manager) Reauthenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Expired
	if m.reauths >= m.maxReauth {
		return fmt.Errorf("%s: %w: budget of %d re-authentications spent", m.source, engine.ErrReauthExhausted, m.maxReauth)
	}
	if err := m.store.Clear(); err != nil {
		slog.Warn("session store clear failed", slog.String("source", m.source), slog.Any("error", err))
	}
	m.reauths++
	_, err := m.login(ctx)
	return err
}

// login must be called with mu held.
func (m *Manager) login(ctx context.Context) (Bundle, error) {
	creds, err := m.auth.Login(ctx)
	engine.IncrLogins()
	if err != nil {
		m.state = Unauthenticated
		return Bundle{}, fmt.Errorf("%s: %w: %w", m.source, engine.ErrLoginFailed, err)
	}

	now := m.now()
	b := Bundle{
		Token:     creds.Token,
		Cookie:    creds.Cookie,
		Nickname:  creds.Nickname,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(b); err != nil {
		slog.Warn("session not persisted", slog.String("source", m.source), slog.Any("error", err))
	}
	m.current = b
	m.state = Authenticated
	slog.Info("session established",
		slog.String("source", m.source),
		slog.String("principal", b.Nickname),
		slog.Time("expires_at", b.ExpiresAt))
	return b, nil
}

// Current returns the in-memory bundle when authenticated.
func (m *Manager) Current() (Bundle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.state == Authenticated
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status describes the session without logging in.
func (m *Manager) Status() engine.SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := engine.SessionView{Source: m.source, State: m.state.String()}
	b := m.current
	if m.state != Authenticated {
		stored, _ := m.store.Load()
		if stored == nil {
			return v
		}
		b = *stored
		if b.Valid(m.now()) {
			v.State = "stored"
		} else {
			v.State = Expired.String()
		}
	}
	v.Principal = b.Nickname
	v.ExpiresAt = b.ExpiresAt
	return v
}
