package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAuth struct {
	calls int
	creds Credentials
	err   error
}

func (a *countingAuth) Login(context.Context) (Credentials, error) {
	a.calls++
	return a.creds, a.err
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

var now = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", ".wechat-token.json"))

	b, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, b, "missing file means no session")

	want := Bundle{Token: "t", Cookie: "c=1", Nickname: "me", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Token, got.Token)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(store.Path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clearing twice is fine")
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	b, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestEnsureAuthenticatedUsesStoredBundle(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save(Bundle{Token: "stored", Cookie: "c", ExpiresAt: now.Add(24 * time.Hour)}))

	auth := &countingAuth{creds: Credentials{Token: "fresh", Cookie: "c"}}
	m := NewManager("wechat_mp", store, auth, WithClock(fixedClock(now)))

	b, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", b.Token)
	assert.Equal(t, 0, auth.calls, "future expires_at must not trigger a login")
	assert.Equal(t, Authenticated, m.State())
}

func TestEnsureAuthenticatedExpiredBundleLogsIn(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save(Bundle{Token: "old", Cookie: "c", ExpiresAt: now.Add(-time.Minute)}))

	auth := &countingAuth{creds: Credentials{Token: "fresh", Cookie: "c2", Nickname: "acct"}}
	m := NewManager("wechat_mp", store, auth, WithClock(fixedClock(now)), WithTTL(7*24*time.Hour))

	b, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, auth.calls, "past expires_at must trigger exactly one login")
	assert.Equal(t, "fresh", b.Token)
	assert.Equal(t, now.Add(7*24*time.Hour), b.ExpiresAt)

	persisted, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "fresh", persisted.Token)

	// Second call reuses the in-memory session.
	_, err = m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, auth.calls)
}

func TestLoginFailure(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	auth := &countingAuth{err: errors.New("no credentials")}
	m := NewManager("zsxq", store, auth, WithClock(fixedClock(now)))

	_, err := m.EnsureAuthenticated(context.Background())
	assert.ErrorIs(t, err, engine.ErrLoginFailed)
	assert.Equal(t, engine.Fatal, engine.Classify(err))
	assert.Equal(t, Unauthenticated, m.State())
}

func TestReauthenticateBudget(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	auth := &countingAuth{creds: Credentials{Token: "t", Cookie: "c"}}
	m := NewManager("wechat_mp", store, auth, WithClock(fixedClock(now)), WithMaxReauth(1))

	_, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Reauthenticate(context.Background()))
	assert.Equal(t, 2, auth.calls)

	err = m.Reauthenticate(context.Background())
	assert.ErrorIs(t, err, engine.ErrReauthExhausted)
	assert.Equal(t, 2, auth.calls, "no login after the budget is spent")
	assert.Equal(t, Expired, m.State())
}

func TestReauthenticateRefusedKeepsStoredBundle(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	auth := &countingAuth{creds: Credentials{Token: "t", Cookie: "c"}}
	m := NewManager("zsxq", store, auth, WithClock(fixedClock(now)), WithMaxReauth(1))

	_, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Reauthenticate(context.Background()))

	err = m.Reauthenticate(context.Background())
	require.ErrorIs(t, err, engine.ErrReauthExhausted)

	stored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, stored, "a refused reauth must not delete credentials")
	assert.Equal(t, "c", stored.Cookie)
}

func TestExecuteWithManager(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	auth := &countingAuth{creds: Credentials{Token: "t", Cookie: "c"}}
	m := NewManager("wechat_mp", store, auth, WithClock(fixedClock(now)))
	ex := engine.Executor{Policy: engine.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, Reauth: m}

	calls := 0
	got, err := engine.Execute(context.Background(), ex, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &engine.SessionExpiredError{Code: 200003}
		}
		return "page", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "page", got)
	assert.Equal(t, 1, auth.calls)
}

func TestStatus(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	m := NewManager("zsxq", store, &countingAuth{}, WithClock(fixedClock(now)))
	assert.Equal(t, "unauthenticated", m.Status().State)

	require.NoError(t, store.Save(Bundle{Cookie: "c", Nickname: "me", ExpiresAt: now.Add(time.Hour)}))
	v := m.Status()
	assert.Equal(t, "stored", v.State)
	assert.Equal(t, "me", v.Principal)
}

func TestEnvAuthenticator(t *testing.T) {
	a := EnvAuthenticator{TokenVar: "TEST_WX_TOKEN", CookieVar: "TEST_WX_COOKIE", NicknameVar: "TEST_WX_NICK"}
	t.Setenv("TEST_WX_TOKEN", "")
	t.Setenv("TEST_WX_COOKIE", "")
	_, err := a.Login(context.Background())
	assert.Error(t, err)

	t.Setenv("TEST_WX_TOKEN", "123")
	t.Setenv("TEST_WX_COOKIE", "slave_sid=abc")
	t.Setenv("TEST_WX_NICK", "Daily")
	c, err := a.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{Token: "123", Cookie: "slave_sid=abc", Nickname: "Daily"}, c)
}

func TestCookieAuthenticator(t *testing.T) {
	a := CookieAuthenticator{CookieVar: "TEST_ZSXQ_COOKIE", RequiredKey: "zsxq_access_token"}

	t.Setenv("TEST_ZSXQ_COOKIE", "abtest_env=product; other=1")
	_, err := a.Login(context.Background())
	assert.Error(t, err)

	t.Setenv("TEST_ZSXQ_COOKIE", "abtest_env=product; zsxq_access_token=TOKEN-1")
	c, err := a.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TOKEN-1", c.Token)
}
