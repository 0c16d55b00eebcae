package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/common/httpclient"
	"github.com/opsdeck/opsdeck/internal/common/itsmtest"
)

type fixtureConfig struct {
	serverURL string
}

func (c *fixtureConfig) GetServerURL() string   { return c.serverURL }
func (c *fixtureConfig) GetDefaultRetries() int { return 1 }

type fixture struct {
	server  *itsmtest.Server
	creds   *httpclient.MemoryCredentials
	client  *httpclient.HTTPClient
	store   *MemoryProfileStore
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := itsmtest.NewServer()
	t.Cleanup(server.Close)

	creds := httpclient.NewMemoryCredentials()
	client := httpclient.NewClient(&fixtureConfig{serverURL: server.URL}, creds, httpclient.ClientOptions{
		Retry: &httpclient.RetryPolicy{Delay: time.Millisecond, ShouldRetry: httpclient.IsRetryable},
	})
	store := NewMemoryProfileStore()
	manager := NewManager(client, store, ManagerOptions{Stash: creds})
	return &fixture{server: server, creds: creds, client: client, store: store, manager: manager}
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{
		Username: "alice", Password: "s3cret", Email: "alice@example.com",
		FirstName: "Alice", Role: "agent",
	})

	assert.Equal(t, StatusUnknown, f.manager.Status())

	require.NoError(t, f.manager.Login("alice", "s3cret", ""))
	assert.Equal(t, StatusReady, f.manager.Status())

	user := f.manager.User()
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice", user.FirstName)

	cached, err := f.store.Load()
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "alice", cached.Username)

	// The session cookie landed in the jar, so verify succeeds.
	assert.True(t, f.manager.Verify())
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret"})

	// A profile cached from an earlier session must survive a failed login.
	require.NoError(t, f.store.Save(&UserProfile{Username: "alice"}))

	err := f.manager.Login("alice", "wrong", "")
	require.Error(t, err)
	assert.Equal(t, StatusError, f.manager.Status())
	assert.Equal(t, "Invalid credentials", f.manager.LastError())

	cached, loadErr := f.store.Load()
	require.NoError(t, loadErr)
	require.NotNil(t, cached)
	assert.Equal(t, "alice", cached.Username)

	// 401 is a client error: exactly one attempt.
	assert.Equal(t, 1, f.server.RequestCount("POST", "/auth/login/"))
}

func TestLoginTOTPFieldError(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "bob", Password: "pw", TOTPCode: "123456"})

	err := f.manager.Login("bob", "pw", "000000")
	require.Error(t, err)
	assert.Equal(t, StatusError, f.manager.Status())
	assert.Equal(t, "Invalid one-time code.", f.manager.LastError())

	require.NoError(t, f.manager.Login("bob", "pw", "123456"))
	assert.Equal(t, StatusReady, f.manager.Status())
	assert.Empty(t, f.manager.LastError())
}

func TestLogoutAlwaysClearsLocalState(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret"})
	require.NoError(t, f.manager.Login("alice", "s3cret", ""))

	require.NoError(t, f.manager.Logout())
	assert.Equal(t, StatusMissing, f.manager.Status())
	assert.Nil(t, f.manager.User())
	cached, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.Equal(t, 0, f.server.ActiveSessions())
}

func TestLogoutSwallowsNetworkFailure(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret"})
	require.NoError(t, f.manager.Login("alice", "s3cret", ""))

	// Kill the server so the logout call fails at the network layer.
	f.server.Close()

	require.NoError(t, f.manager.Logout())
	assert.Equal(t, StatusMissing, f.manager.Status())
	assert.Nil(t, f.manager.User())
	cached, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestRefreshUpdatesProfile(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret", Role: "manager"})
	require.NoError(t, f.manager.Login("alice", "s3cret", ""))

	require.NoError(t, f.manager.Refresh())
	assert.Equal(t, StatusReady, f.manager.Status())
	user := f.manager.User()
	require.NotNil(t, user)
	assert.Equal(t, "manager", user.Role)

	// The rotated session is still valid.
	assert.True(t, f.manager.Verify())
}

func TestFailedRefreshIsEquivalentToLogout(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret"})
	require.NoError(t, f.manager.Login("alice", "s3cret", ""))

	// Drop all server-side sessions: refresh now gets a 401.
	require.NoError(t, f.manager.Logout())
	require.NoError(t, f.store.Save(&UserProfile{Username: "alice"}))

	err := f.manager.Refresh()
	require.Error(t, err)
	assert.Equal(t, StatusMissing, f.manager.Status())
	assert.Nil(t, f.manager.User())
	cached, loadErr := f.store.Load()
	require.NoError(t, loadErr)
	assert.Nil(t, cached)
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret"})

	// No credential at all: missing.
	assert.Equal(t, StatusMissing, f.manager.Bootstrap())

	require.NoError(t, f.manager.Login("alice", "s3cret", ""))

	// Fresh manager sharing the same credentials and cache: ready.
	restarted := NewManager(f.client, f.store)
	assert.Equal(t, StatusReady, restarted.Bootstrap())
	user := restarted.User()
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
}

func TestBootstrapWithoutCachedProfileRefreshes(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret"})
	require.NoError(t, f.manager.Login("alice", "s3cret", ""))

	// Valid credential, empty cache: bootstrap must repopulate via refresh.
	require.NoError(t, f.store.Clear())
	restarted := NewManager(f.client, f.store)
	assert.Equal(t, StatusReady, restarted.Bootstrap())
	user := restarted.User()
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
}

func TestImpersonation(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "root", Password: "pw", IsSuperuser: true, Role: "admin"})
	target := f.server.AddUser(itsmtest.User{Username: "carol", Password: "x", Role: "agent"})

	require.NoError(t, f.manager.Login("root", "pw", ""))
	require.False(t, f.manager.IsImpersonating())

	require.NoError(t, f.manager.Impersonate(target.ID))
	assert.True(t, f.manager.IsImpersonating())
	user := f.manager.User()
	require.NotNil(t, user)
	assert.Equal(t, "carol", user.Username)

	// Requests now run as the target.
	assert.True(t, f.manager.Verify())

	require.NoError(t, f.manager.StopImpersonating())
	assert.False(t, f.manager.IsImpersonating())
	user = f.manager.User()
	require.NotNil(t, user)
	assert.Equal(t, "root", user.Username)

	// The restored credential is the original session.
	assert.True(t, f.manager.Verify())

	// The stash is cleared once restored.
	err := f.manager.StopImpersonating()
	assert.Error(t, err)
}

func TestChainedImpersonationKeepsOriginalStash(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "root", Password: "pw", IsSuperuser: true})
	first := f.server.AddUser(itsmtest.User{Username: "carol", Password: "x", IsSuperuser: true})
	second := f.server.AddUser(itsmtest.User{Username: "dave", Password: "y"})

	require.NoError(t, f.manager.Login("root", "pw", ""))
	require.NoError(t, f.manager.Impersonate(first.ID))
	require.NoError(t, f.manager.Impersonate(second.ID))

	user := f.manager.User()
	require.NotNil(t, user)
	assert.Equal(t, "dave", user.Username)

	// Stopping restores the original identity, not the intermediate one.
	require.NoError(t, f.manager.StopImpersonating())
	user = f.manager.User()
	require.NotNil(t, user)
	assert.Equal(t, "root", user.Username)
	assert.False(t, f.manager.IsImpersonating())
}

func TestImpersonationRequiresSuperuser(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret"})
	target := f.server.AddUser(itsmtest.User{Username: "carol", Password: "x"})

	require.NoError(t, f.manager.Login("alice", "s3cret", ""))
	err := f.manager.Impersonate(target.ID)
	require.Error(t, err)
	assert.Equal(t, 403, httpclient.StatusCode(err))
	assert.False(t, f.manager.IsImpersonating())

	// The live identity is untouched.
	user := f.manager.User()
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
}

func TestDecodeProfile(t *testing.T) {
	profile, err := DecodeProfile(map[string]any{
		"id":           42,
		"username":     "alice",
		"email":        "a@example.com",
		"first_name":   "Alice",
		"last_name":    "Liddell",
		"role":         "agent",
		"is_superuser": false,
		"department":   "ignored extra field",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ID)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "Liddell", profile.LastName)
	assert.False(t, profile.IsSuperuser)
}
