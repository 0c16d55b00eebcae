package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/common/events"
	"github.com/opsdeck/opsdeck/internal/common/httpclient"
	"github.com/opsdeck/opsdeck/internal/common/itsmtest"
	"github.com/opsdeck/opsdeck/internal/common/session"
)

type fixtureConfig struct {
	serverURL string
}

func (c *fixtureConfig) GetServerURL() string   { return c.serverURL }
func (c *fixtureConfig) GetDefaultRetries() int { return 1 }

type fixture struct {
	server  *itsmtest.Server
	client  *httpclient.HTTPClient
	manager *session.Manager
}

// newFixture starts the mock API and logs in, so collection endpoints
// accept the client's session cookie.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := itsmtest.NewServer()
	t.Cleanup(server.Close)
	server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret", Role: "agent"})

	creds := httpclient.NewMemoryCredentials()
	client := httpclient.NewClient(&fixtureConfig{serverURL: server.URL}, creds, httpclient.ClientOptions{
		Retry: &httpclient.RetryPolicy{Delay: time.Millisecond, ShouldRetry: httpclient.IsRetryable},
	})
	manager := session.NewManager(client, session.NewMemoryProfileStore(), session.ManagerOptions{Stash: creds})
	require.NoError(t, manager.Login("alice", "s3cret", ""))
	return &fixture{server: server, client: client, manager: manager}
}

func TestLoadPopulatesData(t *testing.T) {
	f := newFixture(t)
	f.server.Seed("incident", map[string]any{"title": "printer on fire"})
	f.server.Seed("incident", map[string]any{"title": "vpn down"})

	sub := New(f.client, "/incidents/incidents/", Options{})
	require.NoError(t, sub.Load())

	state := sub.Snapshot()
	assert.False(t, state.IsLoading)
	assert.NoError(t, state.Err)
	require.NotNil(t, state.Data)

	items, err := sub.Items()
	require.NoError(t, err)
	assert.Equal(t, 2, items.Total)
	assert.Len(t, items.Items, 2)
}

func TestDisabledSkipsRequest(t *testing.T) {
	f := newFixture(t)

	sub := New(f.client, "/incidents/incidents/", Options{Disabled: true})
	require.NoError(t, sub.Load())

	state := sub.Snapshot()
	assert.False(t, state.IsLoading)
	assert.Nil(t, state.Data)
	assert.NoError(t, state.Err)
	assert.Equal(t, 0, f.server.RequestCount("GET", "/incidents/incidents/"))
}

func TestRequireAuthGatesOnSession(t *testing.T) {
	f := newFixture(t)
	f.server.Seed("change", map[string]any{"title": "rotate certs"})

	sub := New(f.client, "/changes/changes/", Options{RequireAuth: true, Session: f.manager})
	require.NoError(t, sub.Load())
	assert.Equal(t, 1, f.server.RequestCount("GET", "/changes/changes/"))

	// Once the session is gone the subscription stops fetching.
	require.NoError(t, f.manager.Logout())
	require.NoError(t, sub.Load())
	assert.Equal(t, 1, f.server.RequestCount("GET", "/changes/changes/"))
}

func TestRequireAuthWithoutSessionChecker(t *testing.T) {
	f := newFixture(t)

	sub := New(f.client, "/incidents/incidents/", Options{RequireAuth: true})
	require.NoError(t, sub.Load())
	assert.Equal(t, 0, f.server.RequestCount("GET", "/incidents/incidents/"))
}

func TestErrorStateIsDistinctFromEmpty(t *testing.T) {
	f := newFixture(t)

	sub := New(f.client, "/incidents/incidents/does-not-exist/", Options{})
	err := sub.Load()
	require.Error(t, err)
	assert.Equal(t, 404, httpclient.StatusCode(err))

	state := sub.Snapshot()
	assert.False(t, state.IsLoading)
	assert.Error(t, state.Err)
	assert.Nil(t, state.Data)

	// An empty collection is a success, not an error.
	empty := New(f.client, "/assets/assets/", Options{})
	require.NoError(t, empty.Load())
	state = empty.Snapshot()
	assert.NoError(t, state.Err)
	items, err := empty.Items()
	require.NoError(t, err)
	assert.Equal(t, 0, items.Total)
}

func TestErrorClearedBySuccessfulReload(t *testing.T) {
	f := newFixture(t)

	sub := New(f.client, "/problems/problems/42/", Options{})
	require.Error(t, sub.Load())
	assert.Error(t, sub.Snapshot().Err)

	f.server.Seed("problem", map[string]any{"id": "42", "title": "recurring outage"})
	require.NoError(t, sub.Reload())

	state := sub.Snapshot()
	assert.NoError(t, state.Err)
	require.NotNil(t, state.Data)
}

func TestWatchReloadsOnBroadcast(t *testing.T) {
	f := newFixture(t)
	f.server.Seed("problem", map[string]any{"title": "slow queries"})

	bus := events.NewBus()
	sub := New(f.client, "/problems/problems/", Options{})
	require.NoError(t, sub.Load())
	stop := sub.Watch(bus, "problem")
	defer stop()

	_, _, err := f.client.CreateResource("/problems/problems", map[string]any{"title": "disk full"})
	require.NoError(t, err)
	bus.Publish(events.Event{EntityType: "problem", EntityID: "2", TicketNumber: "PRB-0002"})

	require.Eventually(t, func() bool {
		items, err := sub.Items()
		return err == nil && items.Total == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, f.server.RequestCount("GET", "/problems/problems/"))

	// Unrelated entity types do not trigger a reload.
	bus.Publish(events.Event{EntityType: "incident", EntityID: "7"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, f.server.RequestCount("GET", "/problems/problems/"))
}

func TestItemsHandlesBareArrays(t *testing.T) {
	f := newFixture(t)
	f.server.BareLists = true
	f.server.Seed("article", map[string]any{"title": "reset your password"})

	sub := New(f.client, "/knowledge/articles/", Options{})
	require.NoError(t, sub.Load())

	items, err := sub.Items()
	require.NoError(t, err)
	assert.Equal(t, 1, items.Total)
}
