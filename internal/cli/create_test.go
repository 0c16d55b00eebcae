package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/common/itsmtest"
)

// newCLIFixture points the package config at a mock server and logs in,
// so commands run the same wiring as a real invocation.
func newCLIFixture(t *testing.T) (*itsmtest.Server, string) {
	t.Helper()
	server := itsmtest.NewServer()
	t.Cleanup(server.Close)
	server.AddUser(itsmtest.User{Username: "alice", Password: "s3cret", Role: "agent"})

	dir := t.TempDir()
	config = &Config{
		ServerURL:        server.URL,
		CookieJarPath:    filepath.Join(dir, "cookies.json"),
		ProfileCachePath: filepath.Join(dir, "profile.json"),
	}
	t.Cleanup(func() { config = nil })

	client, creds, err := apiClient()
	require.NoError(t, err)
	manager := sessionManager(client, creds)
	require.NoError(t, manager.Login("alice", "s3cret", ""))
	require.NoError(t, saveCredentials(creds))
	return server, dir
}

func TestCreateResourcesPostsManifestSpec(t *testing.T) {
	server, dir := newCLIFixture(t)

	path := filepath.Join(dir, "incident.yaml")
	manifest := []byte(`
kind: Incident
spec:
  title: Printer on fire
  priority: high
  impact: 2
`)
	require.NoError(t, os.WriteFile(path, manifest, 0600))

	require.NoError(t, createCmd.Flags().Set("filename", path))
	require.NoError(t, createResources(createCmd, nil))

	entities := server.Entities("incident")
	require.Len(t, entities, 1)
	created := entities[0]
	assert.Equal(t, "Printer on fire", created["title"])
	assert.Equal(t, "high", created["priority"])
	// The encoded manifest keeps scalar types.
	assert.EqualValues(t, 2, created["impact"])
	assert.Equal(t, "INC-0001", created["ticket_number"])
}
