package cli

import (
	"fmt"

	"github.com/opsdeck/opsdeck/internal/common/httpclient"
	"github.com/opsdeck/opsdeck/internal/common/session"
)

// apiClient builds an HTTP client backed by the persisted cookie jar.
// Cookies saved by a previous login are restored, so authenticated
// commands work without logging in again.
func apiClient() (*httpclient.HTTPClient, *httpclient.CookieCredentials, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, nil, fmt.Errorf("no configuration loaded")
	}

	creds, err := httpclient.NewCookieCredentials(cfg.CookieJarFile())
	if err != nil {
		return nil, nil, err
	}
	if err := creds.LoadFor(cfg.GetServerURL()); err != nil {
		return nil, nil, err
	}

	return httpclient.NewClient(cfg, creds), creds, nil
}

// sessionManager builds the session manager on top of the shared client,
// wiring the profile cache and the impersonation credential stash.
func sessionManager(client *httpclient.HTTPClient, creds *httpclient.CookieCredentials) *session.Manager {
	cfg := GetConfig()
	store := session.NewFileProfileStore(cfg.ProfileCacheFile())
	stash := httpclient.BoundCredentials{Creds: creds, ServerURL: cfg.GetServerURL()}
	return session.NewManager(client, store, session.ManagerOptions{Stash: stash})
}

// saveCredentials persists the cookie jar after a command that changed the
// session.
func saveCredentials(creds *httpclient.CookieCredentials) error {
	return creds.SaveFor(GetConfig().GetServerURL())
}
