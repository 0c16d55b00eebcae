package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// CSRFCookieName is the cookie the server uses for double-submit CSRF
// protection. The value is not a secret; it is echoed back in the
// X-CSRFToken header on state-changing requests.
const CSRFCookieName = "csrftoken"

// CredentialStore supplies the cookie jar carrying the opaque session
// credential and exposes the CSRF token for mutating requests. The session
// cookie itself is never read by application code; only the server sets and
// consumes it. Implementations must degrade malformed cookie values to
// "no token" rather than returning an error.
type CredentialStore interface {
	// Jar returns the cookie jar attached to outgoing requests.
	Jar() http.CookieJar

	// CSRFToken returns the decoded CSRF cookie value for the given URL,
	// and whether one is present.
	CSRFToken(u *url.URL) (string, bool)
}

// CookieCredentials is the production CredentialStore: a real cookie jar,
// optionally persisted to disk so the session survives process restarts.
// Only cookie name/value pairs are persisted; the file is chmod 0600.
type CookieCredentials struct {
	mu   sync.Mutex
	jar  http.CookieJar
	path string // empty disables persistence
}

var _ CredentialStore = &CookieCredentials{}

// persistedCookies is the on-disk shape of a saved cookie jar.
type persistedCookies struct {
	ServerURL string `json:"server_url"`
	Cookies   []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"cookies"`
}

// NewCookieCredentials creates a cookie-jar-backed credential store.
// If path is non-empty, SaveFor and LoadFor persist and restore the
// cookies for a given server URL at that location.
func NewCookieCredentials(path string) (*CookieCredentials, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}
	return &CookieCredentials{jar: jar, path: path}, nil
}

// Jar returns the store itself. CookieCredentials implements
// http.CookieJar by delegating to an inner jar, so Clear and RestoreFor
// can swap the jar without invalidating the http.Client holding it.
func (c *CookieCredentials) Jar() http.CookieJar {
	return c
}

// SetCookies implements http.CookieJar.
func (c *CookieCredentials) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jar.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (c *CookieCredentials) Cookies(u *url.URL) []*http.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jar.Cookies(u)
}

// CSRFToken reads the CSRF cookie for the given URL. A missing or
// malformed value yields ("", false).
func (c *CookieCredentials) CSRFToken(u *url.URL) (string, bool) {
	for _, cookie := range c.Cookies(u) {
		if cookie.Name != CSRFCookieName {
			continue
		}
		value, err := url.QueryUnescape(cookie.Value)
		if err != nil || value == "" {
			return "", false
		}
		return value, true
	}
	return "", false
}

// LoadFor restores previously saved cookies for serverURL into the jar.
// A missing file is not an error; there is simply no session yet.
func (c *CookieCredentials) LoadFor(serverURL string) error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read cookie file")
	}

	var saved persistedCookies
	if err := jsoniter.Unmarshal(data, &saved); err != nil {
		// A corrupt cookie file degrades to an empty jar.
		return nil
	}
	if saved.ServerURL != serverURL {
		return nil
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return errors.Wrap(err, "invalid server URL")
	}
	cookies := make([]*http.Cookie, 0, len(saved.Cookies))
	for _, sc := range saved.Cookies {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value})
	}
	c.SetCookies(u, cookies)
	return nil
}

// SaveFor persists the jar's cookies for serverURL. Call after any request
// that may have rotated the session (login, refresh, impersonate).
func (c *CookieCredentials) SaveFor(serverURL string) error {
	if c.path == "" {
		return nil
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return errors.Wrap(err, "invalid server URL")
	}

	saved := persistedCookies{ServerURL: serverURL}
	for _, cookie := range c.Cookies(u) {
		saved.Cookies = append(saved.Cookies, struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}{Name: cookie.Name, Value: cookie.Value})
	}

	data, err := jsoniter.MarshalIndent(saved, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode cookies")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return errors.Wrap(err, "failed to create cookie directory")
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write cookie file")
	}
	return nil
}

// Clear drops all cookies for serverURL and removes the persisted file.
func (c *CookieCredentials) Clear(serverURL string) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.Wrap(err, "failed to reset cookie jar")
	}
	c.mu.Lock()
	c.jar = jar
	c.mu.Unlock()
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove cookie file")
	}
	return nil
}

// SnapshotFor serializes the jar's cookies for serverURL as an opaque
// blob. The caller never inspects the contents; the blob exists so
// impersonation can stash the original session and restore it later.
func (c *CookieCredentials) SnapshotFor(serverURL string) ([]byte, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid server URL")
	}
	saved := persistedCookies{ServerURL: serverURL}
	for _, cookie := range c.Cookies(u) {
		saved.Cookies = append(saved.Cookies, struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}{Name: cookie.Name, Value: cookie.Value})
	}
	return jsoniter.Marshal(saved)
}

// RestoreFor replaces the jar's cookies for serverURL with a snapshot
// previously taken by SnapshotFor.
func (c *CookieCredentials) RestoreFor(serverURL string, snapshot []byte) error {
	var saved persistedCookies
	if err := jsoniter.Unmarshal(snapshot, &saved); err != nil {
		return errors.Wrap(err, "invalid credential snapshot")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.Wrap(err, "failed to reset cookie jar")
	}
	c.mu.Lock()
	c.jar = jar
	c.mu.Unlock()

	u, err := url.Parse(serverURL)
	if err != nil {
		return errors.Wrap(err, "invalid server URL")
	}
	cookies := make([]*http.Cookie, 0, len(saved.Cookies))
	for _, sc := range saved.Cookies {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value})
	}
	c.SetCookies(u, cookies)
	return nil
}

// BoundCredentials ties a CookieCredentials to one server URL so callers
// holding only the pair can snapshot and restore the session.
type BoundCredentials struct {
	Creds     *CookieCredentials
	ServerURL string
}

// Snapshot captures the current opaque credential state.
func (b BoundCredentials) Snapshot() ([]byte, error) {
	return b.Creds.SnapshotFor(b.ServerURL)
}

// Restore replaces the credential state with a prior snapshot.
func (b BoundCredentials) Restore(snapshot []byte) error {
	return b.Creds.RestoreFor(b.ServerURL, snapshot)
}

// MemoryCredentials is an in-memory CredentialStore for tests. It stores
// cookies in a flat map keyed by name, ignoring domain and path scoping.
type MemoryCredentials struct {
	mu      sync.Mutex
	cookies map[string]string
}

var _ CredentialStore = &MemoryCredentials{}

// NewMemoryCredentials creates an empty in-memory credential store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{cookies: make(map[string]string)}
}

// Jar returns the store itself; MemoryCredentials implements
// http.CookieJar directly.
func (m *MemoryCredentials) Jar() http.CookieJar {
	return m
}

// SetCookies records cookies by name. An empty value with MaxAge < 0
// deletes the cookie, matching server-side cookie clearing.
func (m *MemoryCredentials) SetCookies(u *url.URL, cookies []*http.Cookie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cookie := range cookies {
		if cookie.MaxAge < 0 {
			delete(m.cookies, cookie.Name)
			continue
		}
		m.cookies[cookie.Name] = cookie.Value
	}
}

// Cookies returns all stored cookies regardless of URL.
func (m *MemoryCredentials) Cookies(u *url.URL) []*http.Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Cookie, 0, len(m.cookies))
	for name, value := range m.cookies {
		out = append(out, &http.Cookie{Name: name, Value: value})
	}
	return out
}

// SetCSRFToken stores a CSRF cookie value directly.
func (m *MemoryCredentials) SetCSRFToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies[CSRFCookieName] = token
}

// Snapshot serializes the cookie map as an opaque blob.
func (m *MemoryCredentials) Snapshot() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return jsoniter.Marshal(m.cookies)
}

// Restore replaces the cookie map with a prior snapshot.
func (m *MemoryCredentials) Restore(snapshot []byte) error {
	cookies := make(map[string]string)
	if err := jsoniter.Unmarshal(snapshot, &cookies); err != nil {
		return errors.Wrap(err, "invalid credential snapshot")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = cookies
	return nil
}

// CSRFToken reads the CSRF cookie. Malformed values degrade to absent.
func (m *MemoryCredentials) CSRFToken(u *url.URL) (string, bool) {
	m.mu.Lock()
	raw, ok := m.cookies[CSRFCookieName]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	value, err := url.QueryUnescape(raw)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}
