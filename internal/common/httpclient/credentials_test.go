package httpclient

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCredentialsCSRFToken(t *testing.T) {
	creds := NewMemoryCredentials()
	u, _ := url.Parse("http://desk.example.com")

	_, ok := creds.CSRFToken(u)
	assert.False(t, ok)

	creds.SetCSRFToken("abc123")
	token, ok := creds.CSRFToken(u)
	require.True(t, ok)
	assert.Equal(t, "abc123", token)

	// URL-encoded values are decoded.
	creds.SetCSRFToken("a%2Bb")
	token, ok = creds.CSRFToken(u)
	require.True(t, ok)
	assert.Equal(t, "a+b", token)

	// Malformed values degrade to absent, never error.
	creds.SetCSRFToken("%zz")
	_, ok = creds.CSRFToken(u)
	assert.False(t, ok)
}

func TestMemoryCredentialsCookieDeletion(t *testing.T) {
	creds := NewMemoryCredentials()
	u, _ := url.Parse("http://desk.example.com")

	creds.SetCookies(u, []*http.Cookie{{Name: "sessionid", Value: "tok"}})
	assert.Len(t, creds.Cookies(u), 1)

	// Server-side cookie clearing uses MaxAge < 0.
	creds.SetCookies(u, []*http.Cookie{{Name: "sessionid", Value: "", MaxAge: -1}})
	assert.Empty(t, creds.Cookies(u))
}

func TestCookieCredentialsPersistence(t *testing.T) {
	serverURL := "http://desk.example.com"
	u, _ := url.Parse(serverURL)
	path := filepath.Join(t.TempDir(), "cookies.json")

	creds, err := NewCookieCredentials(path)
	require.NoError(t, err)

	creds.Jar().SetCookies(u, []*http.Cookie{
		{Name: "sessionid", Value: "opaque-token"},
		{Name: CSRFCookieName, Value: "csrf-value"},
	})
	require.NoError(t, creds.SaveFor(serverURL))

	restored, err := NewCookieCredentials(path)
	require.NoError(t, err)
	require.NoError(t, restored.LoadFor(serverURL))

	token, ok := restored.CSRFToken(u)
	require.True(t, ok)
	assert.Equal(t, "csrf-value", token)

	names := make(map[string]string)
	for _, cookie := range restored.Jar().Cookies(u) {
		names[cookie.Name] = cookie.Value
	}
	assert.Equal(t, "opaque-token", names["sessionid"])
}

func TestCookieCredentialsLoadIgnoresOtherServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")

	creds, err := NewCookieCredentials(path)
	require.NoError(t, err)
	u, _ := url.Parse("http://a.example.com")
	creds.Jar().SetCookies(u, []*http.Cookie{{Name: "sessionid", Value: "tok"}})
	require.NoError(t, creds.SaveFor("http://a.example.com"))

	restored, err := NewCookieCredentials(path)
	require.NoError(t, err)
	require.NoError(t, restored.LoadFor("http://b.example.com"))
	other, _ := url.Parse("http://b.example.com")
	assert.Empty(t, restored.Jar().Cookies(other))
}

func TestCookieCredentialsClear(t *testing.T) {
	serverURL := "http://desk.example.com"
	u, _ := url.Parse(serverURL)
	path := filepath.Join(t.TempDir(), "cookies.json")

	creds, err := NewCookieCredentials(path)
	require.NoError(t, err)
	creds.Jar().SetCookies(u, []*http.Cookie{{Name: "sessionid", Value: "tok"}})
	require.NoError(t, creds.SaveFor(serverURL))

	require.NoError(t, creds.Clear(serverURL))
	assert.Empty(t, creds.Jar().Cookies(u))

	restored, err := NewCookieCredentials(path)
	require.NoError(t, err)
	require.NoError(t, restored.LoadFor(serverURL))
	assert.Empty(t, restored.Jar().Cookies(u))
}
