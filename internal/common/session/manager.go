// Package session holds the authoritative in-memory answer to "am I logged
// in, and as whom". The credential itself is an opaque cookie owned by the
// transport layer; this package only tracks verification status, the cached
// user profile, and the administrative impersonation stack. A Manager is an
// explicit, injectable object so tests construct isolated instances.
package session

import (
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/opsdeck/opsdeck/internal/common/httpclient"
)

// Status describes the session lifecycle state.
type Status string

const (
	// StatusUnknown is the initial state before the first check.
	StatusUnknown Status = "unknown"
	// StatusMissing means no verified credential exists.
	StatusMissing Status = "missing"
	// StatusLoading means a login or refresh is in flight.
	StatusLoading Status = "loading"
	// StatusReady means the credential is verified and a profile is loaded.
	StatusReady Status = "ready"
	// StatusError means the last login attempt failed.
	StatusError Status = "error"
)

// FallbackLoginMessage is shown when neither the server nor the transport
// provided anything more specific.
const FallbackLoginMessage = "Invalid username or password."

// CredentialStash captures and restores the opaque credential state so
// impersonation can return to the original session. The blob is never
// interpreted by this package.
type CredentialStash interface {
	Snapshot() ([]byte, error)
	Restore(snapshot []byte) error
}

// identity pairs a profile with the credential snapshot taken while it was
// live.
type identity struct {
	profile  *UserProfile
	snapshot []byte
}

// identityStack is the two-slot identity model: one live identity (held by
// the Manager) and at most one saved identity. push refuses to overwrite,
// so impersonating while already impersonating preserves the original.
type identityStack struct {
	saved *identity
}

func (s *identityStack) push(id identity) bool {
	if s.saved != nil {
		return false
	}
	s.saved = &id
	return true
}

func (s *identityStack) pop() (identity, bool) {
	if s.saved == nil {
		return identity{}, false
	}
	id := *s.saved
	s.saved = nil
	return id, true
}

// Manager tracks session state and mutates it through the request
// executor. All methods are safe for concurrent use.
type Manager struct {
	client httpclient.HTTPClientInterface
	store  ProfileStore
	stash  CredentialStash // nil disables credential restore on stop-impersonate

	mu        sync.Mutex
	status    Status
	user      *UserProfile
	lastError string
	saved     identityStack
}

// ManagerOptions contains optional Manager collaborators.
type ManagerOptions struct {
	Stash CredentialStash
}

// NewManager creates a session manager in the unknown state.
func NewManager(client httpclient.HTTPClientInterface, store ProfileStore, opts ...ManagerOptions) *Manager {
	m := &Manager{
		client: client,
		store:  store,
		status: StatusUnknown,
	}
	if len(opts) > 0 {
		m.stash = opts[0].Stash
	}
	return m
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// User returns the current profile, or nil outside the ready state.
func (m *Manager) User() *UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	copied := *m.user
	return &copied
}

// LastError returns the message from the last failed login.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Ready reports whether a verified session with a loaded profile exists.
func (m *Manager) Ready() bool {
	return m.Status() == StatusReady
}

// IsImpersonating reports whether a saved identity exists.
func (m *Manager) IsImpersonating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved.saved != nil
}

// Bootstrap settles the session state at application start. The cached
// profile is loaded first for optimistic display, then the server is asked
// to verify the credential. Anything other than a confirmed session lands
// in missing.
func (m *Manager) Bootstrap() Status {
	cached, err := m.store.Load()
	if err != nil {
		log.Debug().Err(err).Msg("failed to load cached profile")
	}
	m.mu.Lock()
	m.user = cached
	m.mu.Unlock()

	if m.Verify() {
		m.mu.Lock()
		hasProfile := m.user != nil
		if hasProfile {
			m.status = StatusReady
		}
		m.mu.Unlock()
		if hasProfile {
			return StatusReady
		}
		// Verified credential but no cached profile: refresh repopulates it.
		if err := m.Refresh(); err == nil {
			return StatusReady
		}
		return m.Status()
	}

	m.mu.Lock()
	m.user = nil
	m.status = StatusMissing
	m.mu.Unlock()
	return StatusMissing
}

// Verify asks the server whether the current credential is valid.
func (m *Manager) Verify() bool {
	payload, err := m.client.Execute(httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   "/auth/verify",
	})
	if err != nil {
		return false
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	if v, ok := obj["ok"].(bool); ok {
		return v
	}
	if v, ok := obj["valid"].(bool); ok {
		return v
	}
	return false
}

// Login authenticates with the server. On success the returned profile is
// cached and the state becomes ready. On failure the state becomes error
// with the most specific available message, and any previously cached
// profile is left untouched.
func (m *Manager) Login(username, password, otpCode string) error {
	m.mu.Lock()
	m.status = StatusLoading
	m.lastError = ""
	m.mu.Unlock()

	body := map[string]any{
		"username": username,
		"password": password,
	}
	if otpCode != "" {
		body["totp_code"] = otpCode
	}

	respBody, _, err := m.client.DoRequest(httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   "/auth/login/",
		Body:   body,
	})
	if err != nil {
		msg := httpclient.ErrorDetail(err, FallbackLoginMessage)
		if msg == "" {
			msg = FallbackLoginMessage
		}
		m.mu.Lock()
		m.status = StatusError
		m.lastError = msg
		m.mu.Unlock()
		return errors.Wrap(err, msg)
	}

	user := gjson.GetBytes(respBody, "user")
	if !user.Exists() {
		m.mu.Lock()
		m.status = StatusError
		m.lastError = FallbackLoginMessage
		m.mu.Unlock()
		return errors.New("login response did not include a user")
	}
	profile, err := DecodeProfile(user.Value())
	if err != nil {
		m.mu.Lock()
		m.status = StatusError
		m.lastError = FallbackLoginMessage
		m.mu.Unlock()
		return err
	}

	if err := m.store.Save(profile); err != nil {
		log.Warn().Err(err).Msg("failed to cache user profile")
	}
	m.mu.Lock()
	m.user = profile
	m.status = StatusReady
	m.lastError = ""
	m.mu.Unlock()
	return nil
}

// Logout ends the session. The server call is best-effort: a network
// failure is swallowed, and the local state always lands in missing with
// an empty profile cache.
func (m *Manager) Logout() error {
	_, _, err := m.client.DoRequest(httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   "/auth/logout",
	})
	if err != nil {
		log.Debug().Err(err).Msg("logout request failed; clearing local session anyway")
	}

	m.mu.Lock()
	m.user = nil
	m.status = StatusMissing
	m.lastError = ""
	m.saved = identityStack{}
	m.mu.Unlock()
	return m.store.Clear()
}

// Refresh rotates the session credential. On success the returned profile
// replaces the cache. Any failure is equivalent to logout: local state is
// cleared and the error is returned.
func (m *Manager) Refresh() error {
	respBody, _, err := m.client.DoRequest(httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
	})
	if err == nil {
		user := gjson.GetBytes(respBody, "user")
		if user.Exists() {
			profile, decodeErr := DecodeProfile(user.Value())
			if decodeErr == nil {
				if saveErr := m.store.Save(profile); saveErr != nil {
					log.Warn().Err(saveErr).Msg("failed to cache user profile")
				}
				m.mu.Lock()
				m.user = profile
				m.status = StatusReady
				m.mu.Unlock()
				return nil
			}
			err = decodeErr
		} else {
			err = errors.New("refresh response did not include a user")
		}
	}

	if clearErr := m.store.Clear(); clearErr != nil {
		log.Warn().Err(clearErr).Msg("failed to clear profile cache")
	}
	m.mu.Lock()
	m.user = nil
	m.status = StatusMissing
	m.mu.Unlock()
	return err
}

// Impersonate swaps the live session for the target user's session. The
// original identity (profile plus an opaque credential snapshot) is stashed
// in the single saved slot; impersonating again while already impersonating
// keeps the original stash.
func (m *Manager) Impersonate(userID string) error {
	var snapshot []byte
	if m.stash != nil {
		var err error
		snapshot, err = m.stash.Snapshot()
		if err != nil {
			return errors.Wrap(err, "failed to snapshot current credential")
		}
	}

	respBody, err := m.client.ResourceAction("/users", userID, "impersonate", nil)
	if err != nil {
		return err
	}

	user := gjson.GetBytes(respBody, "user")
	if !user.Exists() {
		return errors.New("impersonate response did not include a user")
	}
	target, err := DecodeProfile(user.Value())
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.saved.push(identity{profile: m.user, snapshot: snapshot})
	m.user = target
	m.status = StatusReady
	m.mu.Unlock()

	if err := m.store.Save(target); err != nil {
		log.Warn().Err(err).Msg("failed to cache impersonated profile")
	}
	return nil
}

// StopImpersonating restores the stashed identity and clears the stash.
func (m *Manager) StopImpersonating() error {
	m.mu.Lock()
	id, ok := m.saved.pop()
	m.mu.Unlock()
	if !ok {
		return errors.New("no impersonation in progress")
	}

	if m.stash != nil && id.snapshot != nil {
		if err := m.stash.Restore(id.snapshot); err != nil {
			// Keep the stash recoverable if the restore failed.
			m.mu.Lock()
			m.saved.push(id)
			m.mu.Unlock()
			return errors.Wrap(err, "failed to restore original credential")
		}
	}

	m.mu.Lock()
	m.user = id.profile
	if id.profile != nil {
		m.status = StatusReady
	} else {
		m.status = StatusMissing
	}
	m.mu.Unlock()

	if id.profile != nil {
		if err := m.store.Save(id.profile); err != nil {
			log.Warn().Err(err).Msg("failed to cache restored profile")
		}
	} else if err := m.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear profile cache")
	}
	return nil
}
