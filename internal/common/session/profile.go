package session

import (
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// UserProfile is the display identity of the logged-in user. It is replaced
// wholesale on every successful login or refresh and cached locally so the
// UI can render optimistically before the next verify completes. The cache
// is never proof of authentication.
type UserProfile struct {
	ID          string `json:"id" mapstructure:"id"`
	Username    string `json:"username" mapstructure:"username"`
	Email       string `json:"email" mapstructure:"email"`
	FirstName   string `json:"first_name" mapstructure:"first_name"`
	LastName    string `json:"last_name" mapstructure:"last_name"`
	Role        string `json:"role" mapstructure:"role"`
	IsSuperuser bool   `json:"is_superuser" mapstructure:"is_superuser"`
}

// DecodeProfile converts the server's loosely-typed user object into a
// UserProfile. Unknown keys are ignored; the server owns the full shape.
func DecodeProfile(raw any) (*UserProfile, error) {
	var profile UserProfile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &profile,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build profile decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode user profile")
	}
	return &profile, nil
}

// ProfileStore caches the last known user profile. Implementations hold
// display data only, never credentials.
type ProfileStore interface {
	Load() (*UserProfile, error)
	Save(profile *UserProfile) error
	Clear() error
}

// fileProfileStore persists the profile as a JSON file, chmod 0600.
type fileProfileStore struct {
	path string
}

// NewFileProfileStore creates a ProfileStore backed by a JSON file at path.
func NewFileProfileStore(path string) ProfileStore {
	return &fileProfileStore{path: path}
}

func (s *fileProfileStore) Load() (*UserProfile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read profile cache")
	}
	var profile UserProfile
	if err := jsoniter.Unmarshal(data, &profile); err != nil {
		// A corrupt cache is discarded, not surfaced.
		return nil, nil
	}
	return &profile, nil
}

func (s *fileProfileStore) Save(profile *UserProfile) error {
	data, err := jsoniter.MarshalIndent(profile, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode profile")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return errors.Wrap(err, "failed to create profile cache directory")
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write profile cache")
	}
	return nil
}

func (s *fileProfileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove profile cache")
	}
	return nil
}

// MemoryProfileStore is an in-memory ProfileStore for tests.
type MemoryProfileStore struct {
	mu      sync.Mutex
	profile *UserProfile
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{}
}

func (s *MemoryProfileStore) Load() (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil, nil
	}
	copied := *s.profile
	return &copied, nil
}

func (s *MemoryProfileStore) Save(profile *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *profile
	s.profile = &copied
	return nil
}

func (s *MemoryProfileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = nil
	return nil
}
