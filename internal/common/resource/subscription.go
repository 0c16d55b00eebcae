// Package resource gives every consumer a uniform subscription model over
// the request executor: fetch a path, expose {data, loading, error}, reload
// on demand or when a broadcast signals that the watched entity type
// changed. It is the read-side counterpart of the mutation verbs on the
// HTTP client.
package resource

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/opsdeck/opsdeck/internal/common/events"
	"github.com/opsdeck/opsdeck/internal/common/httpclient"
)

// SessionChecker reports whether a verified session exists. The session
// manager satisfies this.
type SessionChecker interface {
	Ready() bool
}

// Options configures a Subscription.
type Options struct {
	// Disabled skips every load; the subscription stays empty with
	// loading cleared.
	Disabled bool
	// RequireAuth skips loads while the session is not ready.
	RequireAuth bool
	// Session is consulted when RequireAuth is set.
	Session SessionChecker
	// Request carries extra request options (query params, headers,
	// retries). Its Path is ignored; the subscription's path wins.
	Request httpclient.RequestOptions
}

// State is a point-in-time snapshot of a subscription. Loading, error, and
// empty data are three independent facts: a consumer must not infer one
// from the others.
type State struct {
	Data      any    // decoded payload from the last successful load
	Raw       []byte // raw body from the last successful load
	IsLoading bool
	Err       error // failure of the last load, nil after a success
}

// Subscription tracks one path's data for one consumer. Overlapping loads
// are last-write-wins: whichever finishes last owns the state.
type Subscription struct {
	client httpclient.HTTPClientInterface
	path   string
	opts   Options

	mu    sync.Mutex
	state State
}

// New creates a subscription for path. No request is made until Load.
func New(client httpclient.HTTPClientInterface, path string, opts Options) *Subscription {
	return &Subscription{client: client, path: path, opts: opts}
}

// Load fetches the path, unless the subscription is disabled or auth is
// required and missing, in which case the load is skipped and loading is
// cleared. Returns the load error, nil when skipped or successful.
func (s *Subscription) Load() error {
	if s.skip() {
		s.mu.Lock()
		s.state.IsLoading = false
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.state.IsLoading = true
	s.mu.Unlock()

	req := s.opts.Request
	req.Path = s.path
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.mu.Lock()
		s.state.Err = err
		s.state.IsLoading = false
		s.mu.Unlock()
		return err
	}

	payload, err := resp.Payload()
	if err != nil {
		s.mu.Lock()
		s.state.Err = err
		s.state.IsLoading = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state.Data = payload
	s.state.Raw = resp.Body
	s.state.Err = nil
	s.state.IsLoading = false
	s.mu.Unlock()
	return nil
}

// Reload re-runs the fetch. Used after mutations.
func (s *Subscription) Reload() error {
	return s.Load()
}

// Snapshot returns the current state.
func (s *Subscription) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Items normalizes the last loaded body as a collection, accepting both
// the bare-array and {results, count} envelope shapes.
func (s *Subscription) Items() (httpclient.ListResult, error) {
	s.mu.Lock()
	raw := s.state.Raw
	s.mu.Unlock()
	return httpclient.UnwrapList(raw)
}

// Watch reloads the subscription whenever the bus broadcasts a mutation of
// the given entity type. The returned stop function ends the watch.
func (s *Subscription) Watch(bus *events.Bus, entityType string) func() {
	ch, cancel := bus.Subscribe(entityType)
	go func() {
		for ev := range ch {
			if err := s.Reload(); err != nil {
				log.Debug().Err(err).Str("entity_type", ev.EntityType).
					Msg("reload after broadcast failed")
			}
		}
	}()
	return cancel
}

func (s *Subscription) skip() bool {
	if s.opts.Disabled {
		return true
	}
	if s.opts.RequireAuth {
		return s.opts.Session == nil || !s.opts.Session.Ready()
	}
	return false
}
