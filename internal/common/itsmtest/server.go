// Package itsmtest provides an in-process mock of the service desk REST
// API for tests. It implements the consumed contract: cookie-based auth
// endpoints, CSRF double-submit enforcement, and the uniform entity
// collection convention (list/create/get/patch/delete plus named lifecycle
// actions). Tests drive real HTTP against it through httptest.
package itsmtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// SessionCookieName is the mock's opaque session credential cookie.
const SessionCookieName = "sessionid"

// CSRFCookieName mirrors the server-side CSRF cookie convention.
const CSRFCookieName = "csrftoken"

// Collection paths served by the mock, keyed by entity type.
var Collections = map[string]string{
	"incident":    "/incidents/incidents",
	"problem":     "/problems/problems",
	"change":      "/changes/changes",
	"asset":       "/assets/assets",
	"config-item": "/cmdb/config-items",
	"article":     "/knowledge/articles",
}

// ticketPrefixes maps entity types to their ticket number prefixes.
var ticketPrefixes = map[string]string{
	"incident": "INC",
	"problem":  "PRB",
	"change":   "CHG",
}

// User is a mock account.
type User struct {
	ID          string
	Username    string
	Password    string
	Email       string
	FirstName   string
	LastName    string
	Role        string
	IsSuperuser bool
	TOTPCode    string // non-empty requires totp_code on login
}

// Server is the mock API. All exported fields must be set before the first
// request.
type Server struct {
	*httptest.Server

	// BareLists makes list endpoints return a bare JSON array instead of
	// the {results, count} envelope.
	BareLists bool

	mu       sync.Mutex
	users    map[string]*User            // by username
	sessions map[string]string           // session token -> username
	entities map[string][]map[string]any // by entity type
	counters map[string]int
	requests map[string]int // "METHOD path" -> count
}

// RequestCount returns how many times a method+path was hit, for example
// RequestCount("POST", "/auth/login/").
func (s *Server) RequestCount(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// countRequests records every request by method and path.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// NewServer starts a mock API server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		users:    make(map[string]*User),
		sessions: make(map[string]string),
		entities: make(map[string][]map[string]any),
		counters: make(map[string]int),
		requests: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.countRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRFToken", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.Post("/auth/login/", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/verify", s.handleVerify)
	r.Post("/users/{id}/impersonate/", s.handleImpersonate)

	for entityType, prefix := range Collections {
		entityType := entityType
		r.Route(prefix, func(r chi.Router) {
			r.Use(s.requireSession)
			r.Use(s.requireCSRF)
			r.Get("/", s.handleList(entityType))
			r.Post("/", s.handleCreate(entityType))
			r.Get("/{id}/", s.handleGet(entityType))
			r.Patch("/{id}/", s.handlePatch(entityType))
			r.Delete("/{id}/", s.handleDelete(entityType))
			r.Post("/{id}/{action}/", s.handleAction(entityType))
		})
	}

	s.Server = httptest.NewServer(r)
	return s
}

// AddUser registers a mock account and returns it.
func (s *Server) AddUser(u User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "agent"
	}
	s.users[u.Username] = &u
	return &u
}

// Seed inserts an entity directly, bypassing HTTP.
func (s *Server) Seed(entityType string, item map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entityType] = append(s.entities[entityType], item)
}

// Entities returns a copy of the stored items for an entity type.
func (s *Server) Entities(entityType string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.entities[entityType]...)
}

// ActiveSessions reports how many sessions are live.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTPCode string `json:"totp_code"`
	}
	if err := jsoniter.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Malformed request body."})
		return
	}

	s.mu.Lock()
	user, ok := s.users[creds.Username]
	s.mu.Unlock()
	if !ok || user.Password != creds.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid credentials"})
		return
	}
	if user.TOTPCode != "" && creds.TOTPCode != user.TOTPCode {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"totp_code": []string{"Invalid one-time code."},
		})
		return
	}

	s.issueSession(w, user.Username)
	writeJSON(w, http.StatusOK, map[string]any{"user": profileJSON(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := sessionToken(r); ok {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", MaxAge: -1, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{"detail": "Logged out."})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Session expired."})
		return
	}
	// Rotate the session token on refresh.
	if token, ok := sessionToken(r); ok {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
	}
	s.issueSession(w, user.Username)
	writeJSON(w, http.StatusOK, map[string]any{"user": profileJSON(user)})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessionUser(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.sessionUser(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Authentication credentials were not provided."})
		return
	}
	if !actor.IsSuperuser {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": "You do not have permission to impersonate users."})
		return
	}

	targetID := chi.URLParam(r, "id")
	s.mu.Lock()
	var target *User
	for _, u := range s.users {
		if u.ID == targetID {
			target = u
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "User not found."})
		return
	}

	// The impersonator's session stays valid so the client can restore it.
	s.issueSession(w, target.Username)
	writeJSON(w, http.StatusOK, map[string]any{"user": profileJSON(target)})
}

// requireSession rejects requests without a live session cookie.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.sessionUser(r); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Authentication credentials were not provided."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireCSRF enforces the double-submit check on mutating methods: the
// X-CSRFToken header must match the csrftoken cookie.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			cookie, err := r.Cookie(CSRFCookieName)
			if err != nil || cookie.Value == "" || r.Header.Get("X-CSRFToken") != cookie.Value {
				writeJSON(w, http.StatusForbidden, map[string]any{"detail": "CSRF Failed: CSRF token missing or incorrect."})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleList(entityType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		items := make([]map[string]any, 0, len(s.entities[entityType]))
		items = append(items, s.entities[entityType]...)
		s.mu.Unlock()

		if s.BareLists {
			writeJSON(w, http.StatusOK, items)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": items,
			"count":   len(items),
		})
	}
}

func (s *Server) handleCreate(entityType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var item map[string]any
		if err := jsoniter.NewDecoder(r.Body).Decode(&item); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Malformed request body."})
			return
		}

		s.mu.Lock()
		s.counters[entityType]++
		n := s.counters[entityType]
		item["id"] = n
		if prefix, ok := ticketPrefixes[entityType]; ok {
			item["ticket_number"] = fmt.Sprintf("%s-%04d", prefix, n)
		}
		s.entities[entityType] = append(s.entities[entityType], item)
		s.mu.Unlock()

		w.Header().Set("Location", fmt.Sprintf("%s/%d/", Collections[entityType], n))
		writeJSON(w, http.StatusCreated, item)
	}
}

func (s *Server) handleGet(entityType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, _, ok := s.find(entityType, chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func (s *Server) handlePatch(entityType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]any
		if err := jsoniter.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Malformed request body."})
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		item, _, ok := s.findLocked(entityType, chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
			return
		}
		for k, v := range patch {
			item[k] = v
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func (s *Server) handleDelete(entityType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, idx, ok := s.findLocked(entityType, chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
			return
		}
		s.entities[entityType] = append(s.entities[entityType][:idx], s.entities[entityType][idx+1:]...)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAction(entityType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := chi.URLParam(r, "action")
		s.mu.Lock()
		defer s.mu.Unlock()
		item, _, ok := s.findLocked(entityType, chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
			return
		}
		item["status"] = statusForAction(action)
		writeJSON(w, http.StatusOK, item)
	}
}

// statusForAction maps lifecycle verbs onto resulting states.
func statusForAction(action string) string {
	switch action {
	case "approve":
		return "approved"
	case "reject":
		return "rejected"
	case "submit":
		return "submitted"
	case "implement":
		return "implementing"
	case "complete":
		return "completed"
	case "publish":
		return "published"
	case "archive":
		return "archived"
	default:
		return action
	}
}

func (s *Server) find(entityType, id string) (map[string]any, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(entityType, id)
}

func (s *Server) findLocked(entityType, id string) (map[string]any, int, bool) {
	for i, item := range s.entities[entityType] {
		if fmt.Sprintf("%v", item["id"]) == id {
			return item, i, true
		}
	}
	return nil, 0, false
}

// issueSession sets a fresh session cookie plus a CSRF cookie.
func (s *Server) issueSession(w http.ResponseWriter, username string) {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = username
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:  CSRFCookieName,
		Value: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Path:  "/",
	})
}

func (s *Server) sessionUser(r *http.Request) (*User, bool) {
	token, ok := sessionToken(r)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	user, ok := s.users[username]
	return user, ok
}

func sessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func profileJSON(u *User) map[string]any {
	return map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"first_name":   u.FirstName,
		"last_name":    u.LastName,
		"role":         u.Role,
		"is_superuser": u.IsSuperuser,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoniter.NewEncoder(w).Encode(payload)
}
