// Package redminetest provides an in-process fake Redmine API for tests.
package redminetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/steveyegge/rmimport/internal/redmine"
)

// RecordedRequest stores information about a request made to the server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
}

// Server is a fake Redmine serving fixture data with real pagination.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest

	Projects     []redmine.Project
	Statuses     []redmine.Named
	Trackers     []redmine.Named
	Priorities   []redmine.Named
	CustomFields []redmine.CustomField
	Users        map[int64]redmine.User
	Versions     []redmine.Version
	Categories   []redmine.Named
	Issues       []redmine.Issue
	WikiPages    map[string]redmine.WikiPage
	Files        map[string][]byte // attachment path -> content

	// OmitTotal drops total_count from list responses.
	OmitTotal bool
	// Failures maps a path to the status it answers with.
	Failures map[string]int
	// FailOnce maps a path to a status returned on the first request only.
	FailOnce map[string]int
}

// NewServer starts an empty fake server. Close it when done.
func NewServer() *Server {
	s := &Server{
		Users:     make(map[int64]redmine.User),
		WikiPages: make(map[string]redmine.WikiPage),
		Files:     make(map[string][]byte),
		Failures:  make(map[string]int),
		FailOnce:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Requests returns the requests received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestsTo returns the recorded requests for a path.
func (s *Server) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// AttachmentURL registers content and returns the absolute URL it is served at.
func (s *Server) AttachmentURL(id int64, filename string, content []byte) string {
	path := fmt.Sprintf("/attachments/download/%d/%s", id, filename)
	s.mu.Lock()
	s.Files[path] = content
	s.mu.Unlock()
	return s.URL + path
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
	status, failing := s.Failures[r.URL.Path]
	if once, ok := s.FailOnce[r.URL.Path]; ok {
		delete(s.FailOnce, r.URL.Path)
		status, failing = once, true
	}
	s.mu.Unlock()

	if failing {
		http.Error(w, http.StatusText(status), status)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/projects.json":
		s.list(w, r, "projects", toAny(s.Projects))
	case path == "/issue_statuses.json":
		s.list(w, r, "issue_statuses", toAny(s.Statuses))
	case path == "/trackers.json":
		s.list(w, r, "trackers", toAny(s.Trackers))
	case path == "/enumerations/issue_priorities.json":
		s.list(w, r, "issue_priorities", toAny(s.Priorities))
	case path == "/custom_fields.json":
		s.list(w, r, "custom_fields", toAny(s.CustomFields))
	case path == "/users.json":
		s.list(w, r, "users", toAny(s.sortedUsers()))
	case path == "/issues.json":
		s.list(w, r, "issues", toAny(s.filterIssues(r)))
	case strings.HasPrefix(path, "/projects/") && strings.HasSuffix(path, "/versions.json"):
		s.list(w, r, "versions", toAny(s.Versions))
	case strings.HasPrefix(path, "/projects/") && strings.HasSuffix(path, "/issue_categories.json"):
		s.list(w, r, "issue_categories", toAny(s.Categories))
	case strings.HasPrefix(path, "/projects/") && strings.Contains(path, "/wiki/"):
		name := strings.TrimSuffix(path[strings.LastIndex(path, "/wiki/")+len("/wiki/"):], ".json")
		page, ok := s.WikiPages[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]interface{}{"wiki_page": page})
	case strings.HasPrefix(path, "/issues/") && strings.HasSuffix(path, ".json"):
		id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(path, "/issues/"), ".json"), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		for _, issue := range s.Issues {
			if issue.ID == id {
				writeJSON(w, map[string]interface{}{"issue": issue})
				return
			}
		}
		http.NotFound(w, r)
	case strings.HasPrefix(path, "/users/") && strings.HasSuffix(path, ".json"):
		id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(path, "/users/"), ".json"), 10, 64)
		user, ok := s.Users[id]
		if err != nil || !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]interface{}{"user": user})
	case strings.HasPrefix(path, "/attachments/download/"):
		s.mu.Lock()
		content, ok := s.Files[path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(content)
	default:
		http.NotFound(w, r)
	}
}

// list serves one page of items using Redmine's offset/limit semantics.
func (s *Server) list(w http.ResponseWriter, r *http.Request, key string, items []interface{}) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 25
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	resp := map[string]interface{}{
		key:      items[offset:end],
		"offset": offset,
		"limit":  limit,
	}
	if !s.OmitTotal {
		resp["total_count"] = len(items)
	}
	writeJSON(w, resp)
}

func (s *Server) sortedUsers() []redmine.User {
	users := make([]redmine.User, 0, len(s.Users))
	for _, u := range s.Users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (s *Server) filterIssues(r *http.Request) []redmine.Issue {
	ids := r.URL.Query().Get("issue_id")
	if ids == "" {
		return s.Issues
	}
	wanted := make(map[string]bool)
	for _, id := range strings.Split(ids, ",") {
		wanted[strings.TrimSpace(id)] = true
	}
	var out []redmine.Issue
	for _, issue := range s.Issues {
		if wanted[strconv.FormatInt(issue.ID, 10)] {
			out = append(out, issue)
		}
	}
	return out
}

func toAny[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
