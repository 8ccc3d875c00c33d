package redmine_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/redmine/redminetest"
)

func newTestClient(url string, pageSize int) *redmine.Client {
	c := redmine.NewClient(url, "secret")
	c.PageSize = pageSize
	c.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}
	return c
}

func makeStatuses(n int) []redmine.Named {
	out := make([]redmine.Named, n)
	for i := range out {
		out[i] = redmine.Named{ID: int64(i + 1), Name: fmt.Sprintf("s%d", i+1)}
	}
	return out
}

func TestListPagination(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		pageSize  int
		wantPages int
	}{
		{"empty", 0, 50, 1},
		{"single partial page", 7, 50, 1},
		{"exact multiple", 100, 50, 2},
		{"remainder", 101, 50, 3},
		{"tiny pages", 10, 3, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := redminetest.NewServer()
			defer srv.Close()
			srv.Statuses = makeStatuses(tt.total)

			c := newTestClient(srv.URL, tt.pageSize)
			defer c.Close()

			var offsets []int
			seen := 0
			err := c.List(context.Background(), "/issue_statuses.json", "issue_statuses", nil, func(p redmine.Page) error {
				offsets = append(offsets, p.Offset)
				seen += len(p.Items)
				return nil
			})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(offsets) != tt.wantPages {
				t.Errorf("pages = %d, want %d", len(offsets), tt.wantPages)
			}
			if seen != tt.total {
				t.Errorf("records = %d, want %d", seen, tt.total)
			}
			for i := 1; i < len(offsets); i++ {
				if offsets[i] != offsets[i-1]+tt.pageSize {
					t.Errorf("offset[%d] = %d, want %d", i, offsets[i], offsets[i-1]+tt.pageSize)
				}
			}

			reqs := srv.RequestsTo("/issue_statuses.json")
			if len(reqs) != tt.wantPages {
				t.Errorf("requests = %d, want %d", len(reqs), tt.wantPages)
			}
		})
	}
}

func TestListWithoutTotalIsSinglePage(t *testing.T) {
	srv := redminetest.NewServer()
	defer srv.Close()
	srv.Statuses = makeStatuses(10)
	srv.OmitTotal = true

	c := newTestClient(srv.URL, 3)
	pages := 0
	err := c.List(context.Background(), "/issue_statuses.json", "issue_statuses", nil, func(p redmine.Page) error {
		pages++
		if p.HasTotal {
			t.Error("HasTotal = true, want false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if pages != 1 {
		t.Errorf("pages = %d, want 1", pages)
	}
}

func TestListConsumerErrorStopsTraversal(t *testing.T) {
	srv := redminetest.NewServer()
	defer srv.Close()
	srv.Statuses = makeStatuses(10)

	c := newTestClient(srv.URL, 2)
	pages := 0
	err := c.List(context.Background(), "/issue_statuses.json", "issue_statuses", nil, func(p redmine.Page) error {
		pages++
		if pages == 2 {
			return redmine.ErrInterrupted
		}
		return nil
	})
	if !errors.Is(err, redmine.ErrInterrupted) {
		t.Fatalf("List() error = %v, want ErrInterrupted", err)
	}
	if got := len(srv.RequestsTo("/issue_statuses.json")); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestListStopsOnEmptyPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset == 0 {
			fmt.Fprint(w, `{"trackers":[{"id":1,"name":"Bug"}],"total_count":5}`)
			return
		}
		fmt.Fprint(w, `{"trackers":[],"total_count":5}`)
	}))
	defer srv.Close()

	trackers, err := redmine.Trackers(context.Background(), newTestClient(srv.URL, 1))
	if err != nil {
		t.Fatalf("Trackers() error = %v", err)
	}
	if len(trackers) != 1 || calls != 2 {
		t.Errorf("got %d trackers in %d calls, want 1 in 2", len(trackers), calls)
	}
}

func TestListRemoteErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, "<html>login</html>")
			},
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "forbidden", http.StatusForbidden)
			},
			wantStatus: 403,
		},
		{
			name: "missing data key",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"total_count":1}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := redmine.Trackers(context.Background(), newTestClient(srv.URL, 50))
			var rf *redmine.RemoteFetchError
			if !errors.As(err, &rf) {
				t.Fatalf("error = %v, want RemoteFetchError", err)
			}
			if rf.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", rf.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestListRetriesServerErrors(t *testing.T) {
	srv := redminetest.NewServer()
	defer srv.Close()
	srv.Trackers = []redmine.Named{{ID: 1, Name: "Bug"}}
	srv.FailOnce["/trackers.json"] = http.StatusServiceUnavailable

	trackers, err := redmine.Trackers(context.Background(), newTestClient(srv.URL, 50))
	if err != nil {
		t.Fatalf("Trackers() error = %v", err)
	}
	if len(trackers) != 1 {
		t.Errorf("trackers = %d, want 1", len(trackers))
	}
	if got := len(srv.RequestsTo("/trackers.json")); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestListCancelledContext(t *testing.T) {
	srv := redminetest.NewServer()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestClient(srv.URL, 50).List(ctx, "/trackers.json", "trackers", nil, func(redmine.Page) error { return nil })
	if !redmine.IsInterrupted(err) {
		t.Errorf("List() error = %v, want ErrInterrupted", err)
	}
}

func TestClientTimeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := redmine.NewClient(srv.URL, "")
	c.SetTimeouts(20*time.Millisecond, 50*time.Millisecond)
	start := time.Now()
	_, err := redmine.Trackers(context.Background(), c)

	var rf *redmine.RemoteFetchError
	if !errors.As(err, &rf) {
		t.Fatalf("error = %v, want RemoteFetchError", err)
	}
	if redmine.IsStatus(err) {
		t.Errorf("a timeout carries no status: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Trackers() took %v, want the request timeout to apply", elapsed)
	}
}
