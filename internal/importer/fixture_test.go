package importer

import (
	"fmt"
	"testing"

	"github.com/steveyegge/rmimport/internal/diagnostics"
	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/redmine/redminetest"
	"github.com/steveyegge/rmimport/internal/target/memory"
	"github.com/steveyegge/rmimport/internal/types"
)

const testProject = 3

func strPtr(s string) *string { return &s }

// testOptions maps the stock source enumerations used by the fixtures.
func testOptions() *mapping.Options {
	opts := mapping.DefaultOptions()
	opts.StatusMappings = []mapping.Entry{
		{Source: "New", Target: "Open"},
		{Source: "Closed", Target: "Closed"},
	}
	opts.TrackerMappings = []mapping.Entry{{Source: "Bug", Target: "Type::Bug"}}
	opts.PriorityMappings = []mapping.Entry{{Source: "Normal", Target: "Priority::Normal"}}
	return opts
}

// testSchema is the default schema plus a Category field.
func testSchema() *types.Schema {
	s := types.DefaultSchema()
	s.Fields = append(s.Fields, &types.FieldSpec{
		Name: "Category", Type: types.FieldChoice, AllowEmpty: true, NameOfEmptyValue: "Undefined",
	})
	return s
}

func counterUUID() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("uuid-%d", n)
	}
}

type harness struct {
	srv    *redminetest.Server
	client *redmine.Client
	store  *memory.Store
	diag   *diagnostics.Result
	index  *ReferenceIndex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := redminetest.NewServer()
	t.Cleanup(srv.Close)
	client := redmine.NewClient(srv.URL, "secret")
	t.Cleanup(func() { _ = client.Close() })
	return &harness{
		srv:    srv,
		client: client,
		store:  memory.New(testSchema()),
		diag:   diagnostics.New(),
		index:  NewReferenceIndex(),
	}
}

// transformer returns a transformer over the harness with opts resolved
// against the store schema.
func (h *harness) transformer(t *testing.T, opts *mapping.Options, preserve bool) *Transformer {
	t.Helper()
	schema := testSchema()
	tables, err := mapping.Resolve(schema, opts)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	users := NewUserResolver(h.client, h.store, opts, "", h.diag, nil)
	return NewTransformer(TransformConfig{
		ProjectID:       testProject,
		Options:         opts,
		Tables:          tables,
		Schema:          schema,
		PreserveNumbers: preserve,
		NewUUID:         counterUUID(),
	}, h.client, h.store, h.index, users, h.diag, nil)
}

// addUser registers a source account and a target account with the same
// email.
func (h *harness) addUser(id int64, login string) *types.User {
	email := login + "@example.com"
	h.srv.Users[id] = redmine.User{ID: id, Login: login, Firstname: login, Lastname: "Tester", Mail: email}
	u := &types.User{Name: login, Email: email}
	h.store.AddUser(u)
	return u
}
