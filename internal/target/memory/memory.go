// Package memory implements an in-memory target, used for dry runs against
// a snapshot and by tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

// Store is a thread-safe in-memory target.Target.
type Store struct {
	mu          sync.Mutex
	schema      *types.Schema
	milestones  map[int64][]*types.Milestone
	users       []*types.User
	groups      map[string]bool
	memberships []*types.Membership
	issues      map[int64]map[int64]*types.Issue
	linkSpecs   map[string]*types.LinkSpec
	links       []*types.IssueLink
	nextID      int64
	commits     int

	// CommitErr, when set, is returned by Commit without applying anything.
	CommitErr error
}

var _ target.Target = (*Store)(nil)

// New returns a store whose issue settings are a copy of schema.
func New(schema *types.Schema) *Store {
	return &Store{
		schema:     schema.Clone(),
		milestones: make(map[int64][]*types.Milestone),
		groups:     make(map[string]bool),
		issues:     make(map[int64]map[int64]*types.Issue),
		linkSpecs:  make(map[string]*types.LinkSpec),
		nextID:     1,
	}
}

func (s *Store) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// AddMilestone seeds a milestone.
func (s *Store) AddMilestone(m *types.Milestone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.id()
	}
	s.milestones[m.ProjectID] = append(s.milestones[m.ProjectID], m)
}

// AddUser seeds a user account.
func (s *Store) AddUser(u *types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users = append(s.users, u)
}

// AddGroup seeds a group.
func (s *Store) AddGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[name] = true
}

// AddIssue seeds an existing issue number in a project.
func (s *Store) AddIssue(projectID, number int64, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project(projectID)[number] = &types.Issue{ProjectID: projectID, Number: number, Title: title}
}

// AddLinkSpec seeds an instance-wide link spec.
func (s *Store) AddLinkSpec(spec *types.LinkSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec.ID == 0 {
		spec.ID = s.id()
	}
	s.linkSpecs[spec.Name] = spec
}

func (s *Store) project(projectID int64) map[int64]*types.Issue {
	m, ok := s.issues[projectID]
	if !ok {
		m = make(map[int64]*types.Issue)
		s.issues[projectID] = m
	}
	return m
}

// IssueSchema returns a copy of the current issue settings.
func (s *Store) IssueSchema(ctx context.Context) (*types.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema.Clone(), nil
}

// Milestones returns the milestones of a project in insertion order.
func (s *Store) Milestones(ctx context.Context, projectID int64) ([]*types.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Milestone, 0, len(s.milestones[projectID]))
	for _, m := range s.milestones[projectID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) FindByVerifiedEmail(ctx context.Context, email string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (s *Store) GroupExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[name], nil
}

func (s *Store) IssueExists(ctx context.Context, projectID, number int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.issues[projectID][number]
	return ok, nil
}

func (s *Store) MaxIssueNumber(ctx context.Context, projectID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for n := range s.issues[projectID] {
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (s *Store) FindLinkSpec(ctx context.Context, name string) (*types.LinkSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkSpecs[name], nil
}

// Commit applies b. A number collision rejects the whole batch.
func (s *Store) Commit(ctx context.Context, b *target.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CommitErr != nil {
		return s.CommitErr
	}
	seen := make(map[int64]bool, len(b.Issues))
	for _, issue := range b.Issues {
		if _, ok := s.issues[b.ProjectID][issue.Number]; ok || seen[issue.Number] {
			return fmt.Errorf("issue #%d already exists", issue.Number)
		}
		seen[issue.Number] = true
	}

	for _, f := range b.FieldSpecs {
		s.putField(f)
	}
	for _, m := range b.Milestones {
		s.putMilestone(b.ProjectID, m)
	}
	for _, u := range b.Users {
		if u.ID == 0 {
			u.ID = s.id()
		}
		s.users = append(s.users, u)
	}
	for _, m := range b.Memberships {
		if !m.User.InGroup(m.Group) {
			m.User.Groups = append(m.User.Groups, m.Group)
		}
		s.memberships = append(s.memberships, m)
	}
	for _, spec := range b.LinkSpecs {
		if spec.ID == 0 {
			spec.ID = s.id()
		}
		s.linkSpecs[spec.Name] = spec
	}
	for _, issue := range b.Issues {
		s.project(b.ProjectID)[issue.Number] = issue
	}
	s.links = append(s.links, b.Links...)
	s.commits++
	return nil
}

func (s *Store) putField(f *types.FieldSpec) {
	for i, existing := range s.schema.Fields {
		if existing.Name == f.Name {
			s.schema.Fields[i] = f
			return
		}
	}
	s.schema.Fields = append(s.schema.Fields, f)
}

func (s *Store) putMilestone(projectID int64, m *types.Milestone) {
	for i, existing := range s.milestones[projectID] {
		if existing.Name == m.Name {
			m.ID = existing.ID
			s.milestones[projectID][i] = m
			return
		}
	}
	if m.ID == 0 {
		m.ID = s.id()
	}
	s.milestones[projectID] = append(s.milestones[projectID], m)
}

// Commits returns the number of successful Commit calls.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Issues returns the issues of a project ordered by number.
func (s *Store) Issues(projectID int64) []*types.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Issue, 0, len(s.issues[projectID]))
	for _, issue := range s.issues[projectID] {
		out = append(out, issue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Links returns every committed link.
func (s *Store) Links() []*types.IssueLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.IssueLink(nil), s.links...)
}

// Users returns every known user.
func (s *Store) Users() []*types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.User(nil), s.users...)
}

// Attachments is an in-memory target.AttachmentStore.
type Attachments struct {
	mu    sync.Mutex
	files map[string][]byte
}

var _ target.AttachmentStore = (*Attachments)(nil)

// NewAttachments returns an empty attachment store.
func NewAttachments() *Attachments {
	return &Attachments{files: make(map[string][]byte)}
}

func (a *Attachments) Save(ctx context.Context, projectID int64, ownerID, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("reading attachment %s: %w", filename, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	stored := target.UniqueName(filename, func(name string) bool {
		_, ok := a.files[a.key(projectID, ownerID, name)]
		return ok
	})
	a.files[a.key(projectID, ownerID, stored)] = buf.Bytes()
	return stored, nil
}

func (a *Attachments) URLFor(projectID int64, ownerID, stored string) string {
	return target.DownloadPath(projectID, ownerID, stored)
}

func (a *Attachments) Remove(ctx context.Context, projectID int64, ownerID, stored string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.files, a.key(projectID, ownerID, stored))
	return nil
}

// Get returns the content of a stored attachment.
func (a *Attachments) Get(projectID int64, ownerID, stored string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.files[a.key(projectID, ownerID, stored)]
	return b, ok
}

// Len returns the number of stored attachments.
func (a *Attachments) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.files)
}

func (a *Attachments) key(projectID int64, ownerID, name string) string {
	return fmt.Sprintf("%d/%s/%s", projectID, ownerID, name)
}
