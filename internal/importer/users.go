package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steveyegge/rmimport/internal/diagnostics"
	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

// UserResolver maps source accounts to target users. Lookups are memoized
// per source id for the lifetime of one run, including failed ones.
type UserResolver struct {
	api    redmine.API
	dir    target.UserDirectory
	opts   *mapping.Options
	group  string // existing group new and matched users join, or ""
	diag   *diagnostics.Result
	logger *slog.Logger

	cache       map[int64]*types.User
	created     []*types.User
	memberships []*types.Membership
	joined      map[*types.User]bool
}

// NewUserResolver returns a resolver. group must name an existing target
// group or be empty.
func NewUserResolver(api redmine.API, dir target.UserDirectory, opts *mapping.Options, group string,
	diag *diagnostics.Result, logger *slog.Logger) *UserResolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &UserResolver{
		api:    api,
		dir:    dir,
		opts:   opts,
		group:  group,
		diag:   diag,
		logger: logger,
		cache:  make(map[int64]*types.User),
		joined: make(map[*types.User]bool),
	}
}

// Resolve returns the target user for a source user id, or nil when the
// account has no visible email or no target user can be found or created.
// Only transport failures are returned as errors; an HTTP error answer for
// the account means it is unresolvable.
func (r *UserResolver) Resolve(ctx context.Context, id int64) (*types.User, error) {
	if u, ok := r.cache[id]; ok {
		return u, nil
	}
	u, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache[id] = u
	return u, nil
}

// ResolveRef resolves an association, substituting the unknown user and
// recording a diagnostic when it cannot be resolved.
func (r *UserResolver) ResolveRef(ctx context.Context, ref *redmine.Ref) (*types.User, error) {
	if ref == nil {
		return types.UnknownUser, nil
	}
	u, err := r.Resolve(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		r.Unresolved(ref.Name, ref.ID)
		return types.UnknownUser, nil
	}
	return u, nil
}

// Unresolved records a "name:id" diagnostic.
func (r *UserResolver) Unresolved(name string, id int64) {
	r.diag.Add(diagnostics.UnresolvedUsers, fmt.Sprintf("%s:%d", name, id))
}

func (r *UserResolver) lookup(ctx context.Context, id int64) (*types.User, error) {
	src, err := redmine.GetUser(ctx, r.api, id)
	if redmine.IsStatus(err) {
		r.logger.Debug("source user not readable", "id", id, "err", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving user %d: %w", id, err)
	}
	if src.Mail == "" {
		return nil, nil
	}

	u, err := r.dir.FindByVerifiedEmail(ctx, src.Mail)
	if err != nil {
		return nil, fmt.Errorf("looking up user %s: %w", src.Mail, err)
	}
	if u == nil && r.opts.CreateUsers {
		u = &types.User{
			Name:     src.Login,
			FullName: src.DisplayName(),
			Email:    src.Mail,
			Guest:    r.opts.CreateAsGuest,
			External: r.opts.CreateAsExternal,
		}
		if u.Name == "" {
			u.Name = fmt.Sprintf("redmine-%d", id)
		}
		if u.FullName == "" {
			u.FullName = u.Name
		}
		r.created = append(r.created, u)
		r.diag.UserCreated(u.Name)
		r.logger.Debug("staged user", "login", u.Name)
	}
	if u != nil && r.group != "" && !u.InGroup(r.group) && !r.joined[u] {
		r.joined[u] = true
		r.memberships = append(r.memberships, &types.Membership{User: u, Group: r.group})
	}
	return u, nil
}

// Created returns the users staged for creation, in creation order.
func (r *UserResolver) Created() []*types.User {
	return append([]*types.User(nil), r.created...)
}

// Memberships returns the staged group memberships.
func (r *UserResolver) Memberships() []*types.Membership {
	return append([]*types.Membership(nil), r.memberships...)
}
