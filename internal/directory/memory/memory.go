// Package memory provides an in-memory Directory implementation with
// the same semantics as the SQL adapters: atomic uniqueness, the
// last-admin invariant and distinct not-found signalling. It backs unit
// tests and ephemeral single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/forgestack/forge/internal/directory"
	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
)

type memoryDirectory struct {
	mu       sync.Mutex
	users    map[string]domain.User
	projects map[string]*project
}

type project struct {
	cn          string
	description string
	admins      map[string]bool
	members     map[string]bool
	repos       map[domain.RepoKind]domain.Repository
}

// NewMemoryDirectory creates an empty in-memory directory store
func NewMemoryDirectory() directory.Directory {
	return &memoryDirectory{
		users:    make(map[string]domain.User),
		projects: make(map[string]*project),
	}
}

func (d *memoryDirectory) CreateUser(ctx context.Context, user *domain.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[user.UID]; ok {
		return apperrors.NewUniquenessError(fmt.Sprintf("user %q already exists", user.UID))
	}
	for _, u := range d.users {
		if u.Email == user.Email {
			return apperrors.NewUniquenessError(fmt.Sprintf("email %q already exists", user.Email))
		}
	}
	d.users[user.UID] = *user
	return nil
}

func (d *memoryDirectory) GetUser(ctx context.Context, uid string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[uid]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	return &u, nil
}

func (d *memoryDirectory) UpdateUser(ctx context.Context, user *domain.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prior, ok := d.users[user.UID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("user %q", user.UID))
	}
	for uid, u := range d.users {
		if uid != user.UID && u.Email == user.Email {
			return apperrors.NewUniquenessError(fmt.Sprintf("email %q already in use", user.Email))
		}
	}
	updated := *user
	if updated.PasswordHash == "" {
		updated.PasswordHash = prior.PasswordHash
	}
	d.users[user.UID] = updated
	return nil
}

func (d *memoryDirectory) DeleteUser(ctx context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[uid]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	for _, p := range d.projects {
		delete(p.admins, uid)
		delete(p.members, uid)
	}
	delete(d.users, uid)
	return nil
}

func (d *memoryDirectory) SetUserLocked(ctx context.Context, uid string, locked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[uid]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	u.Locked = locked
	d.users[uid] = u
	return nil
}

func (d *memoryDirectory) SetUserPassword(ctx context.Context, uid, passwordHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[uid]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	u.PasswordHash = passwordHash
	d.users[uid] = u
	return nil
}

func (d *memoryDirectory) CreateProject(ctx context.Context, p *domain.Project) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.projects[p.CN]; ok {
		return apperrors.NewUniquenessError(fmt.Sprintf("project %q already exists", p.CN))
	}
	stored := &project{
		cn:          p.CN,
		description: p.Description,
		admins:      make(map[string]bool),
		members:     make(map[string]bool),
		repos:       make(map[domain.RepoKind]domain.Repository),
	}
	for _, uid := range p.Admins {
		stored.admins[uid] = true
	}
	for _, uid := range p.Members {
		stored.members[uid] = true
	}
	for _, r := range p.Repos {
		stored.repos[r.Kind] = r
	}
	d.projects[p.CN] = stored
	return nil
}

func (d *memoryDirectory) GetProject(ctx context.Context, cn string) (*domain.Project, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.getProjectLocked(cn)
}

func (d *memoryDirectory) getProjectLocked(cn string) (*domain.Project, error) {
	p, ok := d.projects[cn]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	out := &domain.Project{
		CN:          p.cn,
		Description: p.description,
		Admins:      sortedKeys(p.admins),
		Members:     sortedKeys(p.members),
	}
	kinds := make([]string, 0, len(p.repos))
	for k := range p.repos {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		out.Repos = append(out.Repos, p.repos[domain.RepoKind(k)])
	}
	return out, nil
}

func (d *memoryDirectory) UpdateProject(ctx context.Context, p *domain.Project) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored, ok := d.projects[p.CN]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("project %q", p.CN))
	}
	stored.description = p.Description
	return nil
}

func (d *memoryDirectory) DeleteProject(ctx context.Context, cn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.projects[cn]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	delete(d.projects, cn)
	return nil
}

func (d *memoryDirectory) AddMember(ctx context.Context, cn, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.requireEntities(cn, uid)
	if err != nil {
		return err
	}
	p.members[uid] = true
	return nil
}

func (d *memoryDirectory) RemoveMember(ctx context.Context, cn, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.projects[cn]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	if !p.members[uid] {
		return apperrors.NewNotFoundError(fmt.Sprintf("membership of %q in project %q", uid, cn))
	}
	if p.admins[uid] {
		if len(p.admins) <= 1 {
			return apperrors.NewInvariantError(fmt.Sprintf("cannot remove %q: project %q must retain at least one administrator", uid, cn))
		}
		delete(p.admins, uid)
	}
	delete(p.members, uid)
	return nil
}

func (d *memoryDirectory) AddAdmin(ctx context.Context, cn, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.requireEntities(cn, uid)
	if err != nil {
		return err
	}
	p.members[uid] = true
	p.admins[uid] = true
	return nil
}

func (d *memoryDirectory) RemoveAdmin(ctx context.Context, cn, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.projects[cn]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	if !p.admins[uid] {
		return apperrors.NewNotFoundError(fmt.Sprintf("admin role of %q in project %q", uid, cn))
	}
	if len(p.admins) <= 1 {
		return apperrors.NewInvariantError(fmt.Sprintf("cannot remove %q: project %q must retain at least one administrator", uid, cn))
	}
	delete(p.admins, uid)
	return nil
}

func (d *memoryDirectory) AddRepository(ctx context.Context, cn string, repo domain.Repository) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.projects[cn]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	if _, ok := p.repos[repo.Kind]; ok {
		return apperrors.NewUniquenessError(fmt.Sprintf("project %q already has a %s repository", cn, repo.Kind))
	}
	p.repos[repo.Kind] = repo
	return nil
}

func (d *memoryDirectory) RemoveRepository(ctx context.Context, cn string, kind domain.RepoKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.projects[cn]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	if _, ok := p.repos[kind]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("%s repository of project %q", kind, cn))
	}
	delete(p.repos, kind)
	return nil
}

func (d *memoryDirectory) ListUIDs(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	uids := make([]string, 0, len(d.users))
	for uid := range d.users {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids, nil
}

func (d *memoryDirectory) ListEmails(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	emails := make([]string, 0, len(d.users))
	for _, u := range d.users {
		emails = append(emails, u.Email)
	}
	sort.Strings(emails)
	return emails, nil
}

func (d *memoryDirectory) ListUserNames(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	uids := make([]string, 0, len(d.users))
	for uid := range d.users {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	names := make([]string, 0, len(uids))
	for _, uid := range uids {
		u := d.users[uid]
		names = append(names, u.FullName())
	}
	return names, nil
}

func (d *memoryDirectory) ListProjectCNs(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cns := make([]string, 0, len(d.projects))
	for cn := range d.projects {
		cns = append(cns, cn)
	}
	sort.Strings(cns)
	return cns, nil
}

func (d *memoryDirectory) ListProjects(ctx context.Context) ([]domain.Project, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cns := make([]string, 0, len(d.projects))
	for cn := range d.projects {
		cns = append(cns, cn)
	}
	sort.Strings(cns)

	out := make([]domain.Project, 0, len(cns))
	for _, cn := range cns {
		p, err := d.getProjectLocked(cn)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (d *memoryDirectory) AdministeredProjects(ctx context.Context, uid string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[uid]; !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	var cns []string
	for cn, p := range d.projects {
		if p.admins[uid] {
			cns = append(cns, cn)
		}
	}
	sort.Strings(cns)
	return cns, nil
}

func (d *memoryDirectory) MemberProjects(ctx context.Context, uid string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[uid]; !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	var cns []string
	for cn, p := range d.projects {
		if p.members[uid] {
			cns = append(cns, cn)
		}
	}
	sort.Strings(cns)
	return cns, nil
}

func (d *memoryDirectory) Migrate(ctx context.Context) error { return nil }

func (d *memoryDirectory) Close() error { return nil }

func (d *memoryDirectory) requireEntities(cn, uid string) (*project, error) {
	p, ok := d.projects[cn]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	if _, ok := d.users[uid]; !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	return p, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
