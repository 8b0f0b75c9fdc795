package forge

import (
	"context"
	"sort"

	"github.com/forgestack/forge/internal/domain"
)

// Read accessors delegate to the directory store without taking the
// mutation lock.

func (o *Orchestrator) GetUser(ctx context.Context, uid string) (*domain.User, error) {
	return o.dir.GetUser(ctx, uid)
}

func (o *Orchestrator) GetProject(ctx context.Context, cn string) (*domain.Project, error) {
	return o.dir.GetProject(ctx, cn)
}

func (o *Orchestrator) ListUIDs(ctx context.Context) ([]string, error) {
	return o.dir.ListUIDs(ctx)
}

func (o *Orchestrator) ListEmails(ctx context.Context) ([]string, error) {
	return o.dir.ListEmails(ctx)
}

func (o *Orchestrator) ListUserNames(ctx context.Context) ([]string, error) {
	return o.dir.ListUserNames(ctx)
}

func (o *Orchestrator) ListProjectCNs(ctx context.Context) ([]string, error) {
	return o.dir.ListProjectCNs(ctx)
}

func (o *Orchestrator) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return o.dir.ListProjects(ctx)
}

// AdministeredProjects lists the cns of the projects uid administers
func (o *Orchestrator) AdministeredProjects(ctx context.Context, uid string) ([]string, error) {
	return o.dir.AdministeredProjects(ctx, uid)
}

// MemberProjects lists the cns of the projects uid participates in
func (o *Orchestrator) MemberProjects(ctx context.Context, uid string) ([]string, error) {
	return o.dir.MemberProjects(ctx, uid)
}

// AdministeredUsers lists the users uid administers: the union of the
// member rosters of every project uid holds the admin role in
func (o *Orchestrator) AdministeredUsers(ctx context.Context, uid string) ([]string, error) {
	cns, err := o.dir.AdministeredProjects(ctx, uid)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var uids []string
	for _, cn := range cns {
		project, err := o.dir.GetProject(ctx, cn)
		if err != nil {
			return nil, err
		}
		for _, member := range project.Members {
			if !seen[member] {
				seen[member] = true
				uids = append(uids, member)
			}
		}
	}
	sort.Strings(uids)
	return uids, nil
}

// ProjectMembers lists the members of a project
func (o *Orchestrator) ProjectMembers(ctx context.Context, cn string) ([]string, error) {
	project, err := o.dir.GetProject(ctx, cn)
	if err != nil {
		return nil, err
	}
	return project.Members, nil
}

// ProjectAdmins lists the administrators of a project
func (o *Orchestrator) ProjectAdmins(ctx context.Context, cn string) ([]string, error) {
	project, err := o.dir.GetProject(ctx, cn)
	if err != nil {
		return nil, err
	}
	return project.Admins, nil
}
