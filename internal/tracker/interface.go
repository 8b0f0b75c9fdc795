package tracker

import (
	"context"

	"github.com/forgestack/forge/internal/domain"
)

// Tracker maintains a best-effort mirror of projects, users and
// memberships inside an external issue-tracking service. The tracker
// holds no authoritative state; the orchestrator is the only
// synchronizer, and the mirror may be transiently out of sync with the
// directory store between a mutation and the corresponding sync call.
type Tracker interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, cn string) error

	// HideProject suppresses the default public visibility of a
	// freshly created project
	HideProject(ctx context.Context, cn string) error

	// CreateUser receives the plaintext password so the tracker can
	// set up its own credential; the directory store only ever holds
	// the hash
	CreateUser(ctx context.Context, user *domain.User, plainPassword string) error
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, uid string) error

	AddMember(ctx context.Context, cn, uid string) error
	AddAdmin(ctx context.Context, cn, uid string) error
	RemoveMember(ctx context.Context, cn, uid string) error
	RemoveAdmin(ctx context.Context, cn, uid string) error
}
