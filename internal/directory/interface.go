package directory

import (
	"context"

	"github.com/forgestack/forge/internal/domain"
)

// Directory is the abstract interface for the authoritative directory
// store. It exclusively owns the canonical User, Project and Repository
// records; every other component derives its inputs from this store's
// current snapshot.
//
// Uniqueness of uid, email and cn is enforced here as an atomic
// conditional write, not as a caller-side pre-check: a conflicting
// write fails with a uniqueness error even when two callers race. The
// store likewise enforces the "at least one administrator" invariant
// on admin removal. Not-found conditions are signalled distinctly from
// validation failures.
type Directory interface {
	// User operations
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, uid string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, uid string) error
	SetUserLocked(ctx context.Context, uid string, locked bool) error
	SetUserPassword(ctx context.Context, uid, passwordHash string) error

	// Project operations
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, cn string) (*domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, cn string) error

	// Membership and admin-role edges
	AddMember(ctx context.Context, cn, uid string) error
	RemoveMember(ctx context.Context, cn, uid string) error
	AddAdmin(ctx context.Context, cn, uid string) error
	RemoveAdmin(ctx context.Context, cn, uid string) error

	// Repository records
	AddRepository(ctx context.Context, cn string, repo domain.Repository) error
	RemoveRepository(ctx context.Context, cn string, kind domain.RepoKind) error

	// Enumerations
	ListUIDs(ctx context.Context) ([]string, error)
	ListEmails(ctx context.Context) ([]string, error)
	ListUserNames(ctx context.Context) ([]string, error)
	ListProjectCNs(ctx context.Context) ([]string, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	AdministeredProjects(ctx context.Context, uid string) ([]string, error)
	MemberProjects(ctx context.Context, uid string) ([]string, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
