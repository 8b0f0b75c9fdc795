// Package forge implements the provisioning orchestrator: the one
// component that keeps the directory store, web-config generator,
// repository materializer and issue-tracker mirror consistent as users
// and projects are created, modified and deleted.
package forge

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/forgestack/forge/internal/directory"
	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
	"github.com/forgestack/forge/internal/execx"
	"github.com/forgestack/forge/internal/repos"
	"github.com/forgestack/forge/internal/tracker"
	"github.com/forgestack/forge/internal/webconfig"
)

// Orchestrator sequences calls to the four subsystems. The directory
// store is always mutated first: the web-config generator and tracker
// mirror read their inputs by re-querying the store's current state,
// never from caller-supplied snapshots.
//
// There is no compensation. When step N of a multi-step operation
// fails, steps 1..N-1 stay committed and the error propagates with the
// failing subsystem's context. Callers must treat any error as "state
// may be partially applied" and re-query before retrying.
//
// All mutating operations serialize on an in-process mutex plus an
// optional file lock shared across processes, closing the
// check-then-act races of the unserialized design.
type Orchestrator struct {
	dir     directory.Directory
	webcfg  *webconfig.Generator
	tracker tracker.Tracker
	mat     repos.Materializer
	runner  execx.Runner

	restartCommand  string
	superadminGroup string
	log             zerolog.Logger

	mu  sync.Mutex
	flk *flock.Flock
}

// Options carries the orchestrator's non-collaborator settings
type Options struct {
	// RestartCommand restarts the SSH service after roster changes
	RestartCommand string

	// SuperadminGroup is the cn of the superadmins project
	SuperadminGroup string

	// LockFile serializes mutations across processes; empty disables
	// the file lock (the in-process mutex still applies)
	LockFile string

	Logger zerolog.Logger
}

// RepoSpec describes a repository to attach to a project
type RepoSpec struct {
	Kind   string
	Public bool
	Path   string
}

// New creates the orchestrator
func New(dir directory.Directory, webcfg *webconfig.Generator, trk tracker.Tracker, mat repos.Materializer, runner execx.Runner, opts Options) *Orchestrator {
	o := &Orchestrator{
		dir:             dir,
		webcfg:          webcfg,
		tracker:         trk,
		mat:             mat,
		runner:          runner,
		restartCommand:  opts.RestartCommand,
		superadminGroup: opts.SuperadminGroup,
		log:             opts.Logger,
	}
	if opts.LockFile != "" {
		o.flk = flock.New(opts.LockFile)
	}
	return o
}

// lock serializes a mutating operation; the returned func releases it
func (o *Orchestrator) lock() (func(), error) {
	o.mu.Lock()
	if o.flk != nil {
		if err := o.flk.Lock(); err != nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("acquiring mutation lock: %w", err)
		}
	}
	return func() {
		if o.flk != nil {
			if err := o.flk.Unlock(); err != nil {
				o.log.Error().Err(err).Msg("releasing mutation lock")
			}
		}
		o.mu.Unlock()
	}, nil
}

// CreateProject creates a project with firstAdminUID as its sole
// administrator, regenerates the web config and mirrors the project to
// the tracker with public visibility suppressed. The attached
// repository, if any, is recorded in the store only; its on-disk state
// materializes when a later operation needs it.
func (o *Orchestrator) CreateProject(ctx context.Context, cn, description, firstAdminUID string, spec *RepoSpec) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	var repo *domain.Repository
	if spec != nil {
		repo, err = domain.NewRepository(spec.Kind, spec.Public, spec.Path)
		if err != nil {
			return err
		}
	}
	project := domain.NewProject(cn, description, firstAdminUID, repo)

	o.log.Info().Str("cn", cn).Msg("adding project to directory")
	if err := o.dir.CreateProject(ctx, project); err != nil {
		return err
	}
	if err := o.regenerateWebConfig(ctx); err != nil {
		return err
	}
	o.log.Info().Str("cn", cn).Msg("mirroring project to tracker")
	if err := o.tracker.CreateProject(ctx, project); err != nil {
		return err
	}
	return o.tracker.HideProject(ctx, cn)
}

// CreateUser provisions a user: directory record, tracker mirror, SSH
// jail regeneration and an SSH service restart. The restart is fatal to
// the call even though the user record is already durably created; the
// caller sees the command error, not a rollback.
func (o *Orchestrator) CreateUser(ctx context.Context, uid, name, surname, email, password string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	o.log.Info().Str("uid", uid).Msg("checking email for duplicates")
	emails, err := o.dir.ListEmails(ctx)
	if err != nil {
		return err
	}
	for _, e := range emails {
		if e == email {
			return apperrors.NewUniquenessError(fmt.Sprintf("email %q is already in use", email))
		}
	}

	user, err := domain.NewUser(uid, name, surname, email, password)
	if err != nil {
		return err
	}

	o.log.Info().Str("uid", uid).Msg("adding user to directory")
	if err := o.dir.CreateUser(ctx, user); err != nil {
		return err
	}

	o.log.Info().Str("uid", uid).Msg("mirroring user to tracker")
	if err := o.tracker.CreateUser(ctx, user, password); err != nil {
		return err
	}

	o.log.Info().Str("uid", uid).Msg("regenerating ssh jail")
	uids, err := o.dir.ListUIDs(ctx)
	if err != nil {
		return err
	}
	if err := o.webcfg.WriteSSHJail(uids); err != nil {
		return err
	}

	o.log.Info().Str("command", o.restartCommand).Msg("restarting ssh service")
	stdout, _, err := o.runner.Run(ctx, o.restartCommand)
	if err != nil {
		return err
	}
	o.log.Info().Str("output", stdout).Msg("ssh service restarted")
	return nil
}

// AddUserToProject grants uid membership of the project
func (o *Orchestrator) AddUserToProject(ctx context.Context, uid, cn string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := o.dir.AddMember(ctx, cn, uid); err != nil {
		return err
	}
	return o.tracker.AddMember(ctx, cn, uid)
}

// AddAdminToProject grants uid the administrator role (and membership)
func (o *Orchestrator) AddAdminToProject(ctx context.Context, uid, cn string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := o.dir.AddAdmin(ctx, cn, uid); err != nil {
		return err
	}
	return o.tracker.AddAdmin(ctx, cn, uid)
}

// AddRepositoryToProject attaches a repository to the project,
// materializes its storage and regenerates the web config
func (o *Orchestrator) AddRepositoryToProject(ctx context.Context, kind string, public bool, path, cn string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	repo, err := domain.NewRepository(kind, public, path)
	if err != nil {
		return err
	}
	if err := o.dir.AddRepository(ctx, cn, *repo); err != nil {
		return err
	}
	o.log.Info().Str("cn", cn).Str("kind", kind).Msg("materializing repository")
	if err := o.mat.Create(ctx, *repo, cn); err != nil {
		return err
	}
	return o.regenerateWebConfig(ctx)
}

// RemoveRepositoryFromProject destroys the on-disk state of the
// project's repository of the given kind (when it exists), removes the
// store record and regenerates the web config. The store removal is
// attempted even when no materialized repository was found; the store
// is authoritative on whether that errors.
func (o *Orchestrator) RemoveRepositoryFromProject(ctx context.Context, kind, cn string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	k, err := domain.ParseRepoKind(kind)
	if err != nil {
		return err
	}
	project, err := o.dir.GetProject(ctx, cn)
	if err != nil {
		return err
	}
	if repo := project.RepositoryOfKind(k); repo != nil {
		exists, err := o.mat.Exists(ctx, *repo, cn)
		if err != nil {
			return err
		}
		if exists {
			o.log.Info().Str("cn", cn).Str("kind", kind).Msg("removing materialized repository")
			if err := o.mat.Remove(ctx, *repo, cn); err != nil {
				return err
			}
		}
	}
	if err := o.dir.RemoveRepository(ctx, cn, k); err != nil {
		return err
	}
	return o.regenerateWebConfig(ctx)
}

// EditUser rewrites a user's mutable fields in the store and pushes the
// same fields to the tracker. A changed email is re-validated for
// uniqueness against every other user. The lock flag is not a mutable
// field: it carries over from the stored record, so an edit never
// reverses LockUser or UnlockUser.
func (o *Orchestrator) EditUser(ctx context.Context, user *domain.User) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	prior, err := o.dir.GetUser(ctx, user.UID)
	if err != nil {
		return err
	}
	if user.Email != prior.Email {
		emails, err := o.dir.ListEmails(ctx)
		if err != nil {
			return err
		}
		for _, e := range emails {
			if e == user.Email {
				return apperrors.NewUniquenessError(fmt.Sprintf("email %q is already in use by another user", user.Email))
			}
		}
	}
	user.Locked = prior.Locked
	if err := o.dir.UpdateUser(ctx, user); err != nil {
		return err
	}
	return o.tracker.UpdateUser(ctx, user)
}

// EditProject rewrites a project's mutable fields in the store and the tracker
func (o *Orchestrator) EditProject(ctx context.Context, project *domain.Project) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := o.dir.UpdateProject(ctx, project); err != nil {
		return err
	}
	return o.tracker.UpdateProject(ctx, project)
}

// LockUser disables a user's credential. Store-only: no tracker or
// config side effects.
func (o *Orchestrator) LockUser(ctx context.Context, uid string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	return o.dir.SetUserLocked(ctx, uid, true)
}

// UnlockUser re-enables a user with a fresh password. Store-only.
func (o *Orchestrator) UnlockUser(ctx context.Context, uid, newPassword string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	user := &domain.User{}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	if err := o.dir.SetUserPassword(ctx, uid, user.PasswordHash); err != nil {
		return err
	}
	return o.dir.SetUserLocked(ctx, uid, false)
}

// RemoveUserFromProject removes uid's membership (and admin role, if
// held, subject to the last-admin invariant), regenerates the web
// config and removes the tracker membership
func (o *Orchestrator) RemoveUserFromProject(ctx context.Context, uid, cn string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	return o.removeUserFromProject(ctx, uid, cn)
}

func (o *Orchestrator) removeUserFromProject(ctx context.Context, uid, cn string) error {
	if err := o.dir.RemoveMember(ctx, cn, uid); err != nil {
		return err
	}
	if err := o.regenerateWebConfig(ctx); err != nil {
		return err
	}
	return o.tracker.RemoveMember(ctx, cn, uid)
}

// RemoveAdminFromProject revokes uid's admin role, regenerates the web
// config and demotes the tracker membership. Removing the last admin
// fails before any subsystem is mutated.
func (o *Orchestrator) RemoveAdminFromProject(ctx context.Context, uid, cn string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := o.dir.RemoveAdmin(ctx, cn, uid); err != nil {
		return err
	}
	if err := o.regenerateWebConfig(ctx); err != nil {
		return err
	}
	return o.tracker.RemoveAdmin(ctx, cn, uid)
}

// DeleteProject deletes the project from the store, purges its config
// artifacts and removes its tracker mirror. The project is read before
// the delete so its data is available for the cleanup calls.
func (o *Orchestrator) DeleteProject(ctx context.Context, cn string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	project, err := o.dir.GetProject(ctx, cn)
	if err != nil {
		return err
	}
	o.log.Info().Str("cn", cn).Msg("deleting project from directory")
	if err := o.dir.DeleteProject(ctx, cn); err != nil {
		return err
	}
	remaining, err := o.dir.ListProjects(ctx)
	if err != nil {
		return err
	}
	if err := o.webcfg.PurgeProject(remaining, *project); err != nil {
		return err
	}
	return o.tracker.DeleteProject(ctx, cn)
}

// DeleteUser removes uid from every project it belongs to, then deletes
// the user from the store and the tracker. A user who is the sole
// administrator of any project cannot be deleted: the admin role must
// be reassigned first, and the call fails with an invariant violation
// before any subsystem is mutated.
func (o *Orchestrator) DeleteUser(ctx context.Context, uid string) error {
	unlock, err := o.lock()
	if err != nil {
		return err
	}
	defer unlock()

	cns, err := o.dir.MemberProjects(ctx, uid)
	if err != nil {
		return err
	}
	for _, cn := range cns {
		project, err := o.dir.GetProject(ctx, cn)
		if err != nil {
			return err
		}
		if project.HasAdmin(uid) && len(project.Admins) == 1 {
			return apperrors.NewInvariantError(fmt.Sprintf(
				"cannot delete %q: sole administrator of project %q, reassign the role first", uid, cn))
		}
	}

	for _, cn := range cns {
		o.log.Info().Str("uid", uid).Str("cn", cn).Msg("removing user from project")
		if err := o.removeUserFromProject(ctx, uid, cn); err != nil {
			return err
		}
	}

	o.log.Info().Str("uid", uid).Msg("deleting user from directory")
	if err := o.dir.DeleteUser(ctx, uid); err != nil {
		return err
	}
	return o.tracker.DeleteUser(ctx, uid)
}

// BootstrapForge creates the permanent superadmin user and the
// distinguished superadmins project, with no repository and with public
// visibility suppressed in the tracker
func (o *Orchestrator) BootstrapForge(ctx context.Context, superadminUID, superadminPassword string) error {
	if err := o.CreateUser(ctx, superadminUID, "Forge Superadmin", "Permanent", "superadmin@localhost", superadminPassword); err != nil {
		return err
	}
	return o.CreateProject(ctx, o.superadminGroup, "Group of the forge superadministrators", superadminUID, nil)
}

// regenerateWebConfig rewrites the config artifacts from the store's
// current state
func (o *Orchestrator) regenerateWebConfig(ctx context.Context) error {
	projects, err := o.dir.ListProjects(ctx)
	if err != nil {
		return err
	}
	uids, err := o.dir.ListUIDs(ctx)
	if err != nil {
		return err
	}
	return o.webcfg.WriteAll(projects, uids)
}
