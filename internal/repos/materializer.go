// Package repos materializes the physical storage backing a project's
// version-control repositories: bare git and svn instances on the local
// filesystem, or a remote repository in a GitHub organization.
package repos

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
	"github.com/forgestack/forge/internal/execx"
)

// Materializer creates and destroys repository storage for a project
type Materializer interface {
	Create(ctx context.Context, repo domain.Repository, cn string) error
	Remove(ctx context.Context, repo domain.Repository, cn string) error
	Exists(ctx context.Context, repo domain.Repository, cn string) (bool, error)
}

// localMaterializer handles the git and svn kinds on the local
// filesystem, creating instances through the command runner
type localMaterializer struct {
	runner execx.Runner
}

// NewLocalMaterializer creates a materializer for local repository kinds
func NewLocalMaterializer(runner execx.Runner) Materializer {
	return &localMaterializer{runner: runner}
}

// repoDir is <repo path>/<cn>: one directory per project and kind
func repoDir(repo domain.Repository, cn string) string {
	return filepath.Join(repo.Path, cn)
}

func (m *localMaterializer) Create(ctx context.Context, repo domain.Repository, cn string) error {
	dir := repoDir(repo, cn)
	if err := os.MkdirAll(repo.Path, 0o755); err != nil {
		return apperrors.NewRepositoryError("creating repository base path", err)
	}

	var command string
	switch repo.Kind {
	case domain.RepoKindGit:
		command = "git init --bare " + dir
	case domain.RepoKindSVN:
		command = "svnadmin create " + dir
	default:
		return apperrors.NewRepositoryError(fmt.Sprintf("kind %s is not a local repository kind", repo.Kind), nil)
	}

	if _, _, err := m.runner.Run(ctx, command); err != nil {
		return apperrors.NewRepositoryError(fmt.Sprintf("materializing %s repository for %q", repo.Kind, cn), err)
	}
	return nil
}

func (m *localMaterializer) Remove(ctx context.Context, repo domain.Repository, cn string) error {
	if err := os.RemoveAll(repoDir(repo, cn)); err != nil {
		return apperrors.NewRepositoryError(fmt.Sprintf("removing %s repository for %q", repo.Kind, cn), err)
	}
	return nil
}

func (m *localMaterializer) Exists(ctx context.Context, repo domain.Repository, cn string) (bool, error) {
	_, err := os.Stat(repoDir(repo, cn))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperrors.NewRepositoryError("checking repository existence", err)
}

// router dispatches by repository kind: the github kind goes to the
// remote backend, everything else to the local one
type router struct {
	local  Materializer
	github Materializer
}

// New creates the kind-routing materializer. The github backend is nil
// when no token is configured; github repositories then fail to
// materialize with a repository error.
func New(runner execx.Runner, githubOrg, githubToken string) Materializer {
	r := &router{local: NewLocalMaterializer(runner)}
	if githubToken != "" {
		r.github = NewGitHubMaterializer(githubOrg, githubToken)
	}
	return r
}

func (r *router) backend(repo domain.Repository) (Materializer, error) {
	if repo.Kind == domain.RepoKindGitHub {
		if r.github == nil {
			return nil, apperrors.NewRepositoryError("github repositories are not configured", nil)
		}
		return r.github, nil
	}
	return r.local, nil
}

func (r *router) Create(ctx context.Context, repo domain.Repository, cn string) error {
	b, err := r.backend(repo)
	if err != nil {
		return err
	}
	return b.Create(ctx, repo, cn)
}

func (r *router) Remove(ctx context.Context, repo domain.Repository, cn string) error {
	b, err := r.backend(repo)
	if err != nil {
		return err
	}
	return b.Remove(ctx, repo, cn)
}

func (r *router) Exists(ctx context.Context, repo domain.Repository, cn string) (bool, error) {
	b, err := r.backend(repo)
	if err != nil {
		return false, err
	}
	return b.Exists(ctx, repo, cn)
}
