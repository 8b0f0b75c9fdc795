package repos

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
)

// githubMaterializer backs the github repository kind with a repository
// in a remote GitHub organization
type githubMaterializer struct {
	client *github.Client
	org    string
}

// NewGitHubMaterializer creates a remote materializer for the given
// organization, authenticating with a static token
func NewGitHubMaterializer(org, token string) Materializer {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	return &githubMaterializer{client: client, org: org}
}

func (m *githubMaterializer) Create(ctx context.Context, repo domain.Repository, cn string) error {
	private := !repo.Public
	_, _, err := m.client.Repositories.Create(ctx, m.org, &github.Repository{
		Name:    github.String(cn),
		Private: github.Bool(private),
	})
	if err != nil {
		return apperrors.NewRepositoryError(fmt.Sprintf("creating github repository %s/%s", m.org, cn), err)
	}
	return nil
}

func (m *githubMaterializer) Remove(ctx context.Context, repo domain.Repository, cn string) error {
	_, err := m.client.Repositories.Delete(ctx, m.org, cn)
	if err != nil {
		return apperrors.NewRepositoryError(fmt.Sprintf("deleting github repository %s/%s", m.org, cn), err)
	}
	return nil
}

func (m *githubMaterializer) Exists(ctx context.Context, repo domain.Repository, cn string) (bool, error) {
	_, resp, err := m.client.Repositories.Get(ctx, m.org, cn)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, apperrors.NewRepositoryError(fmt.Sprintf("checking github repository %s/%s", m.org, cn), err)
	}
	return true, nil
}
