package domain

import (
	apperrors "github.com/forgestack/forge/internal/errors"
)

// RepoKind represents a supported version-control repository kind
type RepoKind string

const (
	RepoKindGit    RepoKind = "git"
	RepoKindSVN    RepoKind = "svn"
	RepoKindGitHub RepoKind = "github"
)

// SupportedRepoKinds lists every kind the materializer can handle
var SupportedRepoKinds = []RepoKind{RepoKindGit, RepoKindSVN, RepoKindGitHub}

// Repository belongs to exactly one project
type Repository struct {
	Kind   RepoKind `json:"kind"`
	Public bool     `json:"public"`
	Path   string   `json:"path"`
}

// ParseRepoKind validates a kind string against the supported set
func ParseRepoKind(s string) (RepoKind, error) {
	for _, k := range SupportedRepoKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", apperrors.NewRepositoryError("unsupported repository kind: "+s, nil)
}

// NewRepository constructs a repository value object, validating the kind
func NewRepository(kind string, public bool, path string) (*Repository, error) {
	k, err := ParseRepoKind(kind)
	if err != nil {
		return nil, err
	}
	return &Repository{Kind: k, Public: public, Path: path}, nil
}
