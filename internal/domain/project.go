package domain

// Project represents a forge tenant: an organizational identity with
// members, administrators and zero or more version-control repositories
type Project struct {
	CN          string       `json:"cn"`
	Description string       `json:"description"`
	Admins      []string     `json:"admins"`
	Members     []string     `json:"members"`
	Repos       []Repository `json:"repos"`
}

// NewProject creates a project with its first administrator. The first
// admin is also a member; a project never exists without at least one
// administrator.
func NewProject(cn, description, firstAdminUID string, repo *Repository) *Project {
	p := &Project{
		CN:          cn,
		Description: description,
		Admins:      []string{firstAdminUID},
		Members:     []string{firstAdminUID},
	}
	if repo != nil {
		p.Repos = []Repository{*repo}
	}
	return p
}

// HasAdmin reports whether uid holds the administrator role
func (p *Project) HasAdmin(uid string) bool {
	for _, a := range p.Admins {
		if a == uid {
			return true
		}
	}
	return false
}

// HasMember reports whether uid is a member of the project
func (p *Project) HasMember(uid string) bool {
	for _, m := range p.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// RepositoryOfKind returns the project's repository of the given kind,
// or nil if the project has none
func (p *Project) RepositoryOfKind(kind RepoKind) *Repository {
	for i := range p.Repos {
		if p.Repos[i].Kind == kind {
			return &p.Repos[i]
		}
	}
	return nil
}
