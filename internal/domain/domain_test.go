package domain

import "testing"

func TestNewUserHashesPassword(t *testing.T) {
	u, err := NewUser("alice", "Alice", "Doe", "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if u.PasswordHash == "s3cret" || u.PasswordHash == "" {
		t.Error("password stored unhashed")
	}
	if !u.CheckPassword("s3cret") {
		t.Error("correct password rejected")
	}
	if u.CheckPassword("wrong") {
		t.Error("wrong password accepted")
	}
}

func TestFullName(t *testing.T) {
	u := User{Name: "Alice", Surname: "Doe"}
	if got := u.FullName(); got != "Alice Doe" {
		t.Errorf("FullName = %q", got)
	}
	u.Surname = ""
	if got := u.FullName(); got != "Alice" {
		t.Errorf("FullName without surname = %q", got)
	}
}

func TestNewProjectFirstAdminIsMember(t *testing.T) {
	p := NewProject("acme", "Acme project", "alice", nil)
	if !p.HasAdmin("alice") {
		t.Error("first admin missing the admin role")
	}
	if !p.HasMember("alice") {
		t.Error("first admin is not a member")
	}
	if len(p.Repos) != 0 {
		t.Errorf("repos = %v, want none", p.Repos)
	}
}

func TestNewProjectWithRepository(t *testing.T) {
	repo, err := NewRepository("git", true, "/repos/git")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	p := NewProject("acme", "desc", "alice", repo)
	if got := p.RepositoryOfKind(RepoKindGit); got == nil || !got.Public {
		t.Errorf("RepositoryOfKind(git) = %v", got)
	}
	if got := p.RepositoryOfKind(RepoKindSVN); got != nil {
		t.Errorf("RepositoryOfKind(svn) = %v, want nil", got)
	}
}

func TestParseRepoKind(t *testing.T) {
	for _, kind := range []string{"git", "svn", "github"} {
		if _, err := ParseRepoKind(kind); err != nil {
			t.Errorf("ParseRepoKind(%q): %v", kind, err)
		}
	}
	if _, err := ParseRepoKind("cvs"); err == nil {
		t.Error("ParseRepoKind accepted cvs")
	}
	if _, err := ParseRepoKind(""); err == nil {
		t.Error("ParseRepoKind accepted the empty string")
	}
}
