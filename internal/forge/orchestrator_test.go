package forge

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/forgestack/forge/internal/directory"
	"github.com/forgestack/forge/internal/directory/memory"
	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
	"github.com/forgestack/forge/internal/webconfig"
)

// fakeTracker records mirror calls in order
type fakeTracker struct {
	ops  []string
	fail bool
}

func (t *fakeTracker) record(op string) error {
	if t.fail {
		return apperrors.NewTrackerError("tracker unavailable", nil)
	}
	t.ops = append(t.ops, op)
	return nil
}

func (t *fakeTracker) CreateProject(_ context.Context, p *domain.Project) error {
	return t.record("create-project " + p.CN)
}
func (t *fakeTracker) UpdateProject(_ context.Context, p *domain.Project) error {
	return t.record("update-project " + p.CN)
}
func (t *fakeTracker) DeleteProject(_ context.Context, cn string) error {
	return t.record("delete-project " + cn)
}
func (t *fakeTracker) HideProject(_ context.Context, cn string) error {
	return t.record("hide " + cn)
}
func (t *fakeTracker) CreateUser(_ context.Context, u *domain.User, _ string) error {
	return t.record("create-user " + u.UID)
}
func (t *fakeTracker) UpdateUser(_ context.Context, u *domain.User) error {
	return t.record("update-user " + u.UID)
}
func (t *fakeTracker) DeleteUser(_ context.Context, uid string) error {
	return t.record("delete-user " + uid)
}
func (t *fakeTracker) AddMember(_ context.Context, cn, uid string) error {
	return t.record("add-member " + cn + " " + uid)
}
func (t *fakeTracker) AddAdmin(_ context.Context, cn, uid string) error {
	return t.record("add-admin " + cn + " " + uid)
}
func (t *fakeTracker) RemoveMember(_ context.Context, cn, uid string) error {
	return t.record("remove-member " + cn + " " + uid)
}
func (t *fakeTracker) RemoveAdmin(_ context.Context, cn, uid string) error {
	return t.record("remove-admin " + cn + " " + uid)
}

// fakeMaterializer tracks materialized repositories by cn and kind
type fakeMaterializer struct {
	created map[string]bool
}

func newFakeMaterializer() *fakeMaterializer {
	return &fakeMaterializer{created: make(map[string]bool)}
}

func (m *fakeMaterializer) key(repo domain.Repository, cn string) string {
	return cn + "/" + string(repo.Kind)
}

func (m *fakeMaterializer) Create(_ context.Context, repo domain.Repository, cn string) error {
	m.created[m.key(repo, cn)] = true
	return nil
}

func (m *fakeMaterializer) Remove(_ context.Context, repo domain.Repository, cn string) error {
	delete(m.created, m.key(repo, cn))
	return nil
}

func (m *fakeMaterializer) Exists(_ context.Context, repo domain.Repository, cn string) (bool, error) {
	return m.created[m.key(repo, cn)], nil
}

// fakeRunner records executed commands
type fakeRunner struct {
	commands []string
	fail     bool
}

func (r *fakeRunner) Run(_ context.Context, command string) (string, string, error) {
	if r.fail {
		return "", "restart failed", apperrors.NewCommandError("command failed", nil)
	}
	r.commands = append(r.commands, command)
	return "ok", "", nil
}

type testDeps struct {
	dir     directory.Directory
	tracker *fakeTracker
	mat     *fakeMaterializer
	runner  *fakeRunner
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *testDeps) {
	t.Helper()
	deps := &testDeps{
		dir:     memory.NewMemoryDirectory(),
		tracker: &fakeTracker{},
		mat:     newFakeMaterializer(),
		runner:  &fakeRunner{},
	}
	o := New(
		deps.dir,
		webconfig.NewGenerator(t.TempDir()),
		deps.tracker,
		deps.mat,
		deps.runner,
		Options{
			RestartCommand:  "/etc/init.d/ssh restart",
			SuperadminGroup: "superadmins",
			LockFile:        filepath.Join(t.TempDir(), "forge.lock"),
			Logger:          zerolog.Nop(),
		},
	)
	return o, deps
}

func mustCreateUser(t *testing.T, o *Orchestrator, uid string) {
	t.Helper()
	email := fmt.Sprintf("%s@example.com", uid)
	if err := o.CreateUser(context.Background(), uid, uid, "Tester", email, "secret-"+uid); err != nil {
		t.Fatalf("CreateUser %s: %v", uid, err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := o.CreateUser(ctx, "u1", "User", "One", "a@x.com", "pw1"); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	err := o.CreateUser(ctx, "u2", "User", "Two", "a@x.com", "pw2")
	if !apperrors.IsUniqueness(err) {
		t.Fatalf("second CreateUser = %v, want uniqueness error", err)
	}

	// First user unaffected, second never created
	if _, err := o.GetUser(ctx, "u1"); err != nil {
		t.Errorf("GetUser u1: %v", err)
	}
	if _, err := o.GetUser(ctx, "u2"); !apperrors.IsNotFound(err) {
		t.Errorf("GetUser u2 = %v, want not found", err)
	}
}

func TestRemoveLastAdminRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	mustCreateUser(t, o, "bob")
	if err := o.CreateProject(ctx, "acme", "Acme project", "alice", nil); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := o.AddUserToProject(ctx, "bob", "acme"); err != nil {
		t.Fatalf("AddUserToProject: %v", err)
	}

	err := o.RemoveAdminFromProject(ctx, "alice", "acme")
	if !apperrors.IsInvariant(err) {
		t.Fatalf("RemoveAdminFromProject = %v, want invariant violation", err)
	}

	// Removing the sole admin's membership must fail the same way
	if err := o.RemoveUserFromProject(ctx, "alice", "acme"); !apperrors.IsInvariant(err) {
		t.Fatalf("RemoveUserFromProject = %v, want invariant violation", err)
	}

	p, err := o.GetProject(ctx, "acme")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if len(p.Admins) != 1 || p.Admins[0] != "alice" {
		t.Errorf("admins = %v, want [alice]", p.Admins)
	}
	if !p.HasMember("bob") {
		t.Error("bob should still be a member")
	}
}

func TestAdminRemovalWithSecondAdmin(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	mustCreateUser(t, o, "bob")
	if err := o.CreateProject(ctx, "acme", "Acme project", "alice", nil); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := o.AddAdminToProject(ctx, "bob", "acme"); err != nil {
		t.Fatalf("AddAdminToProject: %v", err)
	}
	if err := o.RemoveAdminFromProject(ctx, "alice", "acme"); err != nil {
		t.Fatalf("RemoveAdminFromProject: %v", err)
	}

	p, _ := o.GetProject(ctx, "acme")
	if len(p.Admins) != 1 || p.Admins[0] != "bob" {
		t.Errorf("admins = %v, want [bob]", p.Admins)
	}
	last := deps.tracker.ops[len(deps.tracker.ops)-1]
	if last != "remove-admin acme alice" {
		t.Errorf("last tracker op = %q, want remove-admin", last)
	}
}

func TestDeleteUserCascade(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	mustCreateUser(t, o, "bob")
	for _, cn := range []string{"p1", "p2"} {
		if err := o.CreateProject(ctx, cn, "project "+cn, "alice", nil); err != nil {
			t.Fatalf("CreateProject %s: %v", cn, err)
		}
		if err := o.AddUserToProject(ctx, "bob", cn); err != nil {
			t.Fatalf("AddUserToProject %s: %v", cn, err)
		}
	}

	if err := o.DeleteUser(ctx, "bob"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	for _, cn := range []string{"p1", "p2"} {
		p, err := o.GetProject(ctx, cn)
		if err != nil {
			t.Fatalf("GetProject %s: %v", cn, err)
		}
		if p.HasMember("bob") || p.HasAdmin("bob") {
			t.Errorf("bob still present in %s", cn)
		}
	}
	if _, err := o.GetUser(ctx, "bob"); !apperrors.IsNotFound(err) {
		t.Errorf("GetUser bob = %v, want not found", err)
	}

	// Re-deleting a nonexistent user is a pure not-found, no side effects
	trackerOps := len(deps.tracker.ops)
	if err := o.DeleteUser(ctx, "bob"); !apperrors.IsNotFound(err) {
		t.Fatalf("second DeleteUser = %v, want not found", err)
	}
	if len(deps.tracker.ops) != trackerOps {
		t.Error("re-delete reached the tracker")
	}
}

func TestDeleteUserSoleAdminRejected(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	mustCreateUser(t, o, "bob")
	if err := o.CreateProject(ctx, "acme", "Acme project", "alice", nil); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := o.AddUserToProject(ctx, "bob", "acme"); err != nil {
		t.Fatalf("AddUserToProject: %v", err)
	}

	trackerOps := len(deps.tracker.ops)
	err := o.DeleteUser(ctx, "alice")
	if !apperrors.IsInvariant(err) {
		t.Fatalf("DeleteUser = %v, want invariant violation", err)
	}

	// Nothing was mutated
	if _, err := o.GetUser(ctx, "alice"); err != nil {
		t.Errorf("GetUser alice: %v", err)
	}
	p, _ := o.GetProject(ctx, "acme")
	if !p.HasAdmin("alice") {
		t.Error("alice lost the admin role")
	}
	if len(deps.tracker.ops) != trackerOps {
		t.Error("failed delete reached the tracker")
	}
}

func TestCreateUserRestartFailureIsFatal(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	deps.runner.fail = true
	ctx := context.Background()

	err := o.CreateUser(ctx, "carol", "Carol", "Tester", "carol@example.com", "pw")
	if !apperrors.IsCommand(err) {
		t.Fatalf("CreateUser = %v, want command error", err)
	}

	// The user record is already durable; the failure is not rolled back
	if _, err := o.GetUser(ctx, "carol"); err != nil {
		t.Errorf("GetUser carol after restart failure: %v", err)
	}
}

func TestCreateProjectDuplicate(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	if err := o.CreateProject(ctx, "acme", "first", "alice", nil); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := o.CreateProject(ctx, "acme", "second", "alice", nil); !apperrors.IsUniqueness(err) {
		t.Fatalf("duplicate CreateProject = %v, want uniqueness error", err)
	}
}

func TestCreateProjectUnsupportedRepoKind(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	spec := &RepoSpec{Kind: "cvs", Path: t.TempDir()}
	if err := o.CreateProject(ctx, "acme", "desc", "alice", spec); err == nil {
		t.Fatal("CreateProject accepted unsupported repository kind")
	}
	if _, err := o.GetProject(ctx, "acme"); !apperrors.IsNotFound(err) {
		t.Errorf("project was created despite invalid repo kind: %v", err)
	}
}

func TestCreateProjectMirrorsAndHides(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	if err := o.CreateProject(ctx, "acme", "desc", "alice", nil); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	n := len(deps.tracker.ops)
	if n < 2 || deps.tracker.ops[n-2] != "create-project acme" || deps.tracker.ops[n-1] != "hide acme" {
		t.Errorf("tracker ops = %v, want create-project then hide", deps.tracker.ops)
	}
}

func TestAddRemoveRepository(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	if err := o.CreateProject(ctx, "acme", "desc", "alice", nil); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if err := o.AddRepositoryToProject(ctx, "git", false, "/repos/git", "acme"); err != nil {
		t.Fatalf("AddRepositoryToProject: %v", err)
	}
	repo := domain.Repository{Kind: domain.RepoKindGit, Path: "/repos/git"}
	if ok, _ := deps.mat.Exists(ctx, repo, "acme"); !ok {
		t.Fatal("repository was not materialized")
	}

	if err := o.RemoveRepositoryFromProject(ctx, "git", "acme"); err != nil {
		t.Fatalf("RemoveRepositoryFromProject: %v", err)
	}
	if ok, _ := deps.mat.Exists(ctx, repo, "acme"); ok {
		t.Error("repository still materialized after removal")
	}
	p, _ := o.GetProject(ctx, "acme")
	if p.RepositoryOfKind(domain.RepoKindGit) != nil {
		t.Error("repository record still attached after removal")
	}
}

func TestRemoveRepositoryUnknownKind(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	if err := o.CreateProject(ctx, "acme", "desc", "alice", nil); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	// No repository of that kind: the store removal is attempted and
	// the store decides it errors
	if err := o.RemoveRepositoryFromProject(ctx, "svn", "acme"); !apperrors.IsNotFound(err) {
		t.Fatalf("RemoveRepositoryFromProject = %v, want not found", err)
	}
}

func TestUnlockUserResetsPassword(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	if err := o.LockUser(ctx, "alice"); err != nil {
		t.Fatalf("LockUser: %v", err)
	}
	u, _ := o.GetUser(ctx, "alice")
	if !u.Locked {
		t.Fatal("user not locked")
	}

	if err := o.UnlockUser(ctx, "alice", "fresh-password"); err != nil {
		t.Fatalf("UnlockUser: %v", err)
	}
	u, _ = o.GetUser(ctx, "alice")
	if u.Locked {
		t.Error("user still locked")
	}
	if !u.CheckPassword("fresh-password") {
		t.Error("new password does not verify")
	}
}

func TestEditUserEmailUniqueness(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	mustCreateUser(t, o, "bob")

	bob, _ := o.GetUser(ctx, "bob")
	bob.Email = "alice@example.com"
	if err := o.EditUser(ctx, bob); !apperrors.IsUniqueness(err) {
		t.Fatalf("EditUser with taken email = %v, want uniqueness error", err)
	}

	// Keeping the prior email is not a conflict with itself
	bob, _ = o.GetUser(ctx, "bob")
	bob.Name = "Robert"
	if err := o.EditUser(ctx, bob); err != nil {
		t.Fatalf("EditUser keeping email: %v", err)
	}
	last := deps.tracker.ops[len(deps.tracker.ops)-1]
	if last != "update-user bob" {
		t.Errorf("last tracker op = %q, want update-user bob", last)
	}
}

func TestEditUserPreservesLock(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	if err := o.LockUser(ctx, "alice"); err != nil {
		t.Fatalf("LockUser: %v", err)
	}

	// An edit request carries only the profile fields; the zero Locked
	// value must not undo the lock
	edited := &domain.User{
		UID:     "alice",
		Name:    "Alicia",
		Surname: "Tester",
		Email:   "alice@example.com",
	}
	if err := o.EditUser(ctx, edited); err != nil {
		t.Fatalf("EditUser: %v", err)
	}
	u, err := o.GetUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !u.Locked {
		t.Error("profile edit cleared the lock flag")
	}
	if u.Name != "Alicia" {
		t.Errorf("name = %q, want Alicia", u.Name)
	}

	// And the other way round: an edit never locks an unlocked user
	if err := o.UnlockUser(ctx, "alice", "new-pw"); err != nil {
		t.Fatalf("UnlockUser: %v", err)
	}
	edited.Name = "Alice"
	edited.Locked = true
	if err := o.EditUser(ctx, edited); err != nil {
		t.Fatalf("EditUser: %v", err)
	}
	u, _ = o.GetUser(ctx, "alice")
	if u.Locked {
		t.Error("profile edit set the lock flag")
	}
}

func TestAdministeredUsers(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	for _, uid := range []string{"alice", "bob", "carol", "dave"} {
		mustCreateUser(t, o, uid)
	}
	if err := o.CreateProject(ctx, "p1", "one", "alice", nil); err != nil {
		t.Fatal(err)
	}
	if err := o.CreateProject(ctx, "p2", "two", "alice", nil); err != nil {
		t.Fatal(err)
	}
	if err := o.CreateProject(ctx, "p3", "three", "dave", nil); err != nil {
		t.Fatal(err)
	}
	if err := o.AddUserToProject(ctx, "bob", "p1"); err != nil {
		t.Fatal(err)
	}
	if err := o.AddUserToProject(ctx, "carol", "p2"); err != nil {
		t.Fatal(err)
	}
	if err := o.AddUserToProject(ctx, "bob", "p3"); err != nil {
		t.Fatal(err)
	}

	// Union of p1 and p2 rosters, deduplicated and sorted; p3 is dave's
	got, err := o.AdministeredUsers(ctx, "alice")
	if err != nil {
		t.Fatalf("AdministeredUsers: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("AdministeredUsers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AdministeredUsers = %v, want %v", got, want)
		}
	}

	if _, err := o.AdministeredUsers(ctx, "ghost"); !apperrors.IsNotFound(err) {
		t.Errorf("AdministeredUsers ghost = %v, want not found", err)
	}
}

func TestDeleteProjectCleansMirror(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	if err := o.CreateProject(ctx, "acme", "desc", "alice", nil); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := o.DeleteProject(ctx, "acme"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := o.GetProject(ctx, "acme"); !apperrors.IsNotFound(err) {
		t.Fatalf("GetProject = %v, want not found", err)
	}
	last := deps.tracker.ops[len(deps.tracker.ops)-1]
	if last != "delete-project acme" {
		t.Errorf("last tracker op = %q, want delete-project acme", last)
	}
}

func TestBootstrapForge(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	if err := o.BootstrapForge(ctx, "root", "root-password"); err != nil {
		t.Fatalf("BootstrapForge: %v", err)
	}

	p, err := o.GetProject(ctx, "superadmins")
	if err != nil {
		t.Fatalf("GetProject superadmins: %v", err)
	}
	if len(p.Admins) != 1 || p.Admins[0] != "root" {
		t.Errorf("admins = %v, want [root]", p.Admins)
	}
	if len(p.Repos) != 0 {
		t.Errorf("superadmins project has repositories: %v", p.Repos)
	}
	if len(deps.runner.commands) == 0 {
		t.Error("ssh restart never ran")
	}

	found := false
	for _, op := range deps.tracker.ops {
		if op == "hide superadmins" {
			found = true
		}
	}
	if !found {
		t.Errorf("tracker ops %v missing hide superadmins", deps.tracker.ops)
	}
}

func TestTrackerFailurePropagatesWithoutRollback(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	mustCreateUser(t, o, "alice")
	deps.tracker.fail = true
	err := o.CreateProject(ctx, "acme", "desc", "alice", nil)
	if err == nil {
		t.Fatal("CreateProject succeeded despite tracker failure")
	}

	// No compensation: the directory record stays committed
	if _, err := o.GetProject(ctx, "acme"); err != nil {
		t.Errorf("GetProject after tracker failure: %v", err)
	}
}
