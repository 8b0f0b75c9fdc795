package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/forgestack/forge/internal/directory"
	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
)

// sqliteDirectory implements the Directory interface for SQLite
type sqliteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates a new SQLite directory store instance
func NewSQLiteDirectory(dbPath string) (directory.Directory, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	d := &sqliteDirectory{db: db}
	if err := d.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return d, nil
}

// Migrate creates the directory schema
func (d *sqliteDirectory) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		uid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		locked INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS projects (
		cn TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS project_admins (
		cn TEXT NOT NULL REFERENCES projects(cn),
		uid TEXT NOT NULL REFERENCES users(uid),
		PRIMARY KEY (cn, uid)
	);

	CREATE TABLE IF NOT EXISTS project_members (
		cn TEXT NOT NULL REFERENCES projects(cn),
		uid TEXT NOT NULL REFERENCES users(uid),
		PRIMARY KEY (cn, uid)
	);

	CREATE TABLE IF NOT EXISTS repositories (
		cn TEXT NOT NULL REFERENCES projects(cn),
		kind TEXT NOT NULL,
		public INTEGER NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (cn, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_project_admins_uid ON project_admins(uid);
	CREATE INDEX IF NOT EXISTS idx_project_members_uid ON project_members(uid);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure. Other constraint classes (foreign key, CHECK)
// stay directory errors.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func wrapDir(op string, err error) error {
	return apperrors.NewDirectoryError(op, err)
}

// CreateUser inserts a user; a duplicate uid or email fails atomically
func (d *sqliteDirectory) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (uid, name, surname, email, password_hash, locked)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.UID, user.Name, user.Surname, user.Email, user.PasswordHash, user.Locked)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewUniquenessError(fmt.Sprintf("user %q or email %q already exists", user.UID, user.Email))
		}
		return wrapDir("create user", err)
	}
	return nil
}

func (d *sqliteDirectory) GetUser(ctx context.Context, uid string) (*domain.User, error) {
	user := &domain.User{}
	err := d.db.QueryRowContext(ctx, `
		SELECT uid, name, surname, email, password_hash, locked
		FROM users WHERE uid = ?`, uid).
		Scan(&user.UID, &user.Name, &user.Surname, &user.Email, &user.PasswordHash, &user.Locked)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	if err != nil {
		return nil, wrapDir("get user", err)
	}
	return user, nil
}

func (d *sqliteDirectory) UpdateUser(ctx context.Context, user *domain.User) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE users SET name = ?, surname = ?, email = ?, locked = ?
		WHERE uid = ?`,
		user.Name, user.Surname, user.Email, user.Locked, user.UID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewUniquenessError(fmt.Sprintf("email %q already in use", user.Email))
		}
		return wrapDir("update user", err)
	}
	return requireRow(res, fmt.Sprintf("user %q", user.UID))
}

func (d *sqliteDirectory) DeleteUser(ctx context.Context, uid string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDir("delete user", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM project_admins WHERE uid = ?`,
		`DELETE FROM project_members WHERE uid = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, uid); err != nil {
			return wrapDir("delete user edges", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE uid = ?`, uid)
	if err != nil {
		return wrapDir("delete user", err)
	}
	if err := requireRow(res, fmt.Sprintf("user %q", uid)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapDir("delete user", err)
	}
	return nil
}

func (d *sqliteDirectory) SetUserLocked(ctx context.Context, uid string, locked bool) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET locked = ? WHERE uid = ?`, locked, uid)
	if err != nil {
		return wrapDir("set user locked", err)
	}
	return requireRow(res, fmt.Sprintf("user %q", uid))
}

func (d *sqliteDirectory) SetUserPassword(ctx context.Context, uid, passwordHash string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE uid = ?`, passwordHash, uid)
	if err != nil {
		return wrapDir("set user password", err)
	}
	return requireRow(res, fmt.Sprintf("user %q", uid))
}

// CreateProject inserts the project together with its admin, member and
// repository records in one transaction
func (d *sqliteDirectory) CreateProject(ctx context.Context, project *domain.Project) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDir("create project", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO projects (cn, description) VALUES (?, ?)`,
		project.CN, project.Description); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewUniquenessError(fmt.Sprintf("project %q already exists", project.CN))
		}
		return wrapDir("create project", err)
	}
	for _, uid := range project.Admins {
		if _, err := tx.ExecContext(ctx, `INSERT INTO project_admins (cn, uid) VALUES (?, ?)`, project.CN, uid); err != nil {
			return wrapDir("create project admins", err)
		}
	}
	for _, uid := range project.Members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO project_members (cn, uid) VALUES (?, ?)`, project.CN, uid); err != nil {
			return wrapDir("create project members", err)
		}
	}
	for _, repo := range project.Repos {
		if _, err := tx.ExecContext(ctx, `INSERT INTO repositories (cn, kind, public, path) VALUES (?, ?, ?, ?)`,
			project.CN, string(repo.Kind), repo.Public, repo.Path); err != nil {
			return wrapDir("create project repositories", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapDir("create project", err)
	}
	return nil
}

func (d *sqliteDirectory) GetProject(ctx context.Context, cn string) (*domain.Project, error) {
	project := &domain.Project{}
	err := d.db.QueryRowContext(ctx, `SELECT cn, description FROM projects WHERE cn = ?`, cn).
		Scan(&project.CN, &project.Description)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	if err != nil {
		return nil, wrapDir("get project", err)
	}

	project.Admins, err = d.queryStrings(ctx, `SELECT uid FROM project_admins WHERE cn = ? ORDER BY uid`, cn)
	if err != nil {
		return nil, err
	}
	project.Members, err = d.queryStrings(ctx, `SELECT uid FROM project_members WHERE cn = ? ORDER BY uid`, cn)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `SELECT kind, public, path FROM repositories WHERE cn = ? ORDER BY kind`, cn)
	if err != nil {
		return nil, wrapDir("get project repositories", err)
	}
	defer rows.Close()
	for rows.Next() {
		var repo domain.Repository
		var kind string
		if err := rows.Scan(&kind, &repo.Public, &repo.Path); err != nil {
			return nil, wrapDir("scan repository", err)
		}
		repo.Kind = domain.RepoKind(kind)
		project.Repos = append(project.Repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDir("get project repositories", err)
	}
	return project, nil
}

// UpdateProject rewrites the project's mutable fields (description);
// membership, roles and repositories change through their own operations
func (d *sqliteDirectory) UpdateProject(ctx context.Context, project *domain.Project) error {
	res, err := d.db.ExecContext(ctx, `UPDATE projects SET description = ? WHERE cn = ?`,
		project.Description, project.CN)
	if err != nil {
		return wrapDir("update project", err)
	}
	return requireRow(res, fmt.Sprintf("project %q", project.CN))
}

func (d *sqliteDirectory) DeleteProject(ctx context.Context, cn string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDir("delete project", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM project_admins WHERE cn = ?`,
		`DELETE FROM project_members WHERE cn = ?`,
		`DELETE FROM repositories WHERE cn = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, cn); err != nil {
			return wrapDir("delete project edges", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE cn = ?`, cn)
	if err != nil {
		return wrapDir("delete project", err)
	}
	if err := requireRow(res, fmt.Sprintf("project %q", cn)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapDir("delete project", err)
	}
	return nil
}

func (d *sqliteDirectory) AddMember(ctx context.Context, cn, uid string) error {
	if err := d.requireEntities(ctx, cn, uid); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `INSERT OR IGNORE INTO project_members (cn, uid) VALUES (?, ?)`, cn, uid)
	if err != nil {
		return wrapDir("add member", err)
	}
	return nil
}

// RemoveMember removes the membership edge. A member who also holds the
// admin role loses both edges, subject to the last-admin invariant.
func (d *sqliteDirectory) RemoveMember(ctx context.Context, cn, uid string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDir("remove member", err)
	}
	defer tx.Rollback()

	var isMember bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM project_members WHERE cn = ? AND uid = ?)`, cn, uid).
		Scan(&isMember); err != nil {
		return wrapDir("remove member", err)
	}
	if !isMember {
		return apperrors.NewNotFoundError(fmt.Sprintf("membership of %q in project %q", uid, cn))
	}

	if err := removeAdminTx(ctx, tx, cn, uid, true); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE cn = ? AND uid = ?`, cn, uid); err != nil {
		return wrapDir("remove member", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapDir("remove member", err)
	}
	return nil
}

func (d *sqliteDirectory) AddAdmin(ctx context.Context, cn, uid string) error {
	if err := d.requireEntities(ctx, cn, uid); err != nil {
		return err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDir("add admin", err)
	}
	defer tx.Rollback()

	// An administrator is always a member as well
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members (cn, uid) VALUES (?, ?)`, cn, uid); err != nil {
		return wrapDir("add admin", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_admins (cn, uid) VALUES (?, ?)`, cn, uid); err != nil {
		return wrapDir("add admin", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapDir("add admin", err)
	}
	return nil
}

// RemoveAdmin removes the admin role. Removing the last remaining admin
// of a project is rejected before any mutation.
func (d *sqliteDirectory) RemoveAdmin(ctx context.Context, cn, uid string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDir("remove admin", err)
	}
	defer tx.Rollback()

	if err := removeAdminTx(ctx, tx, cn, uid, false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapDir("remove admin", err)
	}
	return nil
}

// removeAdminTx deletes the admin edge inside tx, enforcing the
// last-admin invariant. When tolerateMissing is true a missing admin
// edge is a no-op (used by member removal, where the user may not hold
// the role at all).
func removeAdminTx(ctx context.Context, tx *sql.Tx, cn, uid string, tolerateMissing bool) error {
	var isAdmin bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM project_admins WHERE cn = ? AND uid = ?)`, cn, uid).
		Scan(&isAdmin); err != nil {
		return wrapDir("remove admin", err)
	}
	if !isAdmin {
		if tolerateMissing {
			return nil
		}
		return apperrors.NewNotFoundError(fmt.Sprintf("admin role of %q in project %q", uid, cn))
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_admins WHERE cn = ?`, cn).
		Scan(&count); err != nil {
		return wrapDir("remove admin", err)
	}
	if count <= 1 {
		return apperrors.NewInvariantError(fmt.Sprintf("cannot remove %q: project %q must retain at least one administrator", uid, cn))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_admins WHERE cn = ? AND uid = ?`, cn, uid); err != nil {
		return wrapDir("remove admin", err)
	}
	return nil
}

func (d *sqliteDirectory) AddRepository(ctx context.Context, cn string, repo domain.Repository) error {
	if err := d.requireProject(ctx, cn); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO repositories (cn, kind, public, path) VALUES (?, ?, ?, ?)`,
		cn, string(repo.Kind), repo.Public, repo.Path)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewUniquenessError(fmt.Sprintf("project %q already has a %s repository", cn, repo.Kind))
		}
		return wrapDir("add repository", err)
	}
	return nil
}

func (d *sqliteDirectory) RemoveRepository(ctx context.Context, cn string, kind domain.RepoKind) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM repositories WHERE cn = ? AND kind = ?`, cn, string(kind))
	if err != nil {
		return wrapDir("remove repository", err)
	}
	return requireRow(res, fmt.Sprintf("%s repository of project %q", kind, cn))
}

func (d *sqliteDirectory) ListUIDs(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, `SELECT uid FROM users ORDER BY uid`)
}

func (d *sqliteDirectory) ListEmails(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, `SELECT email FROM users ORDER BY email`)
}

func (d *sqliteDirectory) ListUserNames(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, `SELECT name || ' ' || surname FROM users ORDER BY uid`)
}

func (d *sqliteDirectory) ListProjectCNs(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, `SELECT cn FROM projects ORDER BY cn`)
}

func (d *sqliteDirectory) ListProjects(ctx context.Context) ([]domain.Project, error) {
	cns, err := d.ListProjectCNs(ctx)
	if err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(cns))
	for _, cn := range cns {
		p, err := d.GetProject(ctx, cn)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, nil
}

func (d *sqliteDirectory) AdministeredProjects(ctx context.Context, uid string) ([]string, error) {
	if err := d.requireUser(ctx, uid); err != nil {
		return nil, err
	}
	return d.queryStrings(ctx, `SELECT cn FROM project_admins WHERE uid = ? ORDER BY cn`, uid)
}

func (d *sqliteDirectory) MemberProjects(ctx context.Context, uid string) ([]string, error) {
	if err := d.requireUser(ctx, uid); err != nil {
		return nil, err
	}
	return d.queryStrings(ctx, `SELECT cn FROM project_members WHERE uid = ? ORDER BY cn`, uid)
}

func (d *sqliteDirectory) Close() error {
	return d.db.Close()
}

func (d *sqliteDirectory) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDir("query", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, wrapDir("scan", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDir("query", err)
	}
	return out, nil
}

func (d *sqliteDirectory) requireUser(ctx context.Context, uid string) error {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE uid = ?)`, uid).Scan(&exists)
	if err != nil {
		return wrapDir("check user", err)
	}
	if !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("user %q", uid))
	}
	return nil
}

func (d *sqliteDirectory) requireProject(ctx context.Context, cn string) error {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE cn = ?)`, cn).Scan(&exists)
	if err != nil {
		return wrapDir("check project", err)
	}
	if !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("project %q", cn))
	}
	return nil
}

func (d *sqliteDirectory) requireEntities(ctx context.Context, cn, uid string) error {
	if err := d.requireProject(ctx, cn); err != nil {
		return err
	}
	return d.requireUser(ctx, uid)
}

// requireRow converts a zero-row mutation into a not-found error
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDir("rows affected", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(what)
	}
	return nil
}
