package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/forgestack/forge/internal/config"
	"github.com/forgestack/forge/internal/directory"
	"github.com/forgestack/forge/internal/directory/postgres"
	"github.com/forgestack/forge/internal/directory/sqlite"
	"github.com/forgestack/forge/internal/execx"
	"github.com/forgestack/forge/internal/forge"
	"github.com/forgestack/forge/internal/observability"
	"github.com/forgestack/forge/internal/repos"
	"github.com/forgestack/forge/internal/tracker/redmine"
	"github.com/forgestack/forge/internal/webconfig"
)

var (
	repoKind   string
	repoPublic bool
	repoPath   string
)

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "Forge provisioning tool",
	Long: `A CLI tool for provisioning a software forge.

forgectl manages users, projects, memberships and repositories across
the directory store, the generated web configuration, the repository
storage and the issue-tracker mirror.`,
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap [uid] [password]",
	Short: "Create the superadmin user and group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.BootstrapForge(ctx, args[0], args[1])
		})
	},
}

var userCmd = &cobra.Command{Use: "user", Short: "Manage users"}

var userCreateCmd = &cobra.Command{
	Use:   "create [uid] [name] [surname] [email] [password]",
	Short: "Provision a new user",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.CreateUser(ctx, args[0], args[1], args[2], args[3], args[4])
		})
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete [uid]",
	Short: "Delete a user and all its memberships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.DeleteUser(ctx, args[0])
		})
	},
}

var userLockCmd = &cobra.Command{
	Use:   "lock [uid]",
	Short: "Disable a user's credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.LockUser(ctx, args[0])
		})
	},
}

var userUnlockCmd = &cobra.Command{
	Use:   "unlock [uid] [new-password]",
	Short: "Re-enable a user with a new password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.UnlockUser(ctx, args[0], args[1])
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			uids, err := o.ListUIDs(ctx)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"UID", "Name", "Email", "Locked"})
			for _, uid := range uids {
				user, err := o.GetUser(ctx, uid)
				if err != nil {
					return err
				}
				table.Append([]string{user.UID, user.FullName(), user.Email, fmt.Sprintf("%v", user.Locked)})
			}
			table.Render()
			return nil
		})
	},
}

var projectCmd = &cobra.Command{Use: "project", Short: "Manage projects"}

var projectCreateCmd = &cobra.Command{
	Use:   "create [cn] [description] [first-admin-uid]",
	Short: "Provision a new project",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			var spec *forge.RepoSpec
			if repoKind != "" {
				spec = &forge.RepoSpec{Kind: repoKind, Public: repoPublic, Path: repoPath}
			}
			return o.CreateProject(ctx, args[0], args[1], args[2], spec)
		})
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete [cn]",
	Short: "Delete a project and its derived artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.DeleteProject(ctx, args[0])
		})
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			projects, err := o.ListProjects(ctx)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"CN", "Description", "Admins", "Members", "Repos"})
			for _, p := range projects {
				table.Append([]string{
					p.CN, p.Description,
					fmt.Sprintf("%d", len(p.Admins)),
					fmt.Sprintf("%d", len(p.Members)),
					fmt.Sprintf("%d", len(p.Repos)),
				})
			}
			table.Render()
			return nil
		})
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show [cn]",
	Short: "Show a project's roster and repositories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			p, err := o.GetProject(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Project: %s\n%s\n\n", p.CN, p.Description)
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"UID", "Admin"})
			for _, uid := range p.Members {
				table.Append([]string{uid, fmt.Sprintf("%v", p.HasAdmin(uid))})
			}
			table.Render()
			if len(p.Repos) > 0 {
				repoTable := tablewriter.NewWriter(os.Stdout)
				repoTable.SetHeader([]string{"Kind", "Public", "Path"})
				for _, r := range p.Repos {
					repoTable.Append([]string{string(r.Kind), fmt.Sprintf("%v", r.Public), r.Path})
				}
				repoTable.Render()
			}
			return nil
		})
	},
}

var memberCmd = &cobra.Command{Use: "member", Short: "Manage project memberships"}

var memberAddCmd = &cobra.Command{
	Use:   "add [cn] [uid]",
	Short: "Add a member to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.AddUserToProject(ctx, args[1], args[0])
		})
	},
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove [cn] [uid]",
	Short: "Remove a member from a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.RemoveUserFromProject(ctx, args[1], args[0])
		})
	},
}

var adminCmd = &cobra.Command{Use: "admin", Short: "Manage project administrators"}

var adminAddCmd = &cobra.Command{
	Use:   "add [cn] [uid]",
	Short: "Grant the administrator role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.AddAdminToProject(ctx, args[1], args[0])
		})
	},
}

var adminRemoveCmd = &cobra.Command{
	Use:   "remove [cn] [uid]",
	Short: "Revoke the administrator role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.RemoveAdminFromProject(ctx, args[1], args[0])
		})
	},
}

var repoCmd = &cobra.Command{Use: "repo", Short: "Manage project repositories"}

var repoAddCmd = &cobra.Command{
	Use:   "add [cn] [kind] [path]",
	Short: "Attach and materialize a repository",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.AddRepositoryToProject(ctx, args[1], repoPublic, args[2], args[0])
		})
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove [cn] [kind]",
	Short: "Detach and destroy a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *forge.Orchestrator) error {
			return o.RemoveRepositoryFromProject(ctx, args[1], args[0])
		})
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&repoKind, "repo-kind", "", "attach a repository of this kind (git, svn, github)")
	projectCreateCmd.Flags().BoolVar(&repoPublic, "repo-public", false, "make the attached repository public")
	projectCreateCmd.Flags().StringVar(&repoPath, "repo-path", "", "base path of the attached repository")
	repoAddCmd.Flags().BoolVar(&repoPublic, "public", false, "make the repository public")

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userDeleteCmd, userLockCmd, userUnlockCmd, userListCmd)
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectCreateCmd, projectDeleteCmd, projectListCmd, projectShowCmd)
	rootCmd.AddCommand(memberCmd)
	memberCmd.AddCommand(memberAddCmd, memberRemoveCmd)
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminAddCmd, adminRemoveCmd)
	rootCmd.AddCommand(repoCmd)
	repoCmd.AddCommand(repoAddCmd, repoRemoveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getDirectory(cfg *config.Config) (directory.Directory, error) {
	switch cfg.Directory.Type {
	case "postgres":
		return postgres.NewPostgresDirectory(cfg.Directory.PostgresURL)
	default:
		return sqlite.NewSQLiteDirectory(cfg.Directory.SQLitePath)
	}
}

// withOrchestrator wires the orchestrator against the configured
// collaborators and runs fn with it
func withOrchestrator(fn func(context.Context, *forge.Orchestrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.InitLogger("forgectl")

	dir, err := getDirectory(cfg)
	if err != nil {
		return err
	}
	defer dir.Close()

	runner := execx.NewRunner(cfg.SSHTimeout())
	o := forge.New(
		dir,
		webconfig.NewGenerator(cfg.WebConfig.OutputDir),
		redmine.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.APIKey),
		repos.New(runner, cfg.Repos.GitHubOrg, cfg.Repos.GitHubToken),
		runner,
		forge.Options{
			RestartCommand:  cfg.SSH.RestartCommand,
			SuperadminGroup: cfg.SuperadminGroup,
			LockFile:        cfg.LockFile,
			Logger:          logger,
		},
	)
	return fn(context.Background(), o)
}
