// Package webconfig derives web-server and SSH-jail configuration
// artifacts from the directory store's current project and user lists.
// The generator holds no state of its own: output is a pure function of
// its inputs, and regenerating with unchanged inputs produces
// byte-identical files.
package webconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
)

// Generator writes configuration artifacts below OutputDir:
// sites/<cn>.conf per project and ssh_jail.conf for the user roster.
type Generator struct {
	OutputDir string
}

// NewGenerator creates a generator rooted at outputDir
func NewGenerator(outputDir string) *Generator {
	return &Generator{OutputDir: outputDir}
}

// WriteAll regenerates the site files for the full project list and the
// SSH jail for the full uid list. Artifacts are rewritten wholesale,
// never patched.
func (g *Generator) WriteAll(projects []domain.Project, uids []string) error {
	if err := g.writeSites(projects); err != nil {
		return err
	}
	return g.WriteSSHJail(uids)
}

// PurgeProject removes the site file of a deleted project and
// regenerates the remaining project files
func (g *Generator) PurgeProject(remaining []domain.Project, removed domain.Project) error {
	path := g.sitePath(removed.CN)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.NewConfigGenError("removing site file for "+removed.CN, err)
	}
	return g.writeSites(remaining)
}

// WriteSSHJail rewrites the SSH jail allow-list from the full uid list
func (g *Generator) WriteSSHJail(uids []string) error {
	sorted := append([]string(nil), uids...)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString("# SSH jail allow-list. Generated; do not edit.\n")
	for _, uid := range sorted {
		b.WriteString(uid)
		b.WriteByte('\n')
	}

	if err := os.MkdirAll(g.OutputDir, 0o755); err != nil {
		return apperrors.NewConfigGenError("creating output dir", err)
	}
	path := filepath.Join(g.OutputDir, "ssh_jail.conf")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return apperrors.NewConfigGenError("writing ssh jail file", err)
	}
	return nil
}

func (g *Generator) writeSites(projects []domain.Project) error {
	sitesDir := filepath.Join(g.OutputDir, "sites")
	if err := os.MkdirAll(sitesDir, 0o755); err != nil {
		return apperrors.NewConfigGenError("creating sites dir", err)
	}

	sorted := append([]domain.Project(nil), projects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CN < sorted[j].CN })

	for _, p := range sorted {
		content := renderSite(p)
		if err := os.WriteFile(g.sitePath(p.CN), []byte(content), 0o644); err != nil {
			return apperrors.NewConfigGenError("writing site file for "+p.CN, err)
		}
	}
	return nil
}

func (g *Generator) sitePath(cn string) string {
	return filepath.Join(g.OutputDir, "sites", cn+".conf")
}

// renderSite produces the vhost fragment for one project. Output is
// deterministic: member lists are sorted before rendering.
func renderSite(p domain.Project) string {
	members := append([]string(nil), p.Members...)
	sort.Strings(members)

	var b strings.Builder
	fmt.Fprintf(&b, "# Project %s. Generated; do not edit.\n", p.CN)
	for _, repo := range p.Repos {
		fmt.Fprintf(&b, "<Location /%s/%s>\n", string(repo.Kind), p.CN)
		if repo.Public {
			b.WriteString("    Require all granted\n")
		} else {
			fmt.Fprintf(&b, "    Require user %s\n", strings.Join(members, " "))
		}
		b.WriteString("</Location>\n")
	}
	return b.String()
}
