// Package project ties a plan file to its script directories on disk and
// implements the plan-mutating operations: add, tag, and rework. The plan
// file is only ever rewritten whole, via an atomic rename, and only ever
// grows — entries are appended, never reordered.
package project

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/strata/internal/plan"
)

// Script kinds, doubling as directory names under the project root.
const (
	ScriptDeploy = "deploy"
	ScriptRevert = "revert"
	ScriptVerify = "verify"
)

// Identity names the operator for plan entries and registry rows.
type Identity struct {
	Name  string
	Email string
}

// Project is a plan plus the directory layout around it.
type Project struct {
	// Root is the project directory holding the plan file and the
	// deploy/, revert/, and verify/ script directories.
	Root string

	// PlanFile is the plan path, Root-relative or absolute.
	PlanFile string

	Plan *plan.Plan
}

// Load reads and parses the project's plan file.
func Load(root, planFile string) (*Project, error) {
	if planFile == "" {
		planFile = filepath.Join(root, "strata.plan")
	} else if !filepath.IsAbs(planFile) {
		planFile = filepath.Join(root, planFile)
	}
	f, err := os.Open(planFile)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	p, err := plan.Parse(f)
	if err != nil {
		return nil, err
	}
	return &Project{Root: root, PlanFile: planFile, Plan: p}, nil
}

// ScriptPath returns the path of a script for the change at position pos.
// Superseded occurrences live under "name@tag.sql" (see plan.ScriptName).
func (pr *Project) ScriptPath(kind string, pos int) string {
	return filepath.Join(pr.Root, kind, pr.Plan.ScriptName(pos)+".sql")
}

// ReadScript reads a change's script. Missing deploy and revert scripts are
// reported as errors; the caller decides for verify.
func (pr *Project) ReadScript(kind string, pos int) (string, error) {
	path := pr.ScriptPath(kind, pos)
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s script for %s: %w", kind, pr.Plan.Change(pos).Name, err)
	}
	return string(body), nil
}

// WritePlan rewrites the plan file atomically.
func (pr *Project) WritePlan() error {
	tmp := pr.PlanFile + ".tmp"
	if err := os.WriteFile(tmp, plan.Format(pr.Plan), 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	if err := os.Rename(tmp, pr.PlanFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace plan: %w", err)
	}
	return nil
}

// AddChange appends a change to the plan, creates template scripts for it,
// and rewrites the plan file.
func (pr *Project) AddChange(name string, requires, conflicts []string, who Identity, note string) (*plan.Change, error) {
	c, err := pr.Plan.AddChange(name, requires, conflicts, time.Now(), who.Name, who.Email, note)
	if err != nil {
		return nil, err
	}
	if err := pr.writeTemplates(name); err != nil {
		return nil, err
	}
	return c, pr.WritePlan()
}

// AddTag appends a tag on the last change and rewrites the plan file.
func (pr *Project) AddTag(name string, who Identity, note string) (*plan.Tag, error) {
	t, err := pr.Plan.AddTag(name, time.Now(), who.Name, who.Email, note)
	if err != nil {
		return nil, err
	}
	return t, pr.WritePlan()
}

// Rework reintroduces an existing change name. The prior occurrence's
// scripts are copied to their tag-qualified names so both versions stay
// deployable; the unqualified scripts remain in place for the new version
// to edit. Appends the plan entry (pinned to "name@tag") and rewrites the
// plan file. Deploying the new version is a separate, later operation.
func (pr *Project) Rework(name string, requires []string, who Identity, note string) (*plan.Change, error) {
	c, err := pr.Plan.AddRework(name, requires, time.Now(), who.Name, who.Email, note)
	if err != nil {
		return nil, err
	}
	// AddRework set ReworkOf to "name@tag"; the pinned stem is where the
	// prior occurrence's scripts now live.
	pinned := c.ReworkOf
	for _, kind := range []string{ScriptDeploy, ScriptRevert, ScriptVerify} {
		src := filepath.Join(pr.Root, kind, name+".sql")
		dst := filepath.Join(pr.Root, kind, pinned+".sql")
		if err := copyFile(src, dst); err != nil {
			if os.IsNotExist(err) && kind == ScriptVerify {
				continue // verify scripts are optional
			}
			return nil, fmt.Errorf("preserve %s script: %w", kind, err)
		}
	}
	return c, pr.WritePlan()
}

func (pr *Project) writeTemplates(name string) error {
	for _, kind := range []string{ScriptDeploy, ScriptRevert, ScriptVerify} {
		dir := filepath.Join(pr.Root, kind)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", kind, err)
		}
		path := filepath.Join(dir, name+".sql")
		if _, err := os.Stat(path); err == nil {
			continue // never clobber an existing script
		}
		body := fmt.Sprintf("-- %s %s:%s\n\n", strTitle(kind), pr.Plan.Project, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write %s template: %w", kind, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func strTitle(kind string) string {
	switch kind {
	case ScriptDeploy:
		return "Deploy"
	case ScriptRevert:
		return "Revert"
	default:
		return "Verify"
	}
}
