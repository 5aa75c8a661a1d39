package cli

import (
	"context"
	"fmt"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/deploy"
	"github.com/roach88/strata/internal/project"
	"github.com/roach88/strata/internal/sqlengine"
	"github.com/roach88/strata/internal/target"
)

// session is everything a target-touching command needs: configuration,
// the parsed plan, and a connected engine adapter.
type session struct {
	Config   *config.Config
	Project  *project.Project
	Adapter  sqlengine.Adapter
	Operator project.Identity
}

// loadProject reads config and plan without touching any target. Used by
// the plan-mutation commands.
func loadProject(opts *RootOptions) (*config.Config, *project.Project, error) {
	cfg, err := config.Load(opts.Dir)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	pr, err := project.Load(opts.Dir, cfg.PlanFile)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load plan", err)
	}
	return cfg, pr, nil
}

// openSession additionally resolves and connects the target. The caller
// owns Close.
func openSession(ctx context.Context, opts *RootOptions, targetArg string) (*session, error) {
	cfg, pr, err := loadProject(opts)
	if err != nil {
		return nil, err
	}
	uri, err := cfg.TargetURI(targetArg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve target", err)
	}
	tgt, err := target.Parse(uri)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse target", err)
	}
	if cfg.Registry != "" {
		tgt.Registry = cfg.Registry
	}
	adapter, err := tgt.Connect(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect target", err)
	}
	return &session{
		Config:   cfg,
		Project:  pr,
		Adapter:  adapter,
		Operator: operator(cfg),
	}, nil
}

func (s *session) Close() error { return s.Adapter.Close() }

func (s *session) Orchestrator() *deploy.Orchestrator {
	return deploy.New(s.Project, s.Adapter, s.Operator)
}

func operator(cfg *config.Config) project.Identity {
	return project.Identity{Name: cfg.UserName, Email: cfg.UserEmail}
}

// requireOperator rejects plan- or registry-mutating commands when the
// operator identity is not configured; the registry schema needs both.
func requireOperator(cfg *config.Config) error {
	if cfg.UserName == "" || cfg.UserEmail == "" {
		return WrapExitError(ExitCommandError, "operator identity required",
			fmt.Errorf("set user.name and user.email in strata.conf (or STRATA_USER_NAME / STRATA_USER_EMAIL)"))
	}
	return nil
}
