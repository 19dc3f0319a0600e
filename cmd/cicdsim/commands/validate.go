package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
)

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct {
	Root string `short:"r" help:"Project root to check" default:"."`
}

func (v *ValidateCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	dir, err := resolveRoot(v.Root)
	if err != nil {
		return err
	}

	proj, err := config.NewProjectLoader(cfg.Project.ConfigFile).Load(dir)
	if err != nil {
		return err
	}

	out := g.out()
	_, _ = fmt.Fprintf(out, "Project file: %s\n", filepath.Join(dir, cfg.Project.ConfigFile))
	_, _ = fmt.Fprintf(out, "Image:        %s\n", orNone(proj.ImageRef()))
	_, _ = fmt.Fprintf(out, "Dockerfile:   %s\n", proj.DockerfilePath(dir))
	_, _ = fmt.Fprintf(out, "Tests:        %s\n", orNone(proj.Test.Command))
	_, _ = fmt.Fprintf(out, "Registry:     %s\n", orNone(proj.Deploy.Registry))

	if proj.Build.BaseName == "" {
		return ferrors.ValidationError("build.base_name is required").WithContext("root", dir).Build()
	}
	if proj.Deploy.Registry == "" {
		return ferrors.ValidationError("deploy.registry is required").WithContext("root", dir).Build()
	}
	_, _ = fmt.Fprintln(out, "Project configuration is valid")
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
