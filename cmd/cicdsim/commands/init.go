package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"git.home.luguber.info/inful/cicdsim/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force   bool   `help:"Overwrite existing files"`
	Output  string `short:"o" name:"output" help:"Output directory for generated config file"`
	Project bool   `help:"Also write a starter project file next to the configuration"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	cfgPath := root.Config
	// If the user specified an output directory, place the config there as "cicdsim.yaml".
	if i.Output != "" {
		cfgPath = filepath.Join(i.Output, config.DefaultConfigFile)
	}
	if err := RunInit(g.out(), cfgPath, i.Force); err != nil {
		return err
	}
	if !i.Project {
		return nil
	}
	path, err := config.InitProject(filepath.Dir(cfgPath), "", i.Force)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Wrote starter project file to %s\n", path)
	return nil
}

func RunInit(out io.Writer, configPath string, force bool) error {
	_, _ = fmt.Fprintln(out, "Initializing cicdsim")
	_, _ = fmt.Fprintf(out, "Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		_, _ = fmt.Fprintln(out, "Initialization failed")
		return err
	}
	_, _ = fmt.Fprintln(out, "initialized successfully")
	return nil
}
