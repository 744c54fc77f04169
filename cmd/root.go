// Package cmd implements the yieldtree command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/yieldtree/internal/config"
	"github.com/agentic-research/yieldtree/internal/keymap"
	"github.com/agentic-research/yieldtree/internal/tree"
)

// options holds the persistent flags and what they resolve to.
type options struct {
	configPath string
	tool       string
	keymapPath string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "yieldtree",
		Short:         "yieldtree: browse and query EXOSIMS and AYO yield outputs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.resolve(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", "", "Path to config YAML or HCL (default ./"+config.DefaultFile+" when present)")
	pf.StringVarP(&o.tool, "tool", "t", "", "Output layout: exosims or ayo (overrides config)")
	pf.StringVarP(&o.keymapPath, "keymap", "k", "", "Path to key map JSON (overrides config)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newTreeCmd(o),
		newGetCmd(o),
		newKeysCmd(o),
		newKeymapCmd(o),
		newConvertCmd(o),
		newBuildCmd(o),
		newMountCmd(o),
		newMCPCmd(o),
	)
	return root
}

// resolve loads the config, applies flag overrides and sets up logging.
func (o *options) resolve(cmd *cobra.Command) error {
	var cfg config.Config
	var err error
	if o.configPath == "" {
		cfg, err = config.LoadOptional(config.DefaultFile)
	} else {
		cfg, err = config.Load(o.configPath)
	}
	if err != nil {
		return err
	}
	if o.tool != "" {
		cfg.Tool = o.tool
	}
	if o.keymapPath != "" {
		cfg.Keymap = o.keymapPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.Level()
	if o.verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	o.cfg = cfg
	return nil
}

// env builds the tree environment from the resolved config.
func (o *options) env() (*tree.Env, error) {
	env := tree.NewEnv()
	env.Logger = o.logger
	env.KeepOSOrder = !o.cfg.Scan.Sort
	env.SnapshotTable = o.cfg.Snapshot.Table
	if o.cfg.Keymap != "" {
		km, err := keymap.LoadFile(o.cfg.Keymap)
		if err != nil {
			return nil, fmt.Errorf("load keymap: %w", err)
		}
		env.Keys = km
		o.logger.Debug("loaded keymap", "path", o.cfg.Keymap, "version", km.Version(), "keys", km.Len())
	}
	return env, nil
}

// open builds the tree rooted at dir.
func (o *options) open(dir string) (*tree.Directory, *tree.Env, error) {
	env, err := o.env()
	if err != nil {
		return nil, nil, err
	}
	f, ok := tree.FactoryFor(o.cfg.Tool)
	if !ok {
		return nil, nil, fmt.Errorf("unknown tool %q", o.cfg.Tool)
	}
	root, err := tree.Open(dir, f, env)
	if err != nil {
		return nil, nil, err
	}
	return root, env, nil
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
